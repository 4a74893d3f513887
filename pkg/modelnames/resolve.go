// Package modelnames resolves arbitrary external model identifiers to
// the small set of identifiers the upstream accepts, and recognizes
// the pseudo-stream naming convention that forces buffered delivery.
package modelnames

import "strings"

// Upstream model identifiers. These are the only values Resolve ever
// returns.
const (
	Sonnet4   = "claude-sonnet-4"
	Sonnet45  = "claude-sonnet-4.5"
	Haiku45   = "claude-haiku-4.5"
	Opus45    = "claude-opus-4.5"
	Auto      = "auto"
)

// DefaultModel is returned when no rule matches.
const DefaultModel = Sonnet4

// PseudoStreamPrefix marks a model name as requesting buffered-then-
// chunked delivery (spec §4.2, §4.8). Treated as an agreed sentinel,
// not tied to any particular locale's source string.
const PseudoStreamPrefix = "pseudo/"

// knownUpstreamModels pass through Resolve unchanged.
var knownUpstreamModels = map[string]bool{
	Auto:     true,
	Sonnet45: true,
	Sonnet4:  true,
	Haiku45:  true,
	Opus45:   true,
}

// aliasTable holds exact-match cross-family aliases.
var aliasTable = map[string]string{
	// Claude 3.5
	"claude-3-5-sonnet-20241022": Sonnet4,
	"claude-3-5-sonnet-latest":   Sonnet4,
	"claude-3-5-sonnet":          Sonnet4,
	"claude-3-5-haiku-20241022":  Haiku45,
	"claude-3-5-haiku-latest":    Haiku45,
	// Claude 3
	"claude-3-opus-20240229":   Opus45,
	"claude-3-opus-latest":     Opus45,
	"claude-3-sonnet-20240229": Sonnet4,
	"claude-3-haiku-20240307":  Haiku45,
	// Claude 4
	"claude-4-sonnet": Sonnet4,
	"claude-4-opus":   Opus45,
	// OpenAI
	"gpt-4o":        Sonnet4,
	"gpt-4o-mini":   Haiku45,
	"gpt-4-turbo":   Sonnet4,
	"gpt-4":         Sonnet4,
	"gpt-3.5-turbo": Haiku45,
	"o1":            Opus45,
	"o1-preview":    Opus45,
	"o1-mini":       Sonnet4,
	// Gemini
	"gemini-2.0-flash":          Sonnet4,
	"gemini-2.0-flash-thinking": Opus45,
	"gemini-1.5-pro":            Sonnet45,
	"gemini-1.5-flash":          Sonnet4,
	// short aliases
	"sonnet": Sonnet4,
	"haiku":  Haiku45,
	"opus":   Opus45,
}

// Resolve maps an external model name to an upstream model identifier,
// applying rules in order: exact-match alias table, known-upstream
// passthrough, case-insensitive substring match on opus/haiku/sonnet
// (sonnet further distinguishes a "4.5" submatch), then DefaultModel.
func Resolve(name string) string {
	if name == "" {
		return DefaultModel
	}
	if upstream, ok := aliasTable[name]; ok {
		return upstream
	}
	if knownUpstreamModels[name] {
		return name
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "opus"):
		return Opus45
	case strings.Contains(lower, "haiku"):
		return Haiku45
	case strings.Contains(lower, "sonnet"):
		if strings.Contains(lower, "4.5") {
			return Sonnet45
		}
		return Sonnet4
	}
	return DefaultModel
}

// StripPseudoStream strips PseudoStreamPrefix from name if present,
// reporting whether the request should run in buffered-then-chunked
// mode.
func StripPseudoStream(name string) (resolved string, pseudoStream bool) {
	if strings.HasPrefix(name, PseudoStreamPrefix) {
		return strings.TrimPrefix(name, PseudoStreamPrefix), true
	}
	return name, false
}
