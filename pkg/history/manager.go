// Package history compacts normalized conversation turns before
// dispatch and repairs the alternation/tool-pairing invariants after
// compaction or tool-result splicing (spec §4.6).
package history

import (
	"context"

	"kiroproxy/gateway/pkg/dialect"
)

// Strategy selects how compaction drops or summarizes turns.
type Strategy string

const (
	StrategyTruncateHead         Strategy = "truncate_head"
	StrategySummarizeHead        Strategy = "summarize_head"
	StrategySummarizeOnErrorOnly Strategy = "summarize_on_error_only"
)

// Summarizer calls the upstream with a fast model to compress dropped
// turns into a prose summary. Grounded on the spec's note that
// compaction may itself be a (synthetic) upstream call, kept behind an
// interface so this package never depends on a concrete upstream
// client.
type Summarizer interface {
	Summarize(ctx context.Context, turns []dialect.Turn) (string, error)
}

// Config holds the runtime-tunable compaction thresholds.
type Config struct {
	Strategy          Strategy
	MaxCharacters     int
	MaxTurns          int
	FastModel         string
}

// Manager implements pre_process and handle_length_error.
type Manager struct {
	cfg        Config
	summarizer Summarizer
}

// New constructs a Manager. summarizer may be nil; if cfg.Strategy
// requests summarization and summarizer is nil, Manager silently
// falls back to truncate_head (never raises per the synchronous,
// non-raising contract on pre_process).
func New(cfg Config, summarizer Summarizer) *Manager {
	return &Manager{cfg: cfg, summarizer: summarizer}
}

// PreProcess implements pre_process(history, current_user) → history'.
// It is synchronous from the caller's perspective (summarization, if
// triggered, still makes a blocking upstream call inside ctx) and
// never panics; on any internal failure it degrades to returning the
// truncated history rather than the original.
func (m *Manager) PreProcess(ctx context.Context, turns []dialect.Turn) []dialect.Turn {
	if !m.exceedsThreshold(turns) {
		return RepairInvariants(turns)
	}

	switch m.cfg.Strategy {
	case StrategySummarizeHead, StrategySummarizeOnErrorOnly:
		if m.cfg.Strategy == StrategySummarizeHead && m.summarizer != nil {
			if shortened, ok := m.summarizeHead(ctx, turns); ok {
				return RepairInvariants(shortened)
			}
		}
		return RepairInvariants(m.truncateHead(turns))
	default:
		return RepairInvariants(m.truncateHead(turns))
	}
}

// HandleLengthError implements handle_length_error(history, retry_index)
// → (history', shouldRetry). Each call drops one additional oldest
// user/assistant pair; shouldRetry is false once no further pair can
// be dropped without violating the "last turn is user" invariant.
func (m *Manager) HandleLengthError(turns []dialect.Turn, retryIndex int) ([]dialect.Turn, bool) {
	if len(turns) < 2 {
		return turns, false
	}
	shortened := dropOldestPair(turns)
	if len(shortened) == len(turns) {
		return turns, false
	}
	return RepairInvariants(shortened), true
}

func (m *Manager) exceedsThreshold(turns []dialect.Turn) bool {
	if m.cfg.MaxTurns > 0 && len(turns) > m.cfg.MaxTurns {
		return true
	}
	if m.cfg.MaxCharacters > 0 && estimateChars(turns) > m.cfg.MaxCharacters {
		return true
	}
	return false
}

func (m *Manager) truncateHead(turns []dialect.Turn) []dialect.Turn {
	for m.exceedsThreshold(turns) {
		shortened := dropOldestPair(turns)
		if len(shortened) == len(turns) {
			break
		}
		turns = shortened
	}
	return turns
}

func (m *Manager) summarizeHead(ctx context.Context, turns []dialect.Turn) ([]dialect.Turn, bool) {
	// Drop turns until under threshold, summarizing what was dropped.
	kept := turns
	var dropped []dialect.Turn
	for m.exceedsThreshold(kept) {
		shortened := dropOldestPair(kept)
		if len(shortened) == len(kept) {
			break
		}
		dropped = append(dropped, kept[:len(kept)-len(shortened)]...)
		kept = shortened
	}
	if len(dropped) == 0 {
		return kept, true
	}

	summary, err := m.summarizer.Summarize(ctx, dropped)
	if err != nil {
		return nil, false
	}
	synthetic := dialect.Turn{Role: dialect.RoleUser, Text: "[prior context summary] " + summary}
	return append([]dialect.Turn{synthetic}, kept...), true
}

// dropOldestPair removes the oldest user/assistant pair (and any
// tool_result turns attached to it) while preserving alternation. If
// no full pair exists (e.g. just one leading turn), it drops only the
// single oldest turn.
func dropOldestPair(turns []dialect.Turn) []dialect.Turn {
	if len(turns) == 0 {
		return turns
	}
	// Drop the first turn, then continue dropping while the next turn
	// is part of the same logical pair (a tool_result immediately
	// following, or until we've dropped one user and one assistant).
	i := 1
	droppedUser := turns[0].Role == dialect.RoleUser
	droppedAssistant := turns[0].Role == dialect.RoleAssistant
	for i < len(turns) && !(droppedUser && droppedAssistant) {
		switch turns[i].Role {
		case dialect.RoleUser:
			droppedUser = true
		case dialect.RoleAssistant:
			droppedAssistant = true
		case dialect.RoleToolResult:
			// tool_result belongs to the pair being dropped; keep consuming.
		}
		i++
		if turns[i-1].Role != dialect.RoleToolResult && droppedUser && droppedAssistant {
			break
		}
	}
	// tool_result turns answering the dropped assistant turn go with it.
	for i < len(turns) && turns[i].Role == dialect.RoleToolResult {
		i++
	}
	return turns[i:]
}

func estimateChars(turns []dialect.Turn) int {
	total := 0
	for _, t := range turns {
		total += len(t.Text)
		for _, tu := range t.ToolUses {
			total += len(tu.InputJSON)
		}
		for _, tr := range t.ToolResults {
			total += len(tr.Content)
		}
	}
	return total
}

// RepairInvariants enforces: alternating user/assistant roles (with
// tool_result turns permitted to follow an assistant turn that
// invoked tools), every tool_use answered by a subsequent tool_result
// before the next assistant turn, and a trailing user turn. Orphan
// frames are removed.
func RepairInvariants(turns []dialect.Turn) []dialect.Turn {
	repaired := repairToolPairing(turns)
	repaired = repairAlternation(repaired)
	return trimToTrailingUser(repaired)
}

// repairToolPairing drops tool_use calls with no matching subsequent
// tool_result, and tool_result turns with no matching preceding
// tool_use, before the next assistant turn.
func repairToolPairing(turns []dialect.Turn) []dialect.Turn {
	out := make([]dialect.Turn, 0, len(turns))
	pendingToolUseIDs := map[string]bool{}

	for _, t := range turns {
		switch t.Role {
		case dialect.RoleAssistant:
			if len(pendingToolUseIDs) > 0 {
				// Prior assistant's tool_use calls were never answered:
				// drop them, they are orphans.
				pendingToolUseIDs = map[string]bool{}
			}
			if len(t.ToolUses) > 0 {
				for _, tu := range t.ToolUses {
					pendingToolUseIDs[tu.ID] = true
				}
			}
			out = append(out, t)
		case dialect.RoleToolResult:
			filtered := t
			filtered.ToolResults = nil
			for _, tr := range t.ToolResults {
				if pendingToolUseIDs[tr.ToolUseID] {
					filtered.ToolResults = append(filtered.ToolResults, tr)
					delete(pendingToolUseIDs, tr.ToolUseID)
				}
			}
			if len(filtered.ToolResults) > 0 {
				out = append(out, filtered)
			}
		default:
			out = append(out, t)
		}
	}
	return out
}

// repairAlternation drops any turn that would break strict
// user/assistant alternation, treating a tool_result turn as
// belonging to the assistant slot it follows.
func repairAlternation(turns []dialect.Turn) []dialect.Turn {
	out := make([]dialect.Turn, 0, len(turns))
	var lastPrimary dialect.TurnRole // last user or assistant role seen

	for _, t := range turns {
		switch t.Role {
		case dialect.RoleToolResult:
			if lastPrimary == dialect.RoleAssistant {
				out = append(out, t)
			}
			// else: orphan tool_result with no preceding assistant turn, drop.
		case dialect.RoleUser, dialect.RoleAssistant:
			if t.Role == lastPrimary {
				// two turns of the same role in a row: drop the earlier
				// one's duplicate by keeping only the latest.
				if len(out) > 0 && out[len(out)-1].Role == t.Role {
					out = out[:len(out)-1]
				}
			}
			out = append(out, t)
			lastPrimary = t.Role
		}
	}
	return out
}

func trimToTrailingUser(turns []dialect.Turn) []dialect.Turn {
	for len(turns) > 0 && turns[len(turns)-1].Role != dialect.RoleUser {
		turns = turns[:len(turns)-1]
	}
	return turns
}
