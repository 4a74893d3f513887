package generatecontent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kiroproxy/gateway/pkg/codec"
)

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// Response is the non-streaming Dialect C response shape.
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// FromEvents assembles a non-stream Response. Tool use is not part of
// the generateContent contract this gateway exposes (spec §4.3 names
// only a text candidate for Dialect C); any tool_use events observed
// are folded into the text as a raw JSON note rather than dropped
// silently.
func FromEvents(result codec.Result) Response {
	text := joinTexts(result.Texts)
	for _, tu := range result.ToolUses {
		input := tu.RawInput
		if tu.Input != nil {
			b, _ := json.Marshal(tu.Input)
			input = string(b)
		}
		text += fmt.Sprintf("\n[tool_use %s: %s]", tu.Name, input)
	}
	return Response{
		Candidates: []Candidate{{
			Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
			FinishReason: "STOP",
		}},
	}
}

// streamChunk is one line of the streamGenerateContent JSON-array body.
type streamChunk struct {
	Candidates []Candidate `json:"candidates"`
}

// StreamEvents emits one streamChunk per text fragment as a JSON array
// element, per the :streamGenerateContent wire shape (a top-level JSON
// array whose elements arrive incrementally; spec §4.3 Dialect C
// stream). A final chunk carries finishReason STOP.
func StreamEvents(ctx context.Context, events <-chan *codec.Event, w io.Writer, flusher http.Flusher) error {
	first := true
	writeChunk := func(text string, finish string) error {
		prefix := ","
		if first {
			prefix = "["
			first = false
		}
		data, err := json.Marshal(streamChunk{Candidates: []Candidate{{
			Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
			FinishReason: finish,
		}}})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if ev.Type == codec.EventAssistantText && ev.Text != "" {
				if err := writeChunk(ev.Text, ""); err != nil {
					return err
				}
			}
		}
	}

	if err := writeChunk("", "STOP"); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "]")
	if flusher != nil {
		flusher.Flush()
	}
	return err
}

// WriteError writes an HTTP error with a plain JSON error body, per
// spec §7's Dialect C error shape.
func WriteError(w http.ResponseWriter, status int, errType string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "status": errType, "message": message},
	})
}

func joinTexts(texts []string) string {
	out := ""
	for _, t := range texts {
		out += t
	}
	return out
}
