package chatcompletions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kiroproxy/gateway/pkg/codec"
	"kiroproxy/gateway/pkg/dialect"
)

type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Response is the non-streaming Dialect B response shape.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// FromEvents assembles a non-stream Response from a decode Result. If
// any tool use is present, finish_reason is "tool_calls" and the
// message carries a tool_calls array instead of content.
func FromEvents(result codec.Result, meta dialect.ResponseMeta) Response {
	msg := ResponseMessage{Role: "assistant"}
	finish := "stop"

	if len(result.ToolUses) > 0 {
		finish = "tool_calls"
		for _, tu := range result.ToolUses {
			args := tu.RawInput
			if tu.Input != nil {
				b, _ := json.Marshal(tu.Input)
				args = string(b)
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID: tu.ID, Type: "function",
				Function: FunctionCall{Name: tu.Name, Arguments: args},
			})
		}
	} else {
		msg.Content = joinTexts(result.Texts)
	}

	return Response{
		ID:      meta.ID,
		Object:  "chat.completion",
		Created: meta.Created,
		Model:   meta.RequestedModel,
		Choices: []Choice{{Index: 0, Message: msg, FinishReason: finish}},
	}
}

type ChunkDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// Chunk is one `chat.completion.chunk` SSE data payload.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

func writeChunk(w io.Writer, flusher http.Flusher, c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// StreamEvents emits one chat.completion.chunk per text fragment, a
// tool-calls chunk at the end if any tool use was observed, a final
// empty-delta chunk carrying finish_reason, then a [DONE] sentinel
// (spec §4.3 Dialect B stream).
func StreamEvents(ctx context.Context, events <-chan *codec.Event, meta dialect.ResponseMeta, w io.Writer, flusher http.Flusher) error {
	asm := codec.NewToolAssembler()

loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch ev.Type {
			case codec.EventAssistantText:
				if err := writeChunk(w, flusher, Chunk{
					ID: meta.ID, Object: "chat.completion.chunk", Created: meta.Created, Model: meta.RequestedModel,
					Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{Content: ev.Text}}},
				}); err != nil {
					return err
				}
			case codec.EventToolUse:
				asm.Add(ev)
			}
		}
	}

	finish := "stop"
	if toolUses := asm.Finish(); len(toolUses) > 0 {
		finish = "tool_calls"
		var calls []ToolCall
		for _, tu := range toolUses {
			args := tu.RawInput
			if tu.Input != nil {
				b, _ := json.Marshal(tu.Input)
				args = string(b)
			}
			calls = append(calls, ToolCall{ID: tu.ID, Type: "function", Function: FunctionCall{Name: tu.Name, Arguments: args}})
		}
		if err := writeChunk(w, flusher, Chunk{
			ID: meta.ID, Object: "chat.completion.chunk", Created: meta.Created, Model: meta.RequestedModel,
			Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{ToolCalls: calls}}},
		}); err != nil {
			return err
		}
	}

	if err := writeChunk(w, flusher, Chunk{
		ID: meta.ID, Object: "chat.completion.chunk", Created: meta.Created, Model: meta.RequestedModel,
		Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{}, FinishReason: &finish}},
	}); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// WriteError writes the Dialect B OpenAI-style {error:{message,type}} shape.
func WriteError(w http.ResponseWriter, status int, errType string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": errType},
	})
}

func joinTexts(texts []string) string {
	out := ""
	for _, t := range texts {
		out += t
	}
	return out
}
