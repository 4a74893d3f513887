package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kiroproxy/gateway/pkg/codec"
	"kiroproxy/gateway/pkg/dialect"
)

// ContentBlock is one entry of a non-stream Response's content array.
type ContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// Response is the non-streaming Dialect A response shape.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// FromEvents buffers decoder output into one non-stream Response.
func FromEvents(result codec.Result, meta dialect.ResponseMeta) Response {
	resp := Response{
		ID:    meta.ID,
		Type:  "message",
		Role:  "assistant",
		Model: meta.RequestedModel,
	}

	text := joinTexts(result.Texts)
	if text != "" {
		resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: text})
	}
	for _, tu := range result.ToolUses {
		block := ContentBlock{Type: "tool_use", ID: tu.ID, Name: tu.Name, Input: tu.Input}
		if tu.Input == nil && tu.RawInput != "" {
			block.Input = map[string]any{"raw": tu.RawInput}
		}
		resp.Content = append(resp.Content, block)
	}
	resp.StopReason = string(result.StopReason)
	return resp
}

// sseEvent writes one `event: <name>\ndata: <json>\n\n` frame.
func sseEvent(w io.Writer, flusher http.Flusher, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// StreamEvents translates decoded events to the fixed Dialect A stream
// event sequence (spec §4.3): message_start, content_block_start(text),
// interleaved content_block_delta(text_delta), content_block_stop,
// then per tool use a content_block_start(tool_use), one
// content_block_delta(input_json_delta), content_block_stop, then
// message_delta(stop_reason), message_stop.
func StreamEvents(ctx context.Context, events <-chan *codec.Event, meta dialect.ResponseMeta, w io.Writer, flusher http.Flusher) error {
	if err := sseEvent(w, flusher, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": meta.ID, "type": "message", "role": "assistant", "model": meta.RequestedModel,
		},
	}); err != nil {
		return err
	}

	textIndex := 0
	textOpen := false
	nextIndex := 0
	asm := codec.NewToolAssembler()

	openText := func() error {
		if textOpen {
			return nil
		}
		textOpen = true
		textIndex = nextIndex
		nextIndex++
		return sseEvent(w, flusher, "content_block_start", map[string]any{
			"type": "content_block_start", "index": textIndex,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
	}
	closeText := func() error {
		if !textOpen {
			return nil
		}
		textOpen = false
		return sseEvent(w, flusher, "content_block_stop", map[string]any{"type": "content_block_stop", "index": textIndex})
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
			switch ev.Type {
			case codec.EventAssistantText:
				if err := openText(); err != nil {
					return err
				}
				if err := sseEvent(w, flusher, "content_block_delta", map[string]any{
					"type": "content_block_delta", "index": textIndex,
					"delta": map[string]any{"type": "text_delta", "text": ev.Text},
				}); err != nil {
					return err
				}
			case codec.EventToolUse:
				asm.Add(ev)
			}
		}
	}
	if err := openText(); err != nil {
		return err
	}
	if err := closeText(); err != nil {
		return err
	}

	toolUses := asm.Finish()
	for _, tu := range toolUses {
		idx := nextIndex
		nextIndex++
		if err := sseEvent(w, flusher, "content_block_start", map[string]any{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]any{"type": "tool_use", "id": tu.ID, "name": tu.Name},
		}); err != nil {
			return err
		}
		inputJSON := tu.RawInput
		if tu.Input != nil {
			b, _ := json.Marshal(tu.Input)
			inputJSON = string(b)
		}
		if err := sseEvent(w, flusher, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": idx,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": inputJSON},
		}); err != nil {
			return err
		}
		if err := sseEvent(w, flusher, "content_block_stop", map[string]any{"type": "content_block_stop", "index": idx}); err != nil {
			return err
		}
	}

	stopReason := string(codec.StopReasonEndTurn)
	if asm.HasAny() {
		stopReason = string(codec.StopReasonToolUse)
	}
	if err := sseEvent(w, flusher, "message_delta", map[string]any{
		"type": "message_delta", "delta": map[string]any{"stop_reason": stopReason},
	}); err != nil {
		return err
	}
	return sseEvent(w, flusher, "message_stop", map[string]any{"type": "message_stop"})
}

// WriteError writes the Dialect A streaming/non-streaming error shape:
// {type: error, error: {type, message}}.
func WriteError(w http.ResponseWriter, status int, errType string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]string{"type": errType, "message": message},
	})
}
