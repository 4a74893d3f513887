package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"kiroproxy/gateway/pkg/codec"
)

// pseudoStreamChannel replays an already-decoded Result as a channel
// of Events at a fixed cadence, implementing the buffered-then-
// chunked delivery mode (spec §4.8): the upstream body is fully read
// before anything is emitted to the client, but the client still sees
// incremental chunks rather than one final blob.
func pseudoStreamChannel(ctx context.Context, result codec.Result, interval time.Duration) <-chan *codec.Event {
	out := make(chan *codec.Event)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		emit := func(ev *codec.Event) bool {
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, text := range result.Texts {
			if !emit(&codec.Event{Type: codec.EventAssistantText, Text: text}) {
				return
			}
		}
		for _, tu := range result.ToolUses {
			input := tu.RawInput
			if tu.Input != nil {
				// Re-serialize so the downstream event carries the same
				// InputFragment shape a true tool_use stream would.
				if b, err := json.Marshal(tu.Input); err == nil {
					input = string(b)
				}
			}
			if !emit(&codec.Event{Type: codec.EventToolUse, ToolUseID: tu.ID, ToolName: tu.Name, InputFragment: input}) {
				return
			}
		}
	}()
	return out
}
