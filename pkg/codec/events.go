// Package codec decodes the binary event-stream framing used by the
// upstream assistant endpoint. The wire format is length-prefixed:
// each frame carries a total length, a headers length, a prelude CRC
// (ignored), the header bytes, a JSON payload, and a trailing CRC
// (ignored).
package codec

// EventType discriminates the payload carried by an Event.
type EventType int

const (
	// EventUnknown is used when the frame's headers name neither a
	// known event type nor the payload shape resolve it.
	EventUnknown EventType = iota
	// EventAssistantText carries a fragment of generated text.
	EventAssistantText
	// EventToolUse carries a fragment of a tool invocation.
	EventToolUse
	// EventMetadata carries frames with no text or tool content.
	EventMetadata
)

// Event is one decoded frame from the upstream stream.
type Event struct {
	Type EventType

	// Text is set for EventAssistantText.
	Text string

	// ToolUseID, ToolName and InputFragment are set for EventToolUse.
	// InputFragment is one slice of the tool's JSON-encoded input;
	// fragments sharing a ToolUseID concatenate in arrival order.
	ToolUseID      string
	ToolName       string
	InputFragment  string

	// Raw holds the decoded payload map for EventMetadata/EventUnknown
	// frames that callers may want to inspect.
	Raw map[string]any
}

// StopReason summarizes how generation ended, derived from whether any
// tool_use event was observed.
type StopReason string

const (
	StopReasonEndTurn StopReason = "end_turn"
	StopReasonToolUse StopReason = "tool_use"
)

// ToolUse is one fully assembled tool invocation, reassembled from its
// InputFragment pieces and parsed once at the end of the stream.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
	// RawInput is set instead of Input when the concatenated fragments
	// did not parse as JSON; degrades to {"raw": <string>}.
	RawInput string
}

// Result is the outcome of decoding a complete buffer or stream.
type Result struct {
	Texts      []string
	ToolUses   []ToolUse
	StopReason StopReason
}
