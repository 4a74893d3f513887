package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
)

const frameHeaderSize = 12 // total_length + headers_length + prelude_crc
const frameTrailerSize = 4 // trailing crc

// toolAccumulator assembles fragmented tool-use input across frames
// sharing a ToolUseID.
type toolAccumulator struct {
	id    string
	name  string
	parts []string
}

// DecodeAll parses a complete, in-memory buffer and returns every text
// fragment, every assembled tool use, and the derived stop reason.
// Malformed trailing frames are dropped silently; it never returns an
// error because the wire format has no way to signal one past "no
// further complete frames fit in the remaining buffer".
func DecodeAll(buf []byte) Result {
	d := NewDecoder()
	texts, toolUses := d.Feed(buf)
	remaining := d.Flush()
	texts = append(texts, remaining.texts...)
	toolUses = append(toolUses, remaining.toolUses...)

	stop := StopReasonEndTurn
	if len(toolUses) > 0 {
		stop = StopReasonToolUse
	}
	return Result{Texts: texts, ToolUses: toolUses, StopReason: stop}
}

// flushResult carries the tool uses produced when a Decoder is
// finalized; there is no more buffered input after a Flush.
type flushResult struct {
	texts    []string
	toolUses []ToolUse
}

// Decoder performs incremental decoding over a stream of chunks,
// buffering any partial trailing frame between calls to Feed.
type Decoder struct {
	buf  bytes.Buffer
	accs map[string]*toolAccumulator
	// order preserves first-seen order of tool use ids so Flush can
	// report them deterministically.
	order []string
}

// NewDecoder returns a Decoder ready to accept chunks via Feed.
func NewDecoder() *Decoder {
	return &Decoder{accs: make(map[string]*toolAccumulator)}
}

// Feed appends chunk to the rolling buffer and parses every complete
// frame it now contains. It returns text fragments observed in this
// call and any tool uses that completed (their id stopped
// accumulating because a later, different-shaped frame followed) —
// in practice tool uses only finalize at Flush, since the wire format
// gives no explicit "tool use done" marker; Feed only ever returns
// text fragments, its tool-use slice is always empty. Partial
// trailing bytes remain buffered for the next call.
func (d *Decoder) Feed(chunk []byte) (texts []string, toolUses []ToolUse) {
	d.buf.Write(chunk)
	raw := d.buf.Bytes()

	pos := 0
	for {
		frame, n, ok := parseFrame(raw[pos:])
		if !ok {
			break
		}
		pos += n
		if frame == nil {
			continue // frame with a bad layout or unparseable payload: skip it and keep scanning
		}
		if frame.Type == EventAssistantText {
			texts = append(texts, frame.Text)
		} else if frame.Type == EventToolUse {
			d.accumulate(frame)
		}
	}

	// Retain only the unparsed tail.
	remaining := make([]byte, len(raw)-pos)
	copy(remaining, raw[pos:])
	d.buf.Reset()
	d.buf.Write(remaining)

	return texts, nil
}

// Flush finalizes any tool-use accumulators built so far (parsing
// their concatenated input fragments) and returns them. Call it once
// the stream has ended; any bytes still buffered after Flush are a
// truncated trailing frame and are discarded.
func (d *Decoder) Flush() flushResult {
	toolUses := make([]ToolUse, 0, len(d.order))
	for _, id := range d.order {
		acc := d.accs[id]
		toolUses = append(toolUses, finalizeToolUse(acc))
	}
	d.accs = make(map[string]*toolAccumulator)
	d.order = nil
	d.buf.Reset()
	return flushResult{toolUses: toolUses}
}

func (d *Decoder) accumulate(frame *Event) {
	acc, ok := d.accs[frame.ToolUseID]
	if !ok {
		acc = &toolAccumulator{id: frame.ToolUseID}
		d.accs[frame.ToolUseID] = acc
		d.order = append(d.order, frame.ToolUseID)
	}
	if frame.ToolName != "" && acc.name == "" {
		acc.name = frame.ToolName
	}
	if frame.InputFragment != "" {
		acc.parts = append(acc.parts, frame.InputFragment)
	}
}

func finalizeToolUse(acc *toolAccumulator) ToolUse {
	joined := strings.Join(acc.parts, "")
	var parsed map[string]any
	if err := json.Unmarshal([]byte(joined), &parsed); err != nil {
		return ToolUse{ID: acc.id, Name: acc.name, RawInput: joined}
	}
	return ToolUse{ID: acc.id, Name: acc.name, Input: parsed}
}

// parseFrame attempts to parse one frame starting at buf[0]. It
// returns the parsed event (nil for a malformed-but-skippable frame),
// the number of bytes consumed, and ok=false if buf does not contain
// a complete frame (caller should stop and keep buf for later).
func parseFrame(buf []byte) (*Event, int, bool) {
	if len(buf) < frameHeaderSize {
		return nil, 0, false
	}
	totalLen := binary.BigEndian.Uint32(buf[0:4])
	headersLen := binary.BigEndian.Uint32(buf[4:8])
	// buf[8:12] is the prelude CRC, ignored.

	if totalLen == 0 || int(totalLen) > len(buf) {
		return nil, 0, false
	}

	headerStart := frameHeaderSize
	headerEnd := headerStart + int(headersLen)
	if headerEnd > len(buf) {
		return nil, 0, false
	}

	payloadStart := headerEnd
	payloadEnd := int(totalLen) - frameTrailerSize
	if payloadEnd < payloadStart || payloadEnd > len(buf) {
		return nil, int(totalLen), true
	}

	headerType := detectEventType(buf[headerStart:headerEnd])
	event := decodePayload(buf[payloadStart:payloadEnd], headerType)
	return event, int(totalLen), true
}

func detectEventType(headers []byte) EventType {
	s := string(headers)
	switch {
	case strings.Contains(s, "toolUseEvent"):
		return EventToolUse
	case strings.Contains(s, "assistantResponseEvent"):
		return EventAssistantText
	default:
		return EventUnknown
	}
}

// decodePayload parses the payload as JSON and classifies it. Parse
// failures are silently dropped (returns nil, matching "no event
// emitted for this frame").
func decodePayload(payload []byte, hint EventType) *Event {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}

	if inner, ok := body["assistantResponseEvent"].(map[string]any); ok {
		if text, ok := inner["content"].(string); ok {
			return &Event{Type: EventAssistantText, Text: text, Raw: body}
		}
	}

	if hint != EventToolUse {
		if text, ok := body["content"].(string); ok {
			return &Event{Type: EventAssistantText, Text: text, Raw: body}
		}
	}

	if hint == EventToolUse || body["toolUseId"] != nil {
		id, _ := body["toolUseId"].(string)
		name, _ := body["name"].(string)
		input, _ := body["input"].(string)
		if id != "" {
			return &Event{Type: EventToolUse, ToolUseID: id, ToolName: name, InputFragment: input, Raw: body}
		}
	}

	return &Event{Type: EventMetadata, Raw: body}
}
