package codec

import (
	"bytes"
	"context"
	"io"
)

// StreamFrames reads r incrementally and emits one Event per complete
// frame as soon as it is decoded, without buffering the whole body —
// the pull-based streaming translation the design notes call for. The
// returned channel is closed when r is exhausted, the context is
// canceled, or a read error occurs; callers distinguish these only by
// the channel closing (there is nothing else to report: the wire
// format gives no trailer signaling success vs. truncation).
func StreamFrames(ctx context.Context, r io.Reader) <-chan *Event {
	out := make(chan *Event)
	go func() {
		defer close(out)
		var buf bytes.Buffer
		chunk := make([]byte, 4096)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := r.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
				drainFrames(&buf, out, ctx)
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// drainFrames parses every complete frame currently in buf, sends the
// resulting events, and leaves any partial trailing frame buffered.
func drainFrames(buf *bytes.Buffer, out chan<- *Event, ctx context.Context) {
	raw := buf.Bytes()
	pos := 0
	for {
		frame, n, ok := parseFrame(raw[pos:])
		if !ok {
			break
		}
		pos += n
		if frame == nil {
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
	remaining := make([]byte, len(raw)-pos)
	copy(remaining, raw[pos:])
	buf.Reset()
	buf.Write(remaining)
}
