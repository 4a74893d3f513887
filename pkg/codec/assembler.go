package codec

// ToolAssembler reassembles tool-use fragments that arrive as separate
// EventToolUse events sharing a ToolUseID into finished ToolUse
// values, preserving first-seen order. It is the public counterpart
// of the accumulation Decoder does internally for DecodeAll/Flush —
// exposed so callers translating a live event channel (true-stream
// mode) can assemble tool calls without buffering the whole body.
type ToolAssembler struct {
	accs  map[string]*toolAccumulator
	order []string
}

// NewToolAssembler returns an empty ToolAssembler.
func NewToolAssembler() *ToolAssembler {
	return &ToolAssembler{accs: make(map[string]*toolAccumulator)}
}

// Add feeds one EventToolUse event into the assembler. Events of any
// other type are ignored.
func (a *ToolAssembler) Add(ev *Event) {
	if ev == nil || ev.Type != EventToolUse {
		return
	}
	acc, ok := a.accs[ev.ToolUseID]
	if !ok {
		acc = &toolAccumulator{id: ev.ToolUseID}
		a.accs[ev.ToolUseID] = acc
		a.order = append(a.order, ev.ToolUseID)
	}
	if ev.ToolName != "" && acc.name == "" {
		acc.name = ev.ToolName
	}
	if ev.InputFragment != "" {
		acc.parts = append(acc.parts, ev.InputFragment)
	}
}

// Finish parses every accumulator's concatenated input and returns the
// finished tool uses in first-seen order.
func (a *ToolAssembler) Finish() []ToolUse {
	out := make([]ToolUse, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, finalizeToolUse(a.accs[id]))
	}
	return out
}

// HasAny reports whether any tool use has been observed.
func (a *ToolAssembler) HasAny() bool {
	return len(a.order) > 0
}
