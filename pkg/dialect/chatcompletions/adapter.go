// Package chatcompletions implements the Dialect B (chat/completions
// style, OpenAI-shaped function calls) inbound adapter.
package chatcompletions

import (
	"encoding/json"
	"fmt"

	"kiroproxy/gateway/pkg/dialect"
)

type Request struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
}

type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToUpstream parses raw as a Request. system role is absorbed into the
// first user turn; content arrays of typed parts are flattened to
// text; tool role messages become tool_result turns.
func ToUpstream(raw json.RawMessage) (*dialect.NormalizedRequest, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("chatcompletions: decode request: %w", err)
	}

	nr := &dialect.NormalizedRequest{Model: req.Model, Stream: req.Stream, ToolChoice: req.ToolChoice}
	for _, t := range req.Tools {
		nr.Tools = append(nr.Tools, dialect.ToolSpec{Name: t.Function.Name, Description: t.Function.Description, InputSchema: t.Function.Parameters})
	}

	var turns []dialect.Turn
	var pendingSystem string
	firstUserSeen := false

	for _, m := range req.Messages {
		text := contentToText(m.Content)
		switch m.Role {
		case "system":
			pendingSystem = text
		case "user":
			if !firstUserSeen && pendingSystem != "" {
				text = pendingSystem + "\n\n" + text
				firstUserSeen = true
			}
			turns = append(turns, dialect.Turn{Role: dialect.RoleUser, Text: text})
		case "assistant":
			turn := dialect.Turn{Role: dialect.RoleAssistant, Text: text}
			for _, tc := range m.ToolCalls {
				turn.ToolUses = append(turn.ToolUses, dialect.ToolUseCall{ID: tc.ID, Name: tc.Function.Name, InputJSON: tc.Function.Arguments})
			}
			turns = append(turns, turn)
		case "tool":
			turns = append(turns, dialect.Turn{
				Role:        dialect.RoleToolResult,
				ToolResults: []dialect.ToolResult{{ToolUseID: m.ToolCallID, Content: text}},
			})
		}
	}

	if len(turns) > 0 && turns[len(turns)-1].Role == dialect.RoleUser {
		nr.UserContent = turns[len(turns)-1].Text
		turns = turns[:len(turns)-1]
	}
	nr.History = turns
	return nr, nil
}

func contentToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []map[string]any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	out := ""
	for i, p := range parts {
		if p["type"] != "text" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n"
		}
		if t, ok := p["text"].(string); ok {
			out += t
		}
	}
	return out
}
