// Package generatecontent implements the Dialect C (generateContent
// style) inbound adapter.
package generatecontent

import (
	"encoding/json"
	"fmt"

	"kiroproxy/gateway/pkg/dialect"
)

type Request struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"` // "user" | "model"
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text,omitempty"`
}

// ToUpstream parses raw as a Request. contents[*].role in {user, model}
// maps to {user, assistant}; parts with text are concatenated; a
// top-level systemInstruction is absorbed into the first user turn.
// stream is true for requests arriving on the :streamGenerateContent
// path, since Gemini signals streaming via the URL rather than a body
// field.
func ToUpstream(raw json.RawMessage, model string, stream bool) (*dialect.NormalizedRequest, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("generatecontent: decode request: %w", err)
	}

	nr := &dialect.NormalizedRequest{Model: model, Stream: stream}
	var system string
	if req.SystemInstruction != nil {
		system = joinParts(req.SystemInstruction.Parts)
	}

	var turns []dialect.Turn
	firstUserSeen := false
	for _, c := range req.Contents {
		text := joinParts(c.Parts)
		role := dialect.RoleAssistant
		if c.Role == "user" || c.Role == "" {
			role = dialect.RoleUser
		}
		if role == dialect.RoleUser && !firstUserSeen && system != "" {
			text = system + "\n\n" + text
			firstUserSeen = true
		}
		turns = append(turns, dialect.Turn{Role: role, Text: text})
	}

	if len(turns) > 0 && turns[len(turns)-1].Role == dialect.RoleUser {
		nr.UserContent = turns[len(turns)-1].Text
		turns = turns[:len(turns)-1]
	}
	nr.History = turns
	return nr, nil
}

func joinParts(parts []Part) string {
	out := ""
	for _, p := range parts {
		out += p.Text
	}
	return out
}
