// Package messages implements the Dialect A (messages-style, with
// tool-use content blocks) inbound adapter.
package messages

import (
	"encoding/json"
	"fmt"

	"kiroproxy/gateway/pkg/dialect"
)

// Request is the inbound wire shape for POST /v1/messages.
type Request struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	Messages  []Message       `json:"messages"`
	Stream    bool            `json:"stream,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Tools     []Tool          `json:"tools,omitempty"`
}

type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"` // string or []Block
}

// Block is a multi-part content block; only the fields relevant to
// its Type are populated.
type Block struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToUpstream parses raw as a Request and produces the common
// NormalizedRequest. The top-level system string is prepended to the
// first user turn's text; multi-part content blocks are flattened per
// spec §4.3.
func ToUpstream(raw json.RawMessage) (*dialect.NormalizedRequest, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("messages: decode request: %w", err)
	}

	nr := &dialect.NormalizedRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}
	for _, t := range req.Tools {
		nr.Tools = append(nr.Tools, dialect.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	turns := make([]dialect.Turn, 0, len(req.Messages))
	firstUserSeen := false

	for _, m := range req.Messages {
		blocks, err := parseContent(m.Content)
		if err != nil {
			return nil, fmt.Errorf("messages: decode content: %w", err)
		}

		switch m.Role {
		case "user":
			turn, images := flattenUserBlocks(blocks)
			if !firstUserSeen && req.System != "" {
				turn.Text = req.System + "\n\n" + turn.Text
				firstUserSeen = true
			}
			if len(turn.ToolResults) > 0 {
				turns = append(turns, dialect.Turn{Role: dialect.RoleToolResult, ToolResults: turn.ToolResults})
			}
			if turn.Text != "" || len(images) > 0 {
				turns = append(turns, dialect.Turn{Role: dialect.RoleUser, Text: turn.Text})
				nr.Images = append(nr.Images, images...)
			}
		case "assistant":
			turn := flattenAssistantBlocks(blocks)
			turns = append(turns, turn)
		}
	}

	if len(turns) > 0 && turns[len(turns)-1].Role == dialect.RoleUser {
		nr.UserContent = turns[len(turns)-1].Text
		turns = turns[:len(turns)-1]
	}
	nr.History = turns

	return nr, nil
}

func parseContent(raw json.RawMessage) ([]Block, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []Block{{Type: "text", Text: asString}}, nil
	}
	var blocks []Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func flattenUserBlocks(blocks []Block) (dialect.Turn, []dialect.Image) {
	var turn dialect.Turn
	var images []dialect.Image
	var texts []string

	for _, b := range blocks {
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "image":
			if b.Source != nil {
				images = append(images, dialect.Image{MediaType: b.Source.MediaType, Data: b.Source.Data})
			}
		case "tool_result":
			content := rawContentToString(b.Content)
			turn.ToolResults = append(turn.ToolResults, dialect.ToolResult{ToolUseID: b.ToolUseID, Content: content})
		}
	}
	turn.Text = joinTexts(texts)
	return turn, images
}

func flattenAssistantBlocks(blocks []Block) dialect.Turn {
	turn := dialect.Turn{Role: dialect.RoleAssistant}
	var texts []string

	for _, b := range blocks {
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "tool_use":
			inputJSON, _ := json.Marshal(b.Input)
			turn.ToolUses = append(turn.ToolUses, dialect.ToolUseCall{ID: b.ID, Name: b.Name, InputJSON: string(inputJSON)})
		}
	}
	turn.Text = joinTexts(texts)
	return turn
}

func rawContentToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func joinTexts(texts []string) string {
	out := ""
	for i, t := range texts {
		if i > 0 {
			out += "\n"
		}
		out += t
	}
	return out
}
