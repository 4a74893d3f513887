// Package upstream builds requests for, and dispatches them to, the
// AWS-hosted generateAssistantResponse endpoint and decodes its
// binary event-stream replies.
package upstream

// Request is the nested structure the upstream endpoint expects.
// Field names and nesting mirror the upstream wire contract exactly
// (not Go convention) because they are marshaled to JSON verbatim.
type Request struct {
	ConversationState ConversationState `json:"conversationState"`
}

type ConversationState struct {
	AgentContinuationID string         `json:"agentContinuationId"`
	AgentTaskType        string         `json:"agentTaskType"`
	ChatTriggerType      string         `json:"chatTriggerType"`
	ConversationID       string         `json:"conversationId"`
	CurrentMessage       CurrentMessage `json:"currentMessage"`
	History              []HistoryTurn  `json:"history"`
}

type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

type UserInputMessage struct {
	Content                string                 `json:"content"`
	ModelID                string                 `json:"modelId"`
	Origin                 string                 `json:"origin"`
	UserInputMessageContext UserInputMessageContext `json:"userInputMessageContext"`
	Images                 []ImageAttachment      `json:"images,omitempty"`
}

type UserInputMessageContext struct {
	Tools       []ToolSchema  `json:"tools,omitempty"`
	ToolResults []ToolResult  `json:"toolResults,omitempty"`
}

type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ToolResult struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
}

type ImageAttachment struct {
	Format string `json:"format"`
	Bytes  string `json:"bytes"` // base64
}

// HistoryTurn is one alternating user/assistant entry in History.
// Exactly one of UserInputMessage / AssistantResponseMessage is set.
type HistoryTurn struct {
	UserInputMessage        *UserInputMessage        `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type AssistantResponseMessage struct {
	Content  string         `json:"content"`
	ToolUses []ToolUseFrame `json:"toolUses,omitempty"`
}

type ToolUseFrame struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     string `json:"input"` // JSON-encoded arguments
}

// Origin and trigger constants matching the upstream contract.
const (
	OriginAIEditor          = "AI_EDITOR"
	AgentTaskTypeVibe        = "vibe"
	ChatTriggerTypeManual    = "MANUAL"
)
