// Package dialect holds the types shared by the three inbound
// protocol adapters (messages-style, chat/completions-style, and
// generateContent-style) and the upstream request/response shapes
// they translate to and from.
package dialect

// Kind names one of the three inbound dialects.
type Kind string

const (
	KindMessages        Kind = "messages"
	KindChatCompletions Kind = "chat_completions"
	KindGenerateContent Kind = "generate_content"
)

// TurnRole tags a normalized turn.
type TurnRole string

const (
	RoleUser       TurnRole = "user"
	RoleAssistant  TurnRole = "assistant"
	RoleToolResult TurnRole = "tool_result"
)

// Image is a base64-encoded image attachment with a declared media
// type, carried from a Dialect A multi-part content block.
type Image struct {
	MediaType string
	Data      string
}

// ToolUseCall is a tool invocation embedded in an assistant turn.
type ToolUseCall struct {
	ID        string
	Name      string
	InputJSON string // JSON-encoded arguments
}

// ToolResult is a tool's result embedded in a tool_result turn.
type ToolResult struct {
	ToolUseID string
	Content   string
}

// Turn is one entry of a NormalizedHistory.
type Turn struct {
	Role TurnRole
	Text string

	// ToolUses is set on assistant turns that invoked tools.
	ToolUses []ToolUseCall
	// ToolResults is set on tool_result turns.
	ToolResults []ToolResult
}

// ToolSpec is a tool/function definition offered to the model,
// normalized to the upstream's {name, description, inputSchema} shape.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// NormalizedRequest is the common shape every inbound adapter produces
// from its dialect-specific request body.
type NormalizedRequest struct {
	Model          string
	Stream         bool
	PseudoStream   bool
	UserContent    string // text of the final (current) user turn
	Images         []Image
	History        []Turn // excludes the current user turn
	Tools          []ToolSpec
	ToolChoice     any
	CurrentToolUse []ToolUseCall   // tool_use blocks attached to the current turn (rare, Dialect A)
	ToolResults    []ToolResult    // tool_result blocks replied to the current turn
	Metadata       map[string]string
}

// ResponseMeta carries identifiers the adapter needs to shape its
// output but which are not part of the decoded event stream itself.
type ResponseMeta struct {
	ID            string
	RequestedModel string // the external name, echoed back to the client
	ResolvedModel  string // the upstream model actually used
	Created        int64
}

// Response is a non-streaming translated response, dialect-agnostic
// at this layer; adapters marshal it to their own JSON shape.
type Response struct {
	Text       string
	ToolUses   []ToolUseCall
	StopReason string
	PromptTokens     int
	CompletionTokens int
}
