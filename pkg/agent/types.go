package agent

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// State is the control loop phase.
type State string

const (
	StateIdle       State = "idle"
	StateThinking   State = "thinking"
	StateActing     State = "acting"
	StateTerminated State = "terminated"
)

// TerminateTool is the reserved capability that ends a run.
const TerminateTool = "terminate"

// ToolCall represents a tool invocation requested by the reasoning provider.
// Raw keeps the provider's argument text; Arguments is nil when it did not
// decode to a JSON object.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Raw       string                 `json:"-"`
}

// Malformed reports whether the arguments could not be decoded.
func (tc ToolCall) Malformed() bool {
	return tc.Arguments == nil && tc.Raw != ""
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Message is one conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// HasToolCall reports whether the message requests a tool named in names.
func (m Message) HasToolCall(names ...string) bool {
	for _, tc := range m.ToolCalls {
		for _, n := range names {
			if tc.Name == n {
				return true
			}
		}
	}
	return false
}
