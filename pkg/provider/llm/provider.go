// Package llm defines the Provider interface for Large Language Model
// backends.
//
// VibeJournal uses an LLM in two places: the journaling assistant, which
// answers a single prompt, and the optional LLM-scored sentiment backend.
// Neither needs streaming or tool calling, so the interface is a single
// blocking completion call.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction placed before Messages.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature in [0.0, 2.0]. Zero means the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int

	// JSONObject asks the backend to constrain the reply to a single JSON
	// object. Backends without a native JSON mode add an instruction instead.
	JSONObject bool
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
	}
}
