package llm

import "time"

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-request model parameters.
type Options struct {
	// Temperature controls sampling randomness (0 = provider default).
	Temperature float64
	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int
	// JSONMode asks the provider to return a single JSON object.
	JSONMode bool
}

// ChatResponse is the provider-neutral response. Wire format conversion
// happens at the provider boundary (groq.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Content   string

	// Token usage.
	InputTokens  int
	OutputTokens int
}
