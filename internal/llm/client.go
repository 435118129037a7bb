// Package llm provides hosted LLM client implementations.
package llm

import "context"

// Client is the interface chat consumers depend on. The concrete Groq
// client also implements audio transcription (see [GroqClient.Transcribe]),
// which voice capture uses directly.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
