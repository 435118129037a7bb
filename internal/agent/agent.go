// Package agent implements the reasoning client: it turns a user
// utterance plus recent conversation context into a natural-language
// reply and a list of action requests, then dispatches those actions.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/events"
	"github.com/aide-agent/aide/internal/llm"
	"github.com/aide-agent/aide/internal/store"
)

// historyWindow is how many recent conversation turns are sent as
// context with each request.
const historyWindow = 10

// Reply is the aggregate outcome of one chat request.
type Reply struct {
	// Response is the natural-language answer for the user.
	Response string `json:"response"`
	// Results mirror the model's action requests in order.
	Results []actions.Result `json:"actions_executed"`
}

// Agent coordinates the LLM, the conversation store, and the dispatcher.
type Agent struct {
	client   llm.Client
	model    string
	registry *actions.Registry
	store    *store.Store
	bus      *events.Bus
	logger   *slog.Logger
}

// New creates an Agent. bus may be nil.
func New(client llm.Client, model string, registry *actions.Registry, st *store.Store, bus *events.Bus, logger *slog.Logger) *Agent {
	return &Agent{
		client:   client,
		model:    model,
		registry: registry,
		store:    st,
		bus:      bus,
		logger:   logger,
	}
}

// Process handles one user utterance: persist it, query the model with
// a bounded history window, parse the structured reply, dispatch the
// requested actions, persist the assistant reply, and return the
// aggregate. Model or network failure surfaces as a single error; it is
// not retried here.
func (a *Agent) Process(ctx context.Context, message string) (*Reply, error) {
	requestID := newRequestID()
	start := time.Now()
	a.bus.Emit(events.SourceAgent, events.KindChatStart, map[string]any{
		"request_id":  requestID,
		"message_len": len(message),
	})

	history, err := a.store.RecentTurns(ctx, historyWindow)
	if err != nil {
		// History is context, not correctness. Proceed without it.
		a.logger.Warn("loading conversation history failed", "error", err)
	}

	if _, err := a.store.AppendTurn(ctx, "user", message, ""); err != nil {
		a.logger.Warn("persisting user turn failed", "error", err)
	}

	messages := a.buildMessages(history, message)
	resp, err := a.client.Chat(ctx, a.model, messages, &llm.Options{
		Temperature: 0.7,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	parsed := ParseReply(resp.Content)
	a.logger.Debug("model reply parsed",
		"request_id", requestID,
		"actions", len(parsed.Actions),
		"response_len", len(parsed.Response),
	)

	results := a.registry.Dispatch(ctx, parsed.Actions)

	reply := &Reply{
		Response: parsed.Response,
		Results:  results,
	}

	if _, err := a.store.AppendTurn(ctx, "assistant", reply.Response, ""); err != nil {
		a.logger.Warn("persisting assistant turn failed", "error", err)
	}

	a.bus.Emit(events.SourceAgent, events.KindChatComplete, map[string]any{
		"request_id": requestID,
		"actions":    len(results),
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	return reply, nil
}

// buildMessages assembles the system prompt, the history window, and
// the current utterance.
func (a *Agent) buildMessages(history []store.Turn, message string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: a.systemPrompt(),
	})

	for _, turn := range history {
		role := turn.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: message})
	return messages
}

// systemPrompt embeds the action catalog and the required output shape.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are aide, a local desktop assistant. You help the user by answering
in natural language and, when the request calls for it, by executing
actions on their machine.

Respond with a single JSON object of this exact shape:

{
  "response": "<natural language reply for the user>",
  "actions": [
    {"type": "<action name>", "parameters": {<named arguments>}}
  ]
}

The "actions" list may be empty when no action is needed. Only use
action names from the catalog below, with the documented parameters.
Never invent action names.

Available actions:
`)
	b.WriteString(a.registry.Catalog())
	return b.String()
}

// newRequestID returns a short correlation id for logs and events.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "r_" + strings.Split(id.String(), "-")[0]
}
