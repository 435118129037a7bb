package aiassist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/llm"
)

// fakeLLM records the last request and returns a canned reply.
type fakeLLM struct {
	reply    string
	err      error
	model    string
	messages []llm.Message
	opts     *llm.Options
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.ChatResponse, error) {
	f.model = model
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply}, nil
}

func (f *fakeLLM) Ping(ctx context.Context) error { return nil }

func findAction(t *testing.T, set []*actions.Action, name string) *actions.Action {
	t.Helper()
	for _, a := range set {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("action %q not found", name)
	return nil
}

func TestSummarize(t *testing.T) {
	client := &fakeLLM{reply: "Short summary.\n- point"}
	a := New(client, "test-model", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "summarize_document")

	got, err := act.Handler(context.Background(), actions.Params{"text": "a long article"})
	if err != nil {
		t.Fatalf("summarize_document: %v", err)
	}
	if got != "Short summary.\n- point" {
		t.Errorf("result = %q", got)
	}
	if client.model != "test-model" {
		t.Errorf("model = %q", client.model)
	}
	if len(client.messages) != 2 || client.messages[0].Role != "system" {
		t.Errorf("messages = %+v", client.messages)
	}
	if client.messages[1].Content != "a long article" {
		t.Errorf("user message = %q", client.messages[1].Content)
	}
	if client.opts.JSONMode {
		t.Error("free-text task requested JSON mode")
	}
}

func TestTranslate_TargetInPrompt(t *testing.T) {
	client := &fakeLLM{reply: "Hola"}
	a := New(client, "m", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "translate_text")

	if _, err := act.Handler(context.Background(), actions.Params{
		"text": "Hello", "language": "Spanish",
	}); err != nil {
		t.Fatalf("translate_text: %v", err)
	}
	if !strings.Contains(client.messages[0].Content, "Spanish") {
		t.Errorf("system prompt = %q", client.messages[0].Content)
	}
}

func TestTranslate_MissingLanguage(t *testing.T) {
	a := New(&fakeLLM{reply: "x"}, "m", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "translate_text")

	if _, err := act.Handler(context.Background(), actions.Params{"text": "Hello"}); !errors.Is(err, actions.ErrMissingParam) {
		t.Errorf("err = %v, want ErrMissingParam", err)
	}
}

func TestDebugCode_IncludesError(t *testing.T) {
	client := &fakeLLM{reply: "off-by-one; fix: ..."}
	a := New(client, "m", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "debug_code")

	if _, err := act.Handler(context.Background(), actions.Params{
		"code":  "for i := 0; i <= len(s); i++ {}",
		"error": "index out of range",
	}); err != nil {
		t.Fatalf("debug_code: %v", err)
	}
	user := client.messages[1].Content
	if !strings.Contains(user, "index out of range") || !strings.Contains(user, "for i := 0") {
		t.Errorf("user message = %q", user)
	}
}

func TestModelErrorSurfaces(t *testing.T) {
	a := New(&fakeLLM{err: errors.New("rate limited")}, "m", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "analyze_sentiment")

	if _, err := act.Handler(context.Background(), actions.Params{"text": "meh"}); err == nil {
		t.Fatal("expected model error to surface")
	}
}

func TestEmptyReplyIsError(t *testing.T) {
	a := New(&fakeLLM{reply: "  \n"}, "m", slog.New(slog.DiscardHandler))
	act := findAction(t, a.Actions(), "generate_code")

	if _, err := act.Handler(context.Background(), actions.Params{"description": "fizzbuzz"}); err == nil {
		t.Fatal("expected error on empty reply")
	}
}
