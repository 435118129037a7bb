// Package aiassist implements text-transformation actions that go
// straight to the language model without touching the action catalog:
// summarize, translate, sentiment, code generation, and debugging help.
package aiassist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/llm"
)

// Assist wraps the model client for one-shot text tasks.
type Assist struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

func New(client llm.Client, model string, logger *slog.Logger) *Assist {
	return &Assist{client: client, model: model, logger: logger}
}

// complete runs one system+user exchange and returns the reply text.
func (a *Assist) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.Chat(ctx, a.model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, &llm.Options{Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return out, nil
}

func (a *Assist) summarize(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	return a.complete(ctx,
		"You are a precise summarizer. Produce a short summary followed by 3-5 bullet points of key facts.",
		text)
}

func (a *Assist) translate(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	target, err := p.String("language")
	if err != nil {
		return "", err
	}
	return a.complete(ctx,
		fmt.Sprintf("Translate the user's text into %s. Output only the translation.", target),
		text)
}

func (a *Assist) sentiment(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	return a.complete(ctx,
		"Classify the sentiment of the user's text as positive, negative, or neutral, then give a one-sentence justification.",
		text)
}

func (a *Assist) generateCode(ctx context.Context, p actions.Params) (string, error) {
	description, err := p.String("description")
	if err != nil {
		return "", err
	}
	language := p.StringOr("language", "python")
	return a.complete(ctx,
		fmt.Sprintf("You are an expert %s programmer. Write clean, working %s code for the user's request. Output a single code block with a brief explanation.", language, language),
		description)
}

func (a *Assist) debugCode(ctx context.Context, p actions.Params) (string, error) {
	code, err := p.String("code")
	if err != nil {
		return "", err
	}
	problem := p.StringOr("error", "")

	prompt := code
	if problem != "" {
		prompt = fmt.Sprintf("Code:\n%s\n\nObserved error:\n%s", code, problem)
	}
	return a.complete(ctx,
		"You are a debugging assistant. Identify the bug, explain the cause in one or two sentences, and show the corrected code.",
		prompt)
}

// Actions returns the AI assistance action set.
func (a *Assist) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "summarize_document", Description: "Summarize a piece of text", Handler: a.summarize},
		{Name: "translate_text", Description: "Translate text into a target language", Handler: a.translate},
		{Name: "analyze_sentiment", Description: "Classify the sentiment of text", Handler: a.sentiment},
		{Name: "generate_code", Description: "Generate code from a description", Handler: a.generateCode},
		{Name: "debug_code", Description: "Find and fix a bug in code", Handler: a.debugCode},
	}
}
