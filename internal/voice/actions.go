package voice

import (
	"context"

	"github.com/aide-agent/aide/internal/actions"
)

func (e *Engine) speakAction(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	if err := e.Speak(ctx, text); err != nil {
		return "", err
	}
	return "Spoken.", nil
}

func (e *Engine) startListeningAction(ctx context.Context, p actions.Params) (string, error) {
	e.StartListening()
	if e.Speaking() {
		return "Listening will resume after speech finishes.", nil
	}
	return "Listening.", nil
}

func (e *Engine) stopListeningAction(ctx context.Context, p actions.Params) (string, error) {
	e.StopListening()
	return "Stopped listening.", nil
}

// Actions returns the voice action set.
func (e *Engine) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "speak", Description: "Speak text aloud", Handler: e.speakAction},
		{Name: "start_listening", Description: "Start voice listening", Handler: e.startListeningAction},
		{Name: "stop_listening", Description: "Stop voice listening", Handler: e.stopListeningAction},
	}
}
