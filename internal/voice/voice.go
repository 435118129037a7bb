// Package voice provides text-to-speech and audio transcription with
// explicit speaking/listening state. Speaking and listening are
// mutually exclusive: starting playback pauses capture so the
// assistant does not transcribe its own voice, and capture resumes
// when playback ends.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/aide-agent/aide/internal/config"
	"github.com/aide-agent/aide/internal/events"
)

// Transcriber converts captured audio to text. The Groq client's
// whisper endpoint implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, model, filename string, audio io.Reader) (string, error)
}

// runner executes the TTS command. Injectable for tests.
type runner func(ctx context.Context, name string, args ...string) error

// Engine holds voice state and drives the local TTS command.
type Engine struct {
	cfg          config.VoiceConfig
	whisperModel string
	transcriber  Transcriber
	bus          *events.Bus
	logger       *slog.Logger
	run          runner

	mu        sync.Mutex
	speaking  bool
	listening bool
	// resumeListen remembers that capture was active when playback
	// started, so StopSpeaking can restore it.
	resumeListen bool
}

// New creates a voice engine. transcriber and bus may be nil; Speak
// still works without them.
func New(cfg config.VoiceConfig, whisperModel string, transcriber Transcriber, bus *events.Bus, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		whisperModel: whisperModel,
		transcriber:  transcriber,
		bus:          bus,
		logger:       logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// engineCommand picks the TTS command and arguments for this platform.
func (e *Engine) engineCommand(text string) (string, []string) {
	engine := e.cfg.Engine
	if engine == "" {
		if runtime.GOOS == "darwin" {
			engine = "say"
		} else {
			engine = "espeak-ng"
		}
	}

	switch engine {
	case "say":
		return engine, []string{text}
	default:
		args := []string{}
		if e.cfg.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(e.cfg.Rate))
		}
		return engine, append(args, text)
	}
}

// ErrDisabled reports that voice output is turned off in the config.
// Callers that treat speech as best-effort should swallow it.
var ErrDisabled = errors.New("voice is disabled")

// Speak synthesizes text aloud, pausing capture for the duration.
// Returns ErrDisabled when voice output is turned off.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if !e.cfg.Enabled {
		return ErrDisabled
	}

	e.beginSpeaking()
	defer e.endSpeaking()

	name, args := e.engineCommand(text)
	e.logger.Debug("speaking", "engine", name, "chars", len(text))
	if err := e.run(ctx, name, args...); err != nil {
		return fmt.Errorf("tts %s: %w", name, err)
	}
	return nil
}

// Notify satisfies the scheduler's notifier contract. Speech is
// best-effort here: a disabled engine swallows the notification rather
// than failing every reminder.
func (e *Engine) Notify(ctx context.Context, text string) error {
	err := e.Speak(ctx, "Reminder: "+text)
	if errors.Is(err, ErrDisabled) {
		return nil
	}
	return err
}

func (e *Engine) beginSpeaking() {
	e.mu.Lock()
	e.speaking = true
	e.resumeListen = e.listening
	if e.listening {
		e.listening = false
		e.bus.Emit(events.SourceVoice, events.KindListening, map[string]any{"active": false})
	}
	e.mu.Unlock()
	e.bus.Emit(events.SourceVoice, events.KindSpeaking, map[string]any{"active": true})
}

func (e *Engine) endSpeaking() {
	e.mu.Lock()
	e.speaking = false
	if e.resumeListen {
		e.listening = true
		e.resumeListen = false
		e.bus.Emit(events.SourceVoice, events.KindListening, map[string]any{"active": true})
	}
	e.mu.Unlock()
	e.bus.Emit(events.SourceVoice, events.KindSpeaking, map[string]any{"active": false})
}

// StartListening marks capture active. While speaking, the request is
// deferred: capture resumes automatically when playback ends.
func (e *Engine) StartListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speaking {
		e.resumeListen = true
		return
	}
	if !e.listening {
		e.listening = true
		e.bus.Emit(events.SourceVoice, events.KindListening, map[string]any{"active": true})
	}
}

// StopListening marks capture inactive and cancels any deferred resume.
func (e *Engine) StopListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeListen = false
	if e.listening {
		e.listening = false
		e.bus.Emit(events.SourceVoice, events.KindListening, map[string]any{"active": false})
	}
}

// Speaking reports whether playback is in progress.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Listening reports whether capture is active.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Transcribe converts uploaded audio to text via the configured
// transcriber.
func (e *Engine) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("transcription not configured")
	}
	text, err := e.transcriber.Transcribe(ctx, e.whisperModel, filename, audio)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}
