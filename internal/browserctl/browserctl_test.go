package browserctl

import (
	"log/slog"
	"testing"

	"github.com/aide-agent/aide/internal/config"
)

func TestCloseWithoutConnect(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, slog.New(slog.DiscardHandler))

	// Close before any render must be a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
