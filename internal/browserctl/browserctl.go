// Package browserctl manages a headless Chrome session used for
// JavaScript-rendered page scraping. The browser is launched lazily on
// first use and shared across calls.
package browserctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/aide-agent/aide/internal/config"
)

// renderTimeout caps one page render end to end.
const renderTimeout = 45 * time.Second

// Manager owns the shared browser connection.
type Manager struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

func NewManager(cfg config.BrowserConfig, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// ensure connects to the configured DevTools endpoint, launching a
// headless browser when none is configured. Caller must hold m.mu.
func (m *Manager) ensure(ctx context.Context) (*rod.Browser, error) {
	if m.browser != nil {
		return m.browser, nil
	}

	controlURL := m.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(m.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		m.launched = l
		controlURL = u
		m.logger.Info("headless browser launched", "control_url", controlURL)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	m.browser = browser
	return browser, nil
}

// RenderHTML loads a page, waits for it to settle, and returns the
// post-JavaScript document HTML.
func (m *Manager) RenderHTML(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	browser, err := m.ensure(ctx)
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	// Give SPAs a moment to hydrate after the load event.
	if err := page.WaitIdle(3 * time.Second); err != nil {
		m.logger.Debug("page did not go idle", "url", url, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close disconnects the browser and kills the launched process.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launched != nil {
		m.launched.Cleanup()
		m.launched = nil
	}
	return err
}
