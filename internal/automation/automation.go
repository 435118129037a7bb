// Package automation launches applications and opens web pages through
// the desktop's default handlers.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/aide-agent/aide/internal/actions"
)

// Automation wraps the OS commands used to open apps and URLs.
type Automation struct {
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) error
}

func New(logger *slog.Logger) *Automation {
	return &Automation{
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Start()
		},
	}
}

// opener returns the platform command that hands a target to the
// desktop's default handler.
func opener() string {
	if runtime.GOOS == "darwin" {
		return "open"
	}
	return "xdg-open"
}

func (a *Automation) openURL(ctx context.Context, target string) error {
	return a.run(ctx, opener(), target)
}

func (a *Automation) openApp(ctx context.Context, p actions.Params) (string, error) {
	app, err := p.String("app")
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		if err := a.run(ctx, "open", "-a", app); err != nil {
			return "", fmt.Errorf("open %s: %w", app, err)
		}
	} else {
		if err := a.run(ctx, app); err != nil {
			return "", fmt.Errorf("launch %s: %w", app, err)
		}
	}
	a.logger.Info("application launched", "app", app)
	return "Opened " + app, nil
}

func (a *Automation) closeApp(ctx context.Context, p actions.Params) (string, error) {
	app, err := p.String("app")
	if err != nil {
		return "", err
	}
	if err := a.run(ctx, "pkill", "-f", app); err != nil {
		return "", fmt.Errorf("close %s: %w", app, err)
	}
	return "Closed " + app, nil
}

func (a *Automation) browseURL(ctx context.Context, p actions.Params) (string, error) {
	target, err := p.String("url")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}
	if err := a.openURL(ctx, target); err != nil {
		return "", fmt.Errorf("open url: %w", err)
	}
	return "Opened " + target, nil
}

func (a *Automation) search(ctx context.Context, p actions.Params, base, label string) (string, error) {
	query, err := p.String("query")
	if err != nil {
		return "", err
	}
	if err := a.openURL(ctx, base+url.QueryEscape(query)); err != nil {
		return "", fmt.Errorf("open search: %w", err)
	}
	return fmt.Sprintf("Searching %s for %q", label, query), nil
}

// Actions returns the desktop automation action set.
func (a *Automation) Actions() []*actions.Action {
	return []*actions.Action{
		{
			Name:        "open_app",
			Description: "Open a desktop application by name",
			Handler:     a.openApp,
		},
		{
			Name:        "close_app",
			Description: "Close a running application by name",
			Handler:     a.closeApp,
		},
		{
			Name:        "browse_url",
			Description: "Open a URL in the default browser",
			Handler:     a.browseURL,
		},
		{
			Name:        "search_google",
			Description: "Search Google for a query in the browser",
			Handler: func(ctx context.Context, p actions.Params) (string, error) {
				return a.search(ctx, p, "https://www.google.com/search?q=", "Google")
			},
		},
		{
			Name:        "search_wikipedia",
			Description: "Search Wikipedia for a topic in the browser",
			Handler: func(ctx context.Context, p actions.Params) (string, error) {
				return a.search(ctx, p, "https://en.wikipedia.org/wiki/Special:Search?search=", "Wikipedia")
			},
		},
		{
			Name:        "search_youtube",
			Description: "Search YouTube for videos in the browser",
			Handler: func(ctx context.Context, p actions.Params) (string, error) {
				return a.search(ctx, p, "https://www.youtube.com/results?search_query=", "YouTube")
			},
		},
	}
}
