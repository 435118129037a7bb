// Package input controls the keyboard and mouse through xdotool,
// targeting whatever window has focus.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/actions"
)

func waitTimer(ms int) <-chan time.Time {
	return time.After(time.Duration(ms) * time.Millisecond)
}

// navigationKeys maps friendly direction names to X keysyms.
var navigationKeys = map[string]string{
	"up":     "Up",
	"down":   "Down",
	"left":   "Left",
	"right":  "Right",
	"tab":    "Tab",
	"enter":  "Return",
	"escape": "Escape",
	"home":   "Home",
	"end":    "End",
}

// mouseButtons maps button names to xdotool button numbers.
var mouseButtons = map[string]string{
	"left":   "1",
	"middle": "2",
	"right":  "3",
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is the display geometry.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Controller drives xdotool.
type Controller struct {
	logger *slog.Logger
	runOut func(ctx context.Context, name string, args ...string) (string, error)
}

func New(logger *slog.Logger) *Controller {
	return &Controller{
		logger: logger,
		runOut: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return string(out), err
		},
	}
}

// TypeText types text into the focused window.
func (c *Controller) TypeText(ctx context.Context, text string) error {
	if _, err := c.runOut(ctx, "xdotool", "type", "--delay", "30", text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

// PressKey presses one key or chord (e.g. "Return", "ctrl+s").
func (c *Controller) PressKey(ctx context.Context, key string) error {
	if _, err := c.runOut(ctx, "xdotool", "key", key); err != nil {
		return fmt.Errorf("press key %s: %w", key, err)
	}
	return nil
}

// MousePosition returns the current pointer location.
func (c *Controller) MousePosition(ctx context.Context) (Point, error) {
	out, err := c.runOut(ctx, "xdotool", "getmouselocation")
	if err != nil {
		return Point{}, fmt.Errorf("get mouse location: %w", err)
	}
	return parseMouseLocation(out)
}

// parseMouseLocation parses "x:100 y:200 screen:0 window:123".
func parseMouseLocation(out string) (Point, error) {
	var p Point
	found := 0
	for _, field := range strings.Fields(out) {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "x":
			p.X = n
			found++
		case "y":
			p.Y = n
			found++
		}
	}
	if found != 2 {
		return Point{}, fmt.Errorf("unexpected xdotool output %q", strings.TrimSpace(out))
	}
	return p, nil
}

// ScreenSize returns the display geometry.
func (c *Controller) ScreenSize(ctx context.Context) (Size, error) {
	out, err := c.runOut(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		return Size{}, fmt.Errorf("get display geometry: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return Size{}, fmt.Errorf("unexpected geometry output %q", strings.TrimSpace(out))
	}
	w, err1 := strconv.Atoi(fields[0])
	h, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return Size{}, fmt.Errorf("unexpected geometry output %q", strings.TrimSpace(out))
	}
	return Size{Width: w, Height: h}, nil
}

// --- actions ---

func (c *Controller) typeTextAction(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	if err := c.TypeText(ctx, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Typed %d characters.", len(text)), nil
}

func (c *Controller) pressKeyAction(ctx context.Context, p actions.Params) (string, error) {
	key, err := p.String("key")
	if err != nil {
		return "", err
	}
	if err := c.PressKey(ctx, key); err != nil {
		return "", err
	}
	return "Pressed " + key, nil
}

func (c *Controller) clickMouseAction(ctx context.Context, p actions.Params) (string, error) {
	button, ok := mouseButtons[p.StringOr("button", "left")]
	if !ok {
		return "", fmt.Errorf("unknown mouse button %q", p.StringOr("button", ""))
	}

	// Optional coordinates: move first, then click.
	if x, err := p.Int("x"); err == nil {
		y, err := p.Int("y")
		if err != nil {
			return "", err
		}
		if _, err := c.runOut(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", button); err != nil {
			return "", fmt.Errorf("click at %d,%d: %w", x, y, err)
		}
		return fmt.Sprintf("Clicked at %d,%d.", x, y), nil
	}

	if _, err := c.runOut(ctx, "xdotool", "click", button); err != nil {
		return "", fmt.Errorf("click: %w", err)
	}
	return "Clicked.", nil
}

func (c *Controller) moveMouseAction(ctx context.Context, p actions.Params) (string, error) {
	x, err := p.Int("x")
	if err != nil {
		return "", err
	}
	y, err := p.Int("y")
	if err != nil {
		return "", err
	}
	if _, err := c.runOut(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return "", fmt.Errorf("move mouse: %w", err)
	}
	return fmt.Sprintf("Moved mouse to %d,%d.", x, y), nil
}

// searchInApp opens the focused application's find bar and types the
// query.
func (c *Controller) searchInAppAction(ctx context.Context, p actions.Params) (string, error) {
	query, err := p.String("query")
	if err != nil {
		return "", err
	}
	if err := c.PressKey(ctx, "ctrl+f"); err != nil {
		return "", err
	}
	if err := c.TypeText(ctx, query); err != nil {
		return "", err
	}
	if err := c.PressKey(ctx, "Return"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Searching for %q in the focused app.", query), nil
}

func (c *Controller) navigateKeyboardAction(ctx context.Context, p actions.Params) (string, error) {
	direction, err := p.String("direction")
	if err != nil {
		return "", err
	}
	key, ok := navigationKeys[strings.ToLower(direction)]
	if !ok {
		return "", fmt.Errorf("unknown direction %q", direction)
	}
	times := p.IntOr("times", 1)
	if times < 1 {
		times = 1
	}

	for range times {
		if err := c.PressKey(ctx, key); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Pressed %s %d time(s).", key, times), nil
}

// performSequence executes a list of input steps in order. Each step
// is {"action": "type"|"key"|"wait", "value": ...}.
func (c *Controller) performSequenceAction(ctx context.Context, p actions.Params) (string, error) {
	raw, ok := p["steps"].([]any)
	if !ok {
		return "", fmt.Errorf("%w: steps", actions.ErrMissingParam)
	}

	for i, item := range raw {
		step, ok := item.(map[string]any)
		if !ok {
			return "", fmt.Errorf("step %d: not an object", i)
		}
		sp := actions.Params(step)
		kind, err := sp.String("action")
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i, err)
		}

		switch kind {
		case "type":
			value, err := sp.String("value")
			if err != nil {
				return "", fmt.Errorf("step %d: %w", i, err)
			}
			if err := c.TypeText(ctx, value); err != nil {
				return "", fmt.Errorf("step %d: %w", i, err)
			}
		case "key":
			value, err := sp.String("value")
			if err != nil {
				return "", fmt.Errorf("step %d: %w", i, err)
			}
			if err := c.PressKey(ctx, value); err != nil {
				return "", fmt.Errorf("step %d: %w", i, err)
			}
		case "wait":
			ms := sp.IntOr("value", 500)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-waitTimer(ms):
			}
		default:
			return "", fmt.Errorf("step %d: unknown action %q", i, kind)
		}
	}
	return fmt.Sprintf("Performed %d input steps.", len(raw)), nil
}

// Actions returns the input control action set.
func (c *Controller) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "type_text", Description: "Type text into the focused window", Handler: c.typeTextAction},
		{Name: "press_key", Description: "Press a key or chord (e.g. ctrl+s)", Handler: c.pressKeyAction},
		{Name: "click_mouse", Description: "Click the mouse, optionally at given coordinates", Handler: c.clickMouseAction},
		{Name: "move_mouse", Description: "Move the mouse to given coordinates", Handler: c.moveMouseAction},
		{Name: "search_in_app", Description: "Search within the focused application", Handler: c.searchInAppAction},
		{Name: "navigate_keyboard", Description: "Press a navigation key one or more times", Handler: c.navigateKeyboardAction},
		{Name: "perform_sequence", Description: "Run a sequence of type/key/wait input steps", Handler: c.performSequenceAction},
	}
}
