package input

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aide-agent/aide/internal/actions"
)

func newTestController(t *testing.T) (*Controller, *[][]string) {
	t.Helper()
	var calls [][]string
	c := New(slog.New(slog.DiscardHandler))
	c.runOut = func(ctx context.Context, name string, args ...string) (string, error) {
		calls = append(calls, append([]string{name}, args...))
		return "", nil
	}
	return c, &calls
}

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

func TestTypeText(t *testing.T) {
	c, calls := newTestController(t)

	if err := c.TypeText(context.Background(), "hello world"); err != nil {
		t.Fatalf("TypeText: %v", err)
	}
	got := strings.Join((*calls)[0], " ")
	if got != "xdotool type --delay 30 hello world" {
		t.Errorf("command = %q", got)
	}
}

func TestParseMouseLocation(t *testing.T) {
	p, err := parseMouseLocation("x:812 y:431 screen:0 window:56623114\n")
	if err != nil {
		t.Fatalf("parseMouseLocation: %v", err)
	}
	if p.X != 812 || p.Y != 431 {
		t.Errorf("point = %+v", p)
	}

	if _, err := parseMouseLocation("garbage"); err == nil {
		t.Fatal("expected error for unparseable output")
	}
}

func TestScreenSize(t *testing.T) {
	c, _ := newTestController(t)
	c.runOut = func(ctx context.Context, name string, args ...string) (string, error) {
		return "1920 1080\n", nil
	}

	size, err := c.ScreenSize(context.Background())
	if err != nil {
		t.Fatalf("ScreenSize: %v", err)
	}
	if size.Width != 1920 || size.Height != 1080 {
		t.Errorf("size = %+v", size)
	}
}

func TestClickMouse_WithCoordinates(t *testing.T) {
	c, calls := newTestController(t)
	act := findAction(t, c.Actions(), "click_mouse")

	if _, err := act.Handler(context.Background(), actions.Params{
		"x": float64(10), "y": float64(20), "button": "right",
	}); err != nil {
		t.Fatalf("click_mouse: %v", err)
	}
	got := strings.Join((*calls)[0], " ")
	if got != "xdotool mousemove 10 20 click 3" {
		t.Errorf("command = %q", got)
	}
}

func TestClickMouse_DefaultButton(t *testing.T) {
	c, calls := newTestController(t)
	act := findAction(t, c.Actions(), "click_mouse")

	if _, err := act.Handler(context.Background(), actions.Params{}); err != nil {
		t.Fatalf("click_mouse: %v", err)
	}
	got := strings.Join((*calls)[0], " ")
	if got != "xdotool click 1" {
		t.Errorf("command = %q", got)
	}
}

func TestNavigateKeyboard_Repeats(t *testing.T) {
	c, calls := newTestController(t)
	act := findAction(t, c.Actions(), "navigate_keyboard")

	if _, err := act.Handler(context.Background(), actions.Params{
		"direction": "down", "times": float64(3),
	}); err != nil {
		t.Fatalf("navigate_keyboard: %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(*calls))
	}
	for _, call := range *calls {
		if strings.Join(call, " ") != "xdotool key Down" {
			t.Errorf("call = %v", call)
		}
	}
}

func TestNavigateKeyboard_UnknownDirection(t *testing.T) {
	c, _ := newTestController(t)
	act := findAction(t, c.Actions(), "navigate_keyboard")

	if _, err := act.Handler(context.Background(), actions.Params{"direction": "sideways"}); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestSearchInApp(t *testing.T) {
	c, calls := newTestController(t)
	act := findAction(t, c.Actions(), "search_in_app")

	if _, err := act.Handler(context.Background(), actions.Params{"query": "invoice"}); err != nil {
		t.Fatalf("search_in_app: %v", err)
	}
	want := []string{
		"xdotool key ctrl+f",
		"xdotool type --delay 30 invoice",
		"xdotool key Return",
	}
	if len(*calls) != len(want) {
		t.Fatalf("calls = %v", *calls)
	}
	for i, call := range *calls {
		if strings.Join(call, " ") != want[i] {
			t.Errorf("call %d = %v, want %q", i, call, want[i])
		}
	}
}

func TestPerformSequence(t *testing.T) {
	c, calls := newTestController(t)
	act := findAction(t, c.Actions(), "perform_sequence")

	got, err := act.Handler(context.Background(), actions.Params{
		"steps": []any{
			map[string]any{"action": "key", "value": "ctrl+l"},
			map[string]any{"action": "type", "value": "example.com"},
			map[string]any{"action": "wait", "value": float64(1)},
			map[string]any{"action": "key", "value": "Return"},
		},
	})
	if err != nil {
		t.Fatalf("perform_sequence: %v", err)
	}
	if !strings.Contains(got, "4 input steps") {
		t.Errorf("result = %q", got)
	}
	if len(*calls) != 3 {
		t.Errorf("xdotool calls = %d, want 3 (wait has none)", len(*calls))
	}
}

func TestPerformSequence_UnknownStep(t *testing.T) {
	c, _ := newTestController(t)
	act := findAction(t, c.Actions(), "perform_sequence")

	if _, err := act.Handler(context.Background(), actions.Params{
		"steps": []any{map[string]any{"action": "dance"}},
	}); err == nil {
		t.Fatal("expected error for unknown step action")
	}
}

func TestCommandFailureSurfaces(t *testing.T) {
	c, _ := newTestController(t)
	c.runOut = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("no display")
	}

	if err := c.PressKey(context.Background(), "Return"); err == nil {
		t.Fatal("expected error when xdotool fails")
	}
}
