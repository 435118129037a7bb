package system

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/aide-agent/aide/internal/actions"
)

type execCall struct {
	stdin string
	name  string
	args  []string
}

func newTestSystem(t *testing.T) (*System, *[]execCall) {
	t.Helper()
	var calls []execCall
	s := New(t.TempDir(), slog.New(slog.DiscardHandler))
	s.runOut = func(ctx context.Context, stdin, name string, args ...string) (string, error) {
		calls = append(calls, execCall{stdin: stdin, name: name, args: args})
		return "clipboard text", nil
	}
	return s, &calls
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

func TestParseMemInfo(t *testing.T) {
	data := `MemTotal:       16284752 kB
MemFree:          823412 kB
MemAvailable:   10293844 kB
Buffers:          512000 kB`

	total, avail := parseMemInfo(data)
	if total != 16284752 {
		t.Errorf("total = %d", total)
	}
	if avail != 10293844 {
		t.Errorf("avail = %d", avail)
	}
}

func TestParseLoadAvg(t *testing.T) {
	if got := parseLoadAvg("0.52 0.58 0.59 1/1270 123456\n"); got != 0.52 {
		t.Errorf("load = %v", got)
	}
	if got := parseLoadAvg(""); got != 0 {
		t.Errorf("empty load = %v", got)
	}
}

func TestParseUptime(t *testing.T) {
	if got := parseUptime("35240.57 130761.92\n"); got != 35240 {
		t.Errorf("uptime = %d", got)
	}
}

func TestCollectInfo(t *testing.T) {
	s, _ := newTestSystem(t)
	info := s.CollectInfo()

	if info.CPUs <= 0 {
		t.Errorf("CPUs = %d", info.CPUs)
	}
	if info.OS == "" || info.Arch == "" || info.GoVersion == "" {
		t.Errorf("incomplete info: %+v", info)
	}
}

func TestSystemInfoAction(t *testing.T) {
	s, _ := newTestSystem(t)
	act := findAction(t, s.Actions(), "system_info")

	got, err := act.Handler(context.Background(), actions.Params{})
	if err != nil {
		t.Fatalf("system_info: %v", err)
	}
	if !strings.Contains(got, "CPUs") {
		t.Errorf("result = %q", got)
	}
}

func TestClipboardWrite(t *testing.T) {
	s, calls := newTestSystem(t)
	act := findAction(t, s.Actions(), "clipboard_write")

	if _, err := act.Handler(context.Background(), actions.Params{"text": "hello"}); err != nil {
		t.Fatalf("clipboard_write: %v", err)
	}
	if len(*calls) != 1 || (*calls)[0].stdin != "hello" {
		t.Errorf("calls = %+v", *calls)
	}
}

func TestClipboardRead(t *testing.T) {
	s, _ := newTestSystem(t)
	act := findAction(t, s.Actions(), "clipboard_read")

	got, err := act.Handler(context.Background(), actions.Params{})
	if err != nil {
		t.Fatalf("clipboard_read: %v", err)
	}
	if got != "clipboard text" {
		t.Errorf("result = %q", got)
	}
}

func TestSetVolume_Bounds(t *testing.T) {
	s, calls := newTestSystem(t)
	act := findAction(t, s.Actions(), "set_volume")

	for _, bad := range []float64{-1, 101} {
		if _, err := act.Handler(context.Background(), actions.Params{"level": bad}); err == nil {
			t.Errorf("level %v accepted, want error", bad)
		}
	}
	if len(*calls) != 0 {
		t.Errorf("out-of-range volume still executed: %v", *calls)
	}

	got, err := act.Handler(context.Background(), actions.Params{"level": float64(40)})
	if err != nil {
		t.Fatalf("set_volume: %v", err)
	}
	if !strings.Contains(got, "40%") {
		t.Errorf("result = %q", got)
	}
}

func TestTakeScreenshot_SavesToWorkspace(t *testing.T) {
	s, calls := newTestSystem(t)
	act := findAction(t, s.Actions(), "take_screenshot")

	got, err := act.Handler(context.Background(), actions.Params{})
	if err != nil {
		t.Fatalf("take_screenshot: %v", err)
	}
	if !strings.Contains(got, s.workspace) {
		t.Errorf("result = %q, want path under workspace", got)
	}
	if len(*calls) != 1 {
		t.Errorf("calls = %+v", *calls)
	}
}
