package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func okAction(name string) *Action {
	return &Action{
		Name:        name,
		Description: "test action",
		Handler: func(ctx context.Context, p Params) (string, error) {
			return name + " done", nil
		},
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(okAction("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(okAction("a")); err == nil {
		t.Fatal("expected error registering duplicate action name")
	}
}

func TestRegister_NilHandler(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Action{Name: "a"}); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestDispatch_EmptyBatch(t *testing.T) {
	r := newTestRegistry(t)
	results := r.Dispatch(context.Background(), nil)
	if results == nil {
		t.Fatal("Dispatch(nil) should return empty slice, not nil")
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestDispatch_OrderPreserved(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"first", "second", "third"} {
		if err := r.Register(okAction(name)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	reqs := []Request{
		{Type: "third"},
		{Type: "first"},
		{Type: "second"},
	}
	results := r.Dispatch(context.Background(), reqs)

	if len(results) != len(reqs) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(reqs))
	}
	for i, req := range reqs {
		if results[i].Action != req.Type {
			t.Errorf("results[%d].Action = %q, want %q", i, results[i].Action, req.Type)
		}
		if !results[i].Success {
			t.Errorf("results[%d] failed: %s", i, results[i].Result)
		}
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	r := newTestRegistry(t)
	results := r.Dispatch(context.Background(), []Request{{Type: "warp_drive"}})

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Success {
		t.Error("unknown action should not succeed")
	}
	if !strings.Contains(results[0].Result, "unsupported") {
		t.Errorf("result = %q, want it to mention unsupported", results[0].Result)
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Action{
		Name:        "boom",
		Description: "always fails",
		Handler: func(ctx context.Context, p Params) (string, error) {
			return "", errors.New("exploded")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(okAction("after")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := r.Dispatch(context.Background(), []Request{
		{Type: "boom"},
		{Type: "after"},
	})

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Success {
		t.Error("boom should fail")
	}
	if !results[1].Success {
		t.Errorf("failure of action 0 blocked action 1: %s", results[1].Result)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Action{
		Name:        "panicky",
		Description: "panics",
		Handler: func(ctx context.Context, p Params) (string, error) {
			panic("kaboom")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(okAction("survivor")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := r.Dispatch(context.Background(), []Request{
		{Type: "panicky"},
		{Type: "survivor"},
	})

	if results[0].Success {
		t.Error("panicking action should report failure")
	}
	if !strings.Contains(results[0].Result, "kaboom") {
		t.Errorf("result = %q, want panic message", results[0].Result)
	}
	if !results[1].Success {
		t.Error("panic in action 0 blocked action 1")
	}
}

func TestDispatch_DuplicatesDispatchedIndependently(t *testing.T) {
	r := newTestRegistry(t)
	calls := 0
	if err := r.Register(&Action{
		Name:        "counter",
		Description: "counts calls",
		Handler: func(ctx context.Context, p Params) (string, error) {
			calls++
			return fmt.Sprintf("call %d", calls), nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := r.Dispatch(context.Background(), []Request{
		{Type: "counter"},
		{Type: "counter"},
		{Type: "counter"},
	})

	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
	if results[0].Result == results[2].Result {
		t.Error("duplicate requests should each produce their own result")
	}
}

func TestDispatch_MixedBatchExample(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Action{
		Name:        "create_task",
		Description: "creates a task",
		Handler: func(ctx context.Context, p Params) (string, error) {
			task, err := p.String("task")
			if err != nil {
				return "", err
			}
			return "Task created (id 1): " + task, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := r.Dispatch(context.Background(), []Request{
		{Type: "create_task", Parameters: map[string]any{"task": "Buy milk"}},
		{Type: "unknown_action", Parameters: map[string]any{}},
	})

	if !results[0].Success || !strings.Contains(results[0].Result, "id 1") {
		t.Errorf("results[0] = %+v, want success with task id", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Result, "unsupported") {
		t.Errorf("results[1] = %+v, want unsupported failure", results[1])
	}
}

func TestCatalog_SortedAndComplete(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(okAction("zebra"))
	r.Register(okAction("alpha"))

	catalog := r.Catalog()
	alphaIdx := strings.Index(catalog, "alpha")
	zebraIdx := strings.Index(catalog, "zebra")
	if alphaIdx < 0 || zebraIdx < 0 {
		t.Fatalf("catalog missing entries:\n%s", catalog)
	}
	if alphaIdx > zebraIdx {
		t.Error("catalog should be sorted by name")
	}
}

func TestParams_String(t *testing.T) {
	p := Params{"s": "hello", "n": float64(42), "f": 1.5, "b": true}

	tests := []struct {
		key  string
		want string
	}{
		{"s", "hello"},
		{"n", "42"},
		{"f", "1.5"},
		{"b", "true"},
	}
	for _, tt := range tests {
		got, err := p.String(tt.key)
		if err != nil {
			t.Errorf("String(%q): %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("String(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, err := p.String("missing"); !errors.Is(err, ErrMissingParam) {
		t.Errorf("String(missing) err = %v, want ErrMissingParam", err)
	}
}

func TestParams_StringOr(t *testing.T) {
	p := Params{"set": "value", "empty": "", "list": []any{"x"}}

	tests := []struct {
		key  string
		want string
	}{
		{"set", "value"},
		{"absent", "def"},
		{"empty", "def"},
		{"list", "def"}, // uncoercible values fall back too
	}
	for _, tt := range tests {
		if got := p.StringOr(tt.key, "def"); got != tt.want {
			t.Errorf("StringOr(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestParams_Int(t *testing.T) {
	p := Params{"f": float64(25), "s": "7", "bad": "seven"}

	if got, err := p.Int("f"); err != nil || got != 25 {
		t.Errorf("Int(f) = %d, %v", got, err)
	}
	if got, err := p.Int("s"); err != nil || got != 7 {
		t.Errorf("Int(s) = %d, %v", got, err)
	}
	if _, err := p.Int("bad"); !errors.Is(err, ErrBadParam) {
		t.Errorf("Int(bad) err = %v, want ErrBadParam", err)
	}
	if got := p.IntOr("absent", 30); got != 30 {
		t.Errorf("IntOr(absent) = %d, want default 30", got)
	}
	if got := p.IntOr("bad", 30); got != 30 {
		t.Errorf("IntOr(bad) = %d, want default 30", got)
	}
	if got := p.IntOr("f", 30); got != 25 {
		t.Errorf("IntOr(f) = %d, want 25", got)
	}
}

func TestParams_StringSlice(t *testing.T) {
	p := Params{
		"list":   []any{"a", "b"},
		"single": "solo",
		"mixed":  []any{"a", float64(1)},
	}

	got, err := p.StringSlice("list")
	if err != nil || len(got) != 2 || got[1] != "b" {
		t.Errorf("StringSlice(list) = %v, %v", got, err)
	}
	got, err = p.StringSlice("single")
	if err != nil || len(got) != 1 || got[0] != "solo" {
		t.Errorf("StringSlice(single) = %v, %v", got, err)
	}
	if _, err := p.StringSlice("mixed"); !errors.Is(err, ErrBadParam) {
		t.Errorf("StringSlice(mixed) err = %v, want ErrBadParam", err)
	}
}

func TestParams_Bool(t *testing.T) {
	p := Params{"t": true, "s": "yes", "junk": "maybe"}

	if !p.Bool("t", false) {
		t.Error("Bool(t) = false, want true")
	}
	if !p.Bool("s", false) {
		t.Error("Bool(s) = false, want true")
	}
	if !p.Bool("absent", true) {
		t.Error("Bool(absent) should return default")
	}
	if p.Bool("junk", false) {
		t.Error("Bool(junk) should return default")
	}
}
