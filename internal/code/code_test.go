package code

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/config"
)

type execCall struct {
	dir  string
	name string
	args []string
}

func newTestCode(t *testing.T, cfg config.RunCmdConfig) (*Code, *[]execCall) {
	t.Helper()
	var calls []execCall
	c := New(t.TempDir(), cfg, slog.New(slog.DiscardHandler))
	c.run = func(ctx context.Context, dir, name string, args ...string) (string, error) {
		calls = append(calls, execCall{dir: dir, name: name, args: args})
		return "ok", nil
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

func TestCreateFile(t *testing.T) {
	c, _ := newTestCode(t, config.RunCmdConfig{})
	act := findAction(t, c.Actions(), "create_file")

	if _, err := act.Handler(context.Background(), actions.Params{
		"path":    "src/hello.go",
		"content": "package main\n",
	}); err != nil {
		t.Fatalf("create_file: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(c.workspace, "src", "hello.go"))
	if err != nil {
		t.Fatalf("read created file: %v", err)
	}
	if string(data) != "package main\n" {
		t.Errorf("content = %q", data)
	}
}

func TestGitOperation_Status(t *testing.T) {
	c, calls := newTestCode(t, config.RunCmdConfig{})
	act := findAction(t, c.Actions(), "git_operation")

	if _, err := act.Handler(context.Background(), actions.Params{"operation": "status"}); err != nil {
		t.Fatalf("git_operation: %v", err)
	}

	call := (*calls)[0]
	if call.name != "git" || strings.Join(call.args, " ") != "status --short" {
		t.Errorf("call = %+v", call)
	}
}

func TestGitOperation_CommitRequiresMessage(t *testing.T) {
	c, calls := newTestCode(t, config.RunCmdConfig{})
	act := findAction(t, c.Actions(), "git_operation")

	if _, err := act.Handler(context.Background(), actions.Params{"operation": "commit"}); err == nil {
		t.Fatal("expected error without message")
	}

	if _, err := act.Handler(context.Background(), actions.Params{
		"operation": "commit",
		"message":   "fix parser",
	}); err != nil {
		t.Fatalf("git commit: %v", err)
	}
	call := (*calls)[0]
	if strings.Join(call.args, " ") != "commit -m fix parser" {
		t.Errorf("args = %v", call.args)
	}
}

func TestGitOperation_RejectsUnknown(t *testing.T) {
	c, calls := newTestCode(t, config.RunCmdConfig{})
	act := findAction(t, c.Actions(), "git_operation")

	if _, err := act.Handler(context.Background(), actions.Params{"operation": "rebase"}); err == nil {
		t.Fatal("expected unknown operation to be rejected")
	}
	if len(*calls) != 0 {
		t.Errorf("git invoked despite rejection: %v", *calls)
	}
}

func TestCreateProject_Templates(t *testing.T) {
	tests := []struct {
		kind  string
		files []string
	}{
		{"go", []string{"main.go", "README.md"}},
		{"python", []string{"main.py", "requirements.txt", "README.md"}},
		{"web", []string{"index.html", "style.css", "app.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c, _ := newTestCode(t, config.RunCmdConfig{})
			act := findAction(t, c.Actions(), "create_project")

			if _, err := act.Handler(context.Background(), actions.Params{
				"name": "demo",
				"type": tt.kind,
			}); err != nil {
				t.Fatalf("create_project: %v", err)
			}
			for _, file := range tt.files {
				if _, err := os.Stat(filepath.Join(c.workspace, "demo", file)); err != nil {
					t.Errorf("missing %s: %v", file, err)
				}
			}
		})
	}
}

func TestCreateProject_UnknownType(t *testing.T) {
	c, _ := newTestCode(t, config.RunCmdConfig{})
	act := findAction(t, c.Actions(), "create_project")

	if _, err := act.Handler(context.Background(), actions.Params{"name": "x", "type": "cobol"}); err == nil {
		t.Fatal("expected unknown project type to fail")
	}
}

func TestRunCommand_DisabledByDefault(t *testing.T) {
	c, calls := newTestCode(t, config.RunCmdConfig{Enabled: false})
	act := findAction(t, c.Actions(), "run_command")

	if _, err := act.Handler(context.Background(), actions.Params{"command": "ls"}); err == nil {
		t.Fatal("expected disabled shell to error")
	}
	if len(*calls) != 0 {
		t.Errorf("command executed while disabled: %v", *calls)
	}
}

func TestRunCommand_Denylist(t *testing.T) {
	c, calls := newTestCode(t, config.RunCmdConfig{
		Enabled:        true,
		DeniedPatterns: []string{"rm -rf", "mkfs"},
	})
	act := findAction(t, c.Actions(), "run_command")

	if _, err := act.Handler(context.Background(), actions.Params{"command": "sudo RM -RF /tmp/x"}); err == nil {
		t.Fatal("expected denylisted command to be blocked")
	}
	if len(*calls) != 0 {
		t.Errorf("blocked command still executed: %v", *calls)
	}

	got, err := act.Handler(context.Background(), actions.Params{"command": "echo hi"})
	if err != nil {
		t.Fatalf("run_command: %v", err)
	}
	if got != "ok" {
		t.Errorf("output = %q", got)
	}
	call := (*calls)[0]
	if call.name != "sh" || call.args[0] != "-c" || call.args[1] != "echo hi" {
		t.Errorf("call = %+v", call)
	}
}
