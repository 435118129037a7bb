// Package code implements developer actions: editor launching, file
// creation, git operations, project scaffolding, and a guarded shell.
package code

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/config"
)

// gitOperations maps the allowed git subcommands to their arguments.
// Anything else is rejected before reaching the shell.
var gitOperations = map[string][]string{
	"status": {"status", "--short"},
	"add":    {"add", "-A"},
	"commit": {"commit", "-m"},
	"push":   {"push"},
	"pull":   {"pull"},
	"log":    {"log", "--oneline", "-10"},
}

// Code holds developer action state.
type Code struct {
	workspace string
	cfg       config.RunCmdConfig
	logger    *slog.Logger
	run       func(ctx context.Context, dir, name string, args ...string) (string, error)
}

func New(workspace string, cfg config.RunCmdConfig, logger *slog.Logger) *Code {
	return &Code{
		workspace: workspace,
		cfg:       cfg,
		logger:    logger,
		run: func(ctx context.Context, dir, name string, args ...string) (string, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			out, err := cmd.CombinedOutput()
			return string(out), err
		},
	}
}

func (c *Code) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.workspace, path)
}

func (c *Code) openVSCode(ctx context.Context, p actions.Params) (string, error) {
	target := c.resolve(p.StringOr("path", "."))
	if _, err := c.run(ctx, c.workspace, "code", target); err != nil {
		return "", fmt.Errorf("launch vscode: %w", err)
	}
	return "Opened " + target + " in VS Code", nil
}

func (c *Code) createFile(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("path")
	if err != nil {
		return "", err
	}
	content := p.StringOr("content", "")

	path := c.resolve(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "Created " + path, nil
}

func (c *Code) gitOperation(ctx context.Context, p actions.Params) (string, error) {
	op, err := p.String("operation")
	if err != nil {
		return "", err
	}
	args, ok := gitOperations[op]
	if !ok {
		return "", fmt.Errorf("unsupported git operation %q", op)
	}

	if op == "commit" {
		message := p.StringOr("message", "")
		if message == "" {
			return "", fmt.Errorf("commit requires a message")
		}
		args = append(args, message)
	}

	dir := c.resolve(p.StringOr("path", "."))
	out, err := c.run(ctx, dir, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", op, err, strings.TrimSpace(out))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "git " + op + " completed"
	}
	return out, nil
}

// project templates written by create_project, keyed by project type.
var projectTemplates = map[string]map[string]string{
	"go": {
		"main.go":   "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n",
		"README.md": "# {{name}}\n",
	},
	"python": {
		"main.py":          "def main():\n    print(\"hello\")\n\n\nif __name__ == \"__main__\":\n    main()\n",
		"requirements.txt": "",
		"README.md":        "# {{name}}\n",
	},
	"web": {
		"index.html": "<!DOCTYPE html>\n<html>\n<head><title>{{name}}</title><link rel=\"stylesheet\" href=\"style.css\"></head>\n<body><script src=\"app.js\"></script></body>\n</html>\n",
		"style.css":  "body { font-family: sans-serif; }\n",
		"app.js":     "console.log(\"hello\");\n",
	},
}

func (c *Code) createProject(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("name")
	if err != nil {
		return "", err
	}
	kind := p.StringOr("type", "go")

	template, ok := projectTemplates[kind]
	if !ok {
		return "", fmt.Errorf("unknown project type %q (have go, python, web)", kind)
	}

	dir := c.resolve(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project dir: %w", err)
	}
	for file, content := range template {
		content = strings.ReplaceAll(content, "{{name}}", name)
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", file, err)
		}
	}
	return fmt.Sprintf("Created %s project at %s", kind, dir), nil
}

// denied reports whether the command matches a denylist pattern.
func (c *Code) denied(command string) string {
	lower := strings.ToLower(command)
	for _, pattern := range c.cfg.DeniedPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern
		}
	}
	return ""
}

func (c *Code) runCommand(ctx context.Context, p actions.Params) (string, error) {
	if !c.cfg.Enabled {
		return "", fmt.Errorf("shell commands are disabled in config")
	}
	command, err := p.String("command")
	if err != nil {
		return "", err
	}
	if pattern := c.denied(command); pattern != "" {
		c.logger.Warn("command blocked", "pattern", pattern)
		return "", fmt.Errorf("command blocked by policy (matched %q)", pattern)
	}

	timeout := time.Duration(c.cfg.DefaultTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := c.cfg.WorkingDir
	if dir == "" {
		dir = c.workspace
	}

	out, err := c.run(ctx, dir, "sh", "-c", command)
	if err != nil {
		return "", fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(out))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "command completed with no output"
	}
	return out, nil
}

// Actions returns the developer action set.
func (c *Code) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "open_vscode", Description: "Open a file or folder in VS Code", Handler: c.openVSCode},
		{Name: "create_file", Description: "Create a file with given content in the workspace", Handler: c.createFile},
		{Name: "git_operation", Description: "Run a git operation (status, add, commit, push, pull, log)", Handler: c.gitOperation},
		{Name: "create_project", Description: "Scaffold a new go, python, or web project", Handler: c.createProject},
		{Name: "run_command", Description: "Run a shell command in the workspace (policy guarded)", Handler: c.runCommand},
	}
}
