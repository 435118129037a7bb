// Package actions defines the action registry and dispatcher. Capability
// packages contribute named actions; the agent's parsed output is
// dispatched through the registry one request at a time, with per-action
// failure isolation.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/events"
)

// Handler implements one action's side effect. The returned string is a
// human-readable result shown to the user (and spoken, when voice is
// enabled).
type Handler func(ctx context.Context, p Params) (string, error)

// Action represents a single dispatchable operation.
type Action struct {
	Name        string
	Description string
	Handler     Handler
}

// Request is one parsed action request from the model.
type Request struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

// Result is the outcome of dispatching one request. Results mirror the
// request order one-to-one.
type Result struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// Registry holds the static name → handler table.
type Registry struct {
	actions map[string]*Action
	bus     *events.Bus
	logger  *slog.Logger
}

// NewRegistry creates an empty action registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		actions: make(map[string]*Action),
		logger:  logger,
	}
}

// SetBus attaches an event bus; Dispatch then publishes action
// start/done events. The bus is nil-safe, so this is optional.
func (r *Registry) SetBus(bus *events.Bus) {
	r.bus = bus
}

// Register adds an action to the registry. Duplicate names and nil
// handlers are programming errors and rejected.
func (r *Registry) Register(a *Action) error {
	if a == nil || a.Name == "" {
		return fmt.Errorf("register: action must have a name")
	}
	if a.Handler == nil {
		return fmt.Errorf("register %s: nil handler", a.Name)
	}
	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("register %s: duplicate action name", a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

// RegisterAll registers a batch of actions, stopping at the first error.
func (r *Registry) RegisterAll(actions []*Action) error {
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves an action by name, or nil.
func (r *Registry) Get(name string) *Action {
	return r.actions[name]
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.actions)
}

// Catalog renders the registered actions as a sorted "- name: description"
// list for embedding in the system prompt.
func (r *Registry) Catalog() string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(r.actions[name].Description)
		b.WriteString("\n")
	}
	return b.String()
}

// Dispatch executes each request in order and returns one Result per
// request. Failures are isolated: an unknown name, handler error, or
// handler panic produces a success=false entry and processing continues
// with the next request. An empty batch yields an empty (non-nil) slice.
func (r *Registry) Dispatch(ctx context.Context, requests []Request) []Result {
	results := make([]Result, 0, len(requests))

	for _, req := range requests {
		results = append(results, r.dispatchOne(ctx, req))
	}

	return results
}

func (r *Registry) dispatchOne(ctx context.Context, req Request) (res Result) {
	res = Result{Action: req.Type}

	action := r.actions[req.Type]
	if action == nil {
		res.Result = fmt.Sprintf("unsupported action: %s", req.Type)
		r.logger.Warn("unsupported action requested", "action", req.Type)
		return res
	}

	r.bus.Emit(events.SourceActions, events.KindActionStart, map[string]any{
		"action": req.Type,
	})
	defer func() {
		r.bus.Emit(events.SourceActions, events.KindActionDone, map[string]any{
			"action": req.Type,
			"ok":     res.Success,
		})
	}()

	// A panicking handler must not take down the batch.
	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Result = fmt.Sprintf("action %s panicked: %v", req.Type, rec)
			r.logger.Error("action handler panicked", "action", req.Type, "panic", rec)
		}
	}()

	start := time.Now()
	out, err := action.Handler(ctx, Params(req.Parameters))
	elapsed := time.Since(start)

	if err != nil {
		res.Result = err.Error()
		r.logger.Warn("action failed",
			"action", req.Type, "duration", elapsed, "error", err)
		return res
	}

	res.Success = true
	res.Result = out
	r.logger.Debug("action executed", "action", req.Type, "duration", elapsed)
	return res
}
