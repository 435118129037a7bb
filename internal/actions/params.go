package actions

import (
	"errors"
	"fmt"
)

// ErrMissingParam reports a required parameter that was not supplied.
// Handlers return it wrapped with the parameter name.
var ErrMissingParam = errors.New("missing parameter")

// ErrBadParam reports a parameter that was present but had the wrong
// type and could not be coerced.
var ErrBadParam = errors.New("invalid parameter")

// Params holds the loosely-typed arguments extracted from the model's
// JSON payload. Values are whatever encoding/json produced: string,
// float64, bool, []any, map[string]any. The accessors perform the
// coercions handlers need and return typed errors instead of panicking
// on missing or malformed fields.
type Params map[string]any

// String returns the named parameter as a string. Numbers are
// formatted, since models frequently quote-flip scalar values.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s)), nil
		}
		return fmt.Sprintf("%g", s), nil
	case bool:
		return fmt.Sprintf("%t", s), nil
	default:
		return "", fmt.Errorf("%w: %s is %T, want string", ErrBadParam, key, v)
	}
}

// StringOr returns the named parameter as a string. Optional parameters
// never fail a handler: absent, empty, and uncoercible values all yield
// def.
func (p Params) StringOr(key, def string) string {
	s, err := p.String(key)
	if err != nil || s == "" {
		return def
	}
	return s
}

// Int returns the named parameter as an int. JSON numbers arrive as
// float64; numeric strings are accepted too.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, fmt.Errorf("%w: %s = %q, want integer", ErrBadParam, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want integer", ErrBadParam, key, v)
	}
}

// IntOr returns the named parameter as an int. Like [Params.StringOr],
// absent and uncoercible values yield def.
func (p Params) IntOr(key string, def int) int {
	n, err := p.Int(key)
	if err != nil {
		return def
	}
	return n
}

// Float returns the named parameter as a float64.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, fmt.Errorf("%w: %s = %q, want number", ErrBadParam, key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want number", ErrBadParam, key, v)
	}
}

// Bool returns the named parameter as a bool. Absent and uncoercible
// values yield def.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch b {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// StringSlice returns the named parameter as []string. Accepts a JSON
// array of strings or a single string (wrapped in a one-element slice).
func (p Params) StringSlice(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	switch s := v.(type) {
	case string:
		return []string{s}, nil
	case []any:
		out := make([]string, 0, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrBadParam, key, i, e)
			}
			out = append(out, str)
		}
		return out, nil
	case []string:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want string list", ErrBadParam, key, v)
	}
}

// Map returns the named parameter as a nested Params map, or an empty
// map when absent.
func (p Params) Map(key string) (Params, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return Params{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want object", ErrBadParam, key, v)
	}
	return Params(m), nil
}
