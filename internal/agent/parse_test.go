package agent

import (
	"testing"
)

func TestParseReply_CleanJSON(t *testing.T) {
	raw := `{"response": "Done!", "actions": [{"type": "create_task", "parameters": {"task": "Buy milk"}}]}`
	got := ParseReply(raw)

	if got.Response != "Done!" {
		t.Errorf("response = %q", got.Response)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(got.Actions))
	}
	if got.Actions[0].Type != "create_task" {
		t.Errorf("action type = %q", got.Actions[0].Type)
	}
	if got.Actions[0].Parameters["task"] != "Buy milk" {
		t.Errorf("parameters = %v", got.Actions[0].Parameters)
	}
}

func TestParseReply_FencedJSON(t *testing.T) {
	raw := "```json\n{\"response\": \"Sure\", \"actions\": []}\n```"
	got := ParseReply(raw)

	if got.Response != "Sure" {
		t.Errorf("response = %q, want Sure", got.Response)
	}
	if len(got.Actions) != 0 {
		t.Errorf("actions = %v, want empty", got.Actions)
	}
}

func TestParseReply_ProseAroundJSON(t *testing.T) {
	raw := `Here is what I'll do:
{"response": "Opening the browser", "actions": [{"type": "browse_url", "parameters": {"url": "https://example.com"}}]}
Let me know if that works.`
	got := ParseReply(raw)

	if got.Response != "Opening the browser" {
		t.Errorf("response = %q", got.Response)
	}
	if len(got.Actions) != 1 || got.Actions[0].Type != "browse_url" {
		t.Errorf("actions = %v", got.Actions)
	}
}

func TestParseReply_NestedBraces(t *testing.T) {
	raw := `prefix {"response": "ok {really}", "actions": [{"type": "a", "parameters": {"m": {"k": "v"}}}]} suffix`
	got := ParseReply(raw)

	if got.Response != "ok {really}" {
		t.Errorf("response = %q", got.Response)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(got.Actions))
	}
}

func TestParseReply_PlainTextFallback(t *testing.T) {
	raw := "I'm just chatting, no structure here."
	got := ParseReply(raw)

	if got.Response != raw {
		t.Errorf("response = %q, want raw text", got.Response)
	}
	if len(got.Actions) != 0 {
		t.Errorf("actions = %v, want none", got.Actions)
	}
}

func TestParseReply_MalformedJSONFallback(t *testing.T) {
	raw := `{"response": "truncated`
	got := ParseReply(raw)

	if got.Response != raw {
		t.Errorf("response = %q, want whole reply as text", got.Response)
	}
	if len(got.Actions) != 0 {
		t.Errorf("actions = %v, want none", got.Actions)
	}
}

func TestParseReply_UnrelatedJSONFallback(t *testing.T) {
	// Valid JSON that is not a reply object falls back to plain text.
	raw := `{"temperature": 22, "unit": "C"}`
	got := ParseReply(raw)

	if got.Response != raw {
		t.Errorf("response = %q, want raw text", got.Response)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"{}", "{}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"prefixed", `text {"a":1} more`, `{"a":1}`},
		{"nested", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstJSONObject(tt.in); got != tt.want {
				t.Errorf("firstJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
