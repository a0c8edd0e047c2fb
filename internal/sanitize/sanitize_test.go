package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "alice", "alice"},
		{"script", `<script>alert(1)</script>bob`, "bob"},
		{"tags", `<b>Jane</b> <i>Doe</i>`, "Jane Doe"},
		{"ampersand kept raw", "R&D", "R&D"},
		{"whitespace", "  carol  ", "carol"},
		{"attribute payload", `<img src=x onerror="steal()">dave`, "dave"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 3); got != "hél" {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("expected no limit for 0, got %q", got)
	}
}

func TestDetails(t *testing.T) {
	in := map[string]any{
		"username": "<b>mallory</b>",
		"count":    3,
	}
	out := Details(in)
	if out["username"] != "mallory" || out["count"] != 3 {
		t.Errorf("unexpected details %v", out)
	}
	if in["username"] != "<b>mallory</b>" {
		t.Error("input map was modified")
	}
	if Details(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
