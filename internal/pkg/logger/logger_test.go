package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, c := range cases {
		if got := RedactEmail(c.in); got != c.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRedactPIIValue(t *testing.T) {
	if got := redactPIIValue("email", "alice@example.com"); got != "al***@example.com" {
		t.Errorf("email field not redacted: %q", got)
	}
	if got := redactPIIValue("customerEmail", "alice@example.com"); got != "al***@example.com" {
		t.Errorf("mixed-case email key not redacted: %q", got)
	}
	// Generic fields still get embedded addresses masked.
	if got := redactPIIValue("msg", "receipt for bob.smith@example.com queued"); got != "receipt for bo***@example.com queued" {
		t.Errorf("embedded email not redacted: %q", got)
	}
	if got := redactPIIValue("task", "task-42"); got != "task-42" {
		t.Errorf("plain value must pass through, got %q", got)
	}
}
