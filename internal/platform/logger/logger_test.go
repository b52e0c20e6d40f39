package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValue(t *testing.T) {
	cases := []struct {
		key      string
		val      interface{}
		redacted bool
	}{
		{"api_key", "sk-123", true},
		{"authorization", "Bearer abc", true},
		{"refresh_token", "abc", true},
		{"token_count", 42, false},
		{"max_tokens", 4096, false},
		{"graph_id", "g-1", false},
	}
	for _, tc := range cases {
		got := sanitizeValue(tc.key, tc.val)
		if tc.redacted && got != "[REDACTED]" {
			t.Fatalf("%s: want redacted got=%v", tc.key, got)
		}
		if !tc.redacted && got == "[REDACTED]" {
			t.Fatalf("%s: unexpected redaction", tc.key)
		}
	}
}

func TestSanitizeValueHashesUserID(t *testing.T) {
	got, ok := sanitizeValue("user_id", "3f1c").(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("user_id: want hash got=%v", got)
	}
}
