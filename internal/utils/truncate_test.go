package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "non-positive limit", input: `{"fit": true}`, limit: 0, expect: ""},
		{name: "fits", input: `{"fit": true}`, limit: 64, expect: `{"fit": true}`},
		{name: "truncated prompt", input: "[Task] Assess the candidate", limit: 6, expect: "[Task]..."},
		{name: "surrounding whitespace", input: "\n  score: 0.8  \n", limit: 5, expect: "score..."},
		{name: "counts runes", input: "Разработчик Go", limit: 11, expect: "Разработчик..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
