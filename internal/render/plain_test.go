package render

import (
	"strings"
	"testing"
)

func TestSplitRunsWhitespaceAndZeroWidth(t *testing.T) {
	long := strings.Repeat("x", 10)
	cases := []struct {
		in   string
		want int
	}{
		{"one two three", 3},
		{long, 1},
		{insertBreakPoints(long), 10},
		{"中文没有空格", 1},
		{insertBreakPoints("中文没有空格"), 6},
		{"  leading and trailing  ", 3},
	}
	for _, c := range cases {
		got := splitRuns(c.in)
		if len(got) != c.want {
			t.Errorf("splitRuns(%q): got %d runs %v, want %d", c.in, len(got), got, c.want)
		}
	}
}

func TestInsertBreakPoints(t *testing.T) {
	got := insertBreakPoints("ab汉")
	want := "a​b​汉"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Short inputs pass through untouched.
	if got := insertBreakPoints("a"); got != "a" {
		t.Errorf("single rune changed: %q", got)
	}
	if got := insertBreakPoints(""); got != "" {
		t.Errorf("empty changed: %q", got)
	}
}

func TestTransliterate(t *testing.T) {
	got := transliterate("café 汉字 test→")
	want := "café ?? test?"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineVariantsOrdered(t *testing.T) {
	if len(lineVariants) != 3 {
		t.Fatalf("expected 3 line variants, got %d", len(lineVariants))
	}
	// The last variant must always produce a breakable, representable line.
	out := lineVariants[2].transform(strings.Repeat("汉", 5))
	for _, run := range splitRuns(out) {
		if run != "?" {
			t.Errorf("expected placeholder runs, got %q", run)
		}
	}
}
