package compiler

import (
	"strings"
	"testing"
)

func analyze(t *testing.T, src string) *Analysis {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return Analyze(prog)
}

func TestAnalyzeCleanProgram(t *testing.T) {
	a := analyze(t, `
i := 0
while i < 3 do
  println i
  i := i + 1
end`)
	if len(a.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", a.Warnings)
	}
	if got := a.Globals(); len(got) != 1 || got[0] != "i" {
		t.Errorf("Globals() = %v", got)
	}
	if n := len(a.Assignments["i"]); n != 2 {
		t.Errorf("i assigned %d times, want 2", n)
	}
	if n := len(a.References["i"]); n != 3 {
		t.Errorf("i referenced %d times, want 3", n)
	}
}

func TestAnalyzeAssignmentSpans(t *testing.T) {
	a := analyze(t, "x := 1\n  total := x")
	spans := a.Assignments["total"]
	if len(spans) != 1 {
		t.Fatalf("spans = %v", spans)
	}
	s := spans[0]
	if s.Start.Line != 2 || s.Start.Column != 3 || s.End.Column != 8 {
		t.Errorf("total span = %+v", s)
	}
}

func TestAnalyzeWarnings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"println y", "variable 'y' is never assigned"},
		{`while "yes" do println 1 end`, "condition is a string and is always true"},
		{`if ("x") then println 1 end`, "condition is a string and is always true"},
		{`println -"a"`, "'-' cannot be applied to a string"},
		{"println -true", "'-' cannot be applied to a bool"},
		{"println ~1", "'~' cannot be applied to a number"},
		{"println 1 / 0", "division by zero"},
		{"println 1 % (0)", "division by zero"},
	}

	for _, tc := range tests {
		a := analyze(t, tc.src)
		if len(a.Warnings) != 1 {
			t.Errorf("%q: got %d warnings %v, want 1", tc.src, len(a.Warnings), a.Warnings)
			continue
		}
		if a.Warnings[0].Msg != tc.want {
			t.Errorf("%q: warning %q, want %q", tc.src, a.Warnings[0].Msg, tc.want)
		}
	}
}

func TestAnalyzeWarningsOrdered(t *testing.T) {
	a := analyze(t, "println b\nprintln 1/0\nprintln a")
	if len(a.Warnings) != 3 {
		t.Fatalf("warnings = %v", a.Warnings)
	}
	for i, line := range []int{1, 2, 3} {
		if got := a.Warnings[i].Span.Start.Line; got != line {
			t.Errorf("warning %d on line %d, want %d", i, got, line)
		}
	}
	if !strings.HasPrefix(a.Warnings[0].String(), "1:9: warning:") {
		t.Errorf("String() = %q", a.Warnings[0].String())
	}
}
