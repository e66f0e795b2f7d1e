package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
)

// ---------------------------------------------------------------------------
// Run: happy paths
// ---------------------------------------------------------------------------

func TestRun_Println(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source: "println 3 + 4\nprintln 'a' + 1",
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.Error != "" {
		t.Fatalf("Run failed: %s", resp.Msg.Error)
	}
	if resp.Msg.Output != "7\na1\n" {
		t.Errorf("Output = %q, want %q", resp.Msg.Output, "7\na1\n")
	}
	if resp.Msg.Steps == 0 {
		t.Error("Steps should be non-zero")
	}
}

func TestRun_Globals(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source: "x := 2 ^ 10\ny := \"hi\"\nz := x > 1000",
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := map[string]string{"x": "1024", "y": `"hi"`, "z": "true"}
	for name, val := range want {
		if got := resp.Msg.Globals[name]; got != val {
			t.Errorf("Globals[%q] = %q, want %q", name, got, val)
		}
	}
}

func TestRun_FreshStatePerRequest(t *testing.T) {
	svc := newTestEvalService(t, 0)

	if _, err := svc.Run(bg(), connectReq(&RunRequest{Source: "x := 1"})); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	resp, err := svc.Run(bg(), connectReq(&RunRequest{Source: "y := 2"}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, ok := resp.Msg.Globals["x"]; ok {
		t.Error("global from an earlier request leaked into a later one")
	}
}

// ---------------------------------------------------------------------------
// Run: failures
// ---------------------------------------------------------------------------

func TestRun_EmptySource(t *testing.T) {
	svc := newTestEvalService(t, 0)

	_, err := svc.Run(bg(), connectReq(&RunRequest{Source: "  \n"}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}

func TestRun_NegativeMaxSteps(t *testing.T) {
	svc := newTestEvalService(t, 0)

	_, err := svc.Run(bg(), connectReq(&RunRequest{Source: "println 1", MaxSteps: -1}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}

func TestRun_SyntaxError(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{Source: "println (1 +"}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.ErrorKind != ErrorKindSyntax {
		t.Errorf("ErrorKind = %q, want %q", resp.Msg.ErrorKind, ErrorKindSyntax)
	}
	if !strings.HasPrefix(resp.Msg.Error, "1:") {
		t.Errorf("Error = %q, want a 1:col prefix", resp.Msg.Error)
	}
}

func TestRun_RuntimeErrorKeepsOutput(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source: "println 'before'\nprintln 1 + true",
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.ErrorKind != ErrorKindRuntime {
		t.Fatalf("ErrorKind = %q, want %q (error %q)", resp.Msg.ErrorKind, ErrorKindRuntime, resp.Msg.Error)
	}
	if resp.Msg.Line != 2 {
		t.Errorf("Line = %d, want 2", resp.Msg.Line)
	}
	if resp.Msg.Output != "before\n" {
		t.Errorf("Output = %q, want %q", resp.Msg.Output, "before\n")
	}
}

func TestRun_UndefinedGlobal(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{Source: "println nope"}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.ErrorKind != ErrorKindInternal {
		t.Errorf("ErrorKind = %q, want %q", resp.Msg.ErrorKind, ErrorKindInternal)
	}
}

func TestRun_StepLimit(t *testing.T) {
	svc := newTestEvalService(t, 500)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{Source: "while true do end"}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.ErrorKind != ErrorKindStepLimit {
		t.Errorf("ErrorKind = %q, want %q", resp.Msg.ErrorKind, ErrorKindStepLimit)
	}
	if resp.Msg.Steps != 500 {
		t.Errorf("Steps = %d, want 500", resp.Msg.Steps)
	}
}

func TestRun_DeadlineFreesWorker(t *testing.T) {
	r := NewRunner(1)
	t.Cleanup(r.Stop)
	svc := NewEvalService(r, 0)

	ctx, cancel := context.WithTimeout(bg(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Run(ctx, connectReq(&RunRequest{Source: "while true do end"}))
	if connect.CodeOf(err) != connect.CodeDeadlineExceeded {
		t.Fatalf("Run = %v, want CodeDeadlineExceeded", err)
	}

	// The only worker must be free for the next request.
	ctx2, cancel2 := context.WithTimeout(bg(), 5*time.Second)
	defer cancel2()
	resp, err := svc.Run(ctx2, connectReq(&RunRequest{Source: "println 1"}))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if resp.Msg.Output != "1\n" {
		t.Errorf("Output = %q, want %q", resp.Msg.Output, "1\n")
	}
}

func TestStepLimit(t *testing.T) {
	tests := []struct {
		server, requested, want int
	}{
		{0, 0, 0},
		{100, 0, 100},
		{0, 50, 50},
		{100, 50, 50},
		{100, 500, 100},
	}
	for _, tt := range tests {
		s := &EvalService{maxSteps: tt.server}
		if got := s.stepLimit(tt.requested); got != tt.want {
			t.Errorf("stepLimit(server=%d, requested=%d) = %d, want %d",
				tt.server, tt.requested, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Check and Disassemble
// ---------------------------------------------------------------------------

func TestCheck_Valid(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Check(bg(), connectReq(&CheckRequest{Source: "x := 1\nprintln x"}))
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !resp.Msg.Valid {
		t.Error("Valid = false, want true")
	}
	if len(resp.Msg.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %+v, want none", resp.Msg.Diagnostics)
	}
}

func TestCheck_Warning(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Check(bg(), connectReq(&CheckRequest{Source: "println y"}))
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !resp.Msg.Valid {
		t.Error("Valid = false, want true")
	}
	if len(resp.Msg.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(resp.Msg.Diagnostics))
	}
	d := resp.Msg.Diagnostics[0]
	if d.Severity != SeverityWarning || d.Line != 1 || d.Column != 9 {
		t.Errorf("diagnostic = %+v, want warning at 1:9", d)
	}
}

func TestCheck_SyntaxErrors(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Check(bg(), connectReq(&CheckRequest{Source: "x := )\ny := 2\nprintln )"}))
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if resp.Msg.Valid {
		t.Error("Valid = true, want false")
	}
	if len(resp.Msg.Diagnostics) < 2 {
		t.Fatalf("got %d diagnostics, want at least 2", len(resp.Msg.Diagnostics))
	}
	for _, d := range resp.Msg.Diagnostics {
		if d.Severity != SeverityError {
			t.Errorf("diagnostic %+v should be an error", d)
		}
		if d.EndLine < d.Line || (d.EndLine == d.Line && d.EndColumn <= d.Column) {
			t.Errorf("diagnostic %+v has an empty range", d)
		}
	}
}

func TestDisassemble(t *testing.T) {
	svc := newTestEvalService(t, 0)

	resp, err := svc.Disassemble(bg(), connectReq(&DisassembleRequest{Source: "println 1"}))
	if err != nil {
		t.Fatalf("Disassemble returned error: %v", err)
	}
	if resp.Msg.Instructions != 3 {
		t.Errorf("Instructions = %d, want 3", resp.Msg.Instructions)
	}
	for _, want := range []string{"PUSH", "PRINTLN", "HALT"} {
		if !strings.Contains(resp.Msg.Listing, want) {
			t.Errorf("listing missing %s:\n%s", want, resp.Msg.Listing)
		}
	}
}

func TestDisassemble_SyntaxError(t *testing.T) {
	svc := newTestEvalService(t, 0)

	_, err := svc.Disassemble(bg(), connectReq(&DisassembleRequest{Source: "if then"}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}
