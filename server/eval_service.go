package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/pinky/compiler"
	"github.com/chazu/pinky/pkg/bytecode"
)

var log = commonlog.GetLogger("pinky.server")

// Procedure paths served by EvalService.
const (
	EvalServiceName            = "pinky.v1.EvalService"
	EvalServiceRunProcedure    = "/" + EvalServiceName + "/Run"
	EvalServiceCheckProcedure  = "/" + EvalServiceName + "/Check"
	EvalServiceDisasmProcedure = "/" + EvalServiceName + "/Disassemble"
)

const requestProgramName = "request"

// Error kinds reported in RunResponse.ErrorKind.
const (
	ErrorKindSyntax    = "syntax"
	ErrorKindRuntime   = "runtime"
	ErrorKindInternal  = "internal"
	ErrorKindStepLimit = "step_limit"

	// errorKindStopped marks a run cut short by its request context.
	// It never reaches clients.
	errorKindStopped = "stopped"
)

// RunRequest asks the server to compile and run a program.
type RunRequest struct {
	Source   string `json:"source"`
	MaxSteps int    `json:"maxSteps,omitempty"` // 0 uses the server limit
}

// RunResponse carries everything a run produced. A failed run still
// returns the output written before the error.
type RunResponse struct {
	Output    string            `json:"output"`
	Globals   map[string]string `json:"globals,omitempty"` // name -> literal form
	Steps     int               `json:"steps"`
	Error     string            `json:"error,omitempty"`
	ErrorKind string            `json:"errorKind,omitempty"`
	Line      int               `json:"line,omitempty"` // source line of a runtime error
}

// CheckRequest asks for diagnostics without running.
type CheckRequest struct {
	Source string `json:"source"`
}

// CheckResponse lists syntax errors and warnings.
type CheckResponse struct {
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// DisassembleRequest asks for the compiled listing of a program.
type DisassembleRequest struct {
	Source string `json:"source"`
}

// DisassembleResponse holds the listing.
type DisassembleResponse struct {
	Listing      string `json:"listing"`
	Instructions int    `json:"instructions"`
}

// EvalService compiles and runs Pinky programs for remote clients.
type EvalService struct {
	runner   *Runner
	maxSteps int
}

// NewEvalService creates an EvalService. maxSteps caps every run; zero
// means no cap.
func NewEvalService(runner *Runner, maxSteps int) *EvalService {
	return &EvalService{runner: runner, maxSteps: maxSteps}
}

// Run compiles and executes a program.
func (s *EvalService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	source := req.Msg.Source
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	if req.Msg.MaxSteps < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("maxSteps must not be negative"))
	}

	prog, err := compiler.CompileNamed(requestProgramName, source)
	if err != nil {
		return connect.NewResponse(&RunResponse{
			Error:     err.Error(),
			ErrorKind: ErrorKindSyntax,
		}), nil
	}

	limit := s.stepLimit(req.Msg.MaxSteps)
	result, err := s.runner.Do(ctx, func(v *bytecode.VM) any {
		var out bytes.Buffer
		v.Configure(bytecode.WithOutput(&out), bytecode.WithMaxSteps(limit))
		runErr := v.RunContext(ctx, prog)
		return runResponse(v, out.String(), runErr)
	})
	if err != nil {
		return nil, contextError(err)
	}

	resp := result.(*RunResponse)
	if resp.ErrorKind == errorKindStopped {
		log.Debugf("run stopped after %d steps: %s", resp.Steps, resp.Error)
		return nil, contextError(ctx.Err())
	}
	log.Debugf("run: %d steps, error kind %q", resp.Steps, resp.ErrorKind)
	return connect.NewResponse(resp), nil
}

// Check parses and analyzes a program without running it.
func (s *EvalService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	res := checkSource(req.Msg.Source)
	return connect.NewResponse(&CheckResponse{
		Valid:       res.valid,
		Diagnostics: res.diagnostics,
	}), nil
}

// Disassemble compiles a program and returns its listing.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	prog, err := compiler.CompileNamed(requestProgramName, req.Msg.Source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&DisassembleResponse{
		Listing:      prog.Disassemble(),
		Instructions: prog.Len(),
	}), nil
}

// contextError converts a failure to get a result into a Connect error.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// stepLimit combines the requested limit with the server cap.
func (s *EvalService) stepLimit(requested int) int {
	switch {
	case requested == 0:
		return s.maxSteps
	case s.maxSteps == 0:
		return requested
	default:
		return min(requested, s.maxSteps)
	}
}

// runResponse is called on the worker goroutine after a run.
func runResponse(v *bytecode.VM, output string, err error) *RunResponse {
	resp := &RunResponse{
		Output: output,
		Steps:  v.Steps(),
	}
	if globals := v.Globals(); len(globals) > 0 {
		resp.Globals = make(map[string]string, len(globals))
		for name, val := range globals {
			resp.Globals[name] = bytecode.GoString(val)
		}
	}
	if err == nil {
		return resp
	}

	resp.Error = err.Error()
	var rerr *bytecode.RuntimeError
	switch {
	case errors.As(err, &rerr):
		resp.ErrorKind = ErrorKindRuntime
		resp.Line = rerr.Line
	case bytecode.IsInternal(err):
		resp.ErrorKind = ErrorKindInternal
		log.Errorf("internal error running request: %v", err)
	case errors.Is(err, bytecode.ErrStepLimit):
		resp.ErrorKind = ErrorKindStepLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.ErrorKind = errorKindStopped
	default:
		resp.ErrorKind = ErrorKindInternal
	}
	return resp
}
