package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// Causes of user runtime errors.
var (
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrDivisionByZero = errors.New("division by zero")
)

// Causes of internal errors. These indicate a malformed program, never a
// mistake in the user's source.
var (
	ErrUndefinedLabel  = errors.New("undefined label")
	ErrUndefinedGlobal = errors.New("undefined global")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrMissingHalt     = errors.New("program ended without HALT")
)

// ErrStepLimit is returned when a run executes more instructions than the
// limit configured with WithMaxSteps.
var ErrStepLimit = errors.New("step limit exceeded")

// RuntimeError reports an operator applied to operands it does not
// support. The run that produced it was aborted at PC.
type RuntimeError struct {
	Op    Opcode
	PC    int
	Line  int    // Source line, 0 if unknown
	Kinds []Kind // Operand kinds, left then right
	Err   error
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "runtime error at pc %d", e.PC)
	if e.Line > 0 {
		fmt.Fprintf(&sb, " (line %d)", e.Line)
	}
	fmt.Fprintf(&sb, ": %s", e.Op)
	switch len(e.Kinds) {
	case 1:
		fmt.Fprintf(&sb, " on %s", e.Kinds[0])
	case 2:
		fmt.Fprintf(&sb, " between %s and %s", e.Kinds[0], e.Kinds[1])
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// InternalError reports a violated program invariant: a jump to a missing
// label, a read of an unbound global, a stack underflow or an opcode the
// VM does not know.
type InternalError struct {
	Op   Opcode
	PC   int
	Name string // Label or global involved, if any
	Err  error
}

func (e *InternalError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("internal error at pc %d: %s %q: %v", e.PC, e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("internal error at pc %d: %s: %v", e.PC, e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsInternal reports whether err is (or wraps) an *InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// IsRuntime reports whether err is (or wraps) a *RuntimeError.
func IsRuntime(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}
