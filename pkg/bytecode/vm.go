package bytecode

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pinky.vm")

// Option configures a VM.
type Option func(*VM)

// WithOutput sets where PRINT and PRINTLN write. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithMaxSteps bounds the number of instructions one Run may execute.
// Zero means unlimited.
func WithMaxSteps(n int) Option {
	return func(vm *VM) { vm.maxSteps = n }
}

// WithLogger replaces the VM's logger.
func WithLogger(l commonlog.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// VM executes bytecode programs.
// A VM is not safe for concurrent use; every Run starts from empty state.
type VM struct {
	// Current execution state
	prog    *Program         // Program being executed
	pc      int              // Program counter
	stack   []Value          // Operand stack
	globals map[string]Value // Global namespace
	labels  map[string]int   // Label name -> instruction index
	running bool
	steps   int

	// Configuration
	out      io.Writer
	maxSteps int
	log      commonlog.Logger
}

// NewVM creates a new VM instance.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		stack:   make([]Value, 0, 256),
		globals: make(map[string]Value),
		out:     os.Stdout,
		log:     log,
	}
	vm.Configure(opts...)
	return vm
}

// Configure applies options to an existing VM, e.g. to redirect output
// between runs.
func (vm *VM) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(vm)
	}
}

// cancelCheckInterval is how many instructions RunContext executes between
// checks of its context.
const cancelCheckInterval = 1024

// Run executes prog until HALT or the first error.
// It returns a *RuntimeError for faults in the user program and an
// *InternalError for violated program invariants.
func (vm *VM) Run(prog *Program) error {
	return vm.RunContext(context.Background(), prog)
}

// RunContext is like Run but also stops once ctx is done, returning an
// error that wraps ctx.Err(). The context is polled every
// cancelCheckInterval instructions.
func (vm *VM) RunContext(ctx context.Context, prog *Program) (err error) {
	vm.reset(prog)

	w := bufio.NewWriter(vm.out)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil && err == nil {
			err = fmt.Errorf("vm: write output: %w", flushErr)
		}
	}()

	vm.log.Debugf("run %q: %d instructions, %d labels", prog.Name, len(prog.Code), len(vm.labels))

	for vm.running {
		if vm.pc >= len(prog.Code) {
			return &InternalError{Op: OpHalt, PC: vm.pc, Err: ErrMissingHalt}
		}
		if vm.maxSteps > 0 && vm.steps >= vm.maxSteps {
			return fmt.Errorf("vm: %w (%d instructions)", ErrStepLimit, vm.maxSteps)
		}
		if vm.steps%cancelCheckInterval == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("vm: run stopped after %d instructions: %w", vm.steps, ctxErr)
			}
		}

		in := prog.Code[vm.pc]
		vm.pc++
		vm.steps++

		if err := vm.execute(in, w); err != nil {
			vm.log.Debugf("run %q aborted after %d steps: %v", prog.Name, vm.steps, err)
			return err
		}
	}

	vm.log.Debugf("run %q halted after %d steps", prog.Name, vm.steps)
	return nil
}

// reset discards all state from a previous run and builds the label table.
func (vm *VM) reset(prog *Program) {
	vm.prog = prog
	vm.pc = 0
	vm.steps = 0
	vm.stack = vm.stack[:0]
	vm.globals = make(map[string]Value)
	vm.labels = prog.Labels()
	vm.running = true
}

// execute dispatches a single instruction. vm.pc already points past it.
func (vm *VM) execute(in Instruction, w *bufio.Writer) error {
	switch in.Op {
	case OpLabel:
		// Consumed by the label pre-pass

	case OpPush:
		vm.push(in.Arg)

	case OpPop:
		if _, err := vm.pop(in.Op); err != nil {
			return err
		}

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpExp,
		OpAnd, OpOr, OpXor,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		b, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		a, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		result, err := binaryOp(in.Op, a, b)
		if err != nil {
			return vm.runtimeError(in.Op, err, a.Kind(), b.Kind())
		}
		vm.push(result)

	case OpNeg:
		a, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		n, ok := a.(Number)
		if !ok {
			return vm.runtimeError(in.Op, ErrTypeMismatch, a.Kind())
		}
		vm.push(-n)

	case OpPrint, OpPrintln:
		a, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		w.WriteString(DecodeEscapes(a.String()))
		if in.Op == OpPrintln {
			w.WriteByte('\n')
		}

	case OpJmp:
		return vm.jump(in)

	case OpJmpz:
		a, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		if IsFalsy(a) {
			return vm.jump(in)
		}

	case OpStoreGlobal:
		a, err := vm.pop(in.Op)
		if err != nil {
			return err
		}
		vm.globals[in.Name] = a

	case OpLoadGlobal:
		a, ok := vm.globals[in.Name]
		if !ok {
			return vm.internalError(in, ErrUndefinedGlobal)
		}
		vm.push(a)

	case OpHalt:
		vm.running = false

	default:
		return vm.internalError(in, ErrUnknownOpcode)
	}
	return nil
}

// Stack helpers

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop(op Opcode) (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return nil, &InternalError{Op: op, PC: vm.pc - 1, Err: ErrStackUnderflow}
	}
	v := vm.stack[n-1]
	vm.stack[n-1] = nil
	vm.stack = vm.stack[:n-1]
	return v, nil
}

func (vm *VM) jump(in Instruction) error {
	target, ok := vm.labels[in.Name]
	if !ok {
		return vm.internalError(in, ErrUndefinedLabel)
	}
	vm.pc = target
	return nil
}

// Error constructors

func (vm *VM) runtimeError(op Opcode, cause error, kinds ...Kind) error {
	pc := vm.pc - 1
	line, _ := vm.prog.GetSourceLocation(pc)
	return &RuntimeError{Op: op, PC: pc, Line: line, Kinds: kinds, Err: cause}
}

func (vm *VM) internalError(in Instruction, cause error) error {
	return &InternalError{Op: in.Op, PC: vm.pc - 1, Name: in.Name, Err: cause}
}

// Inspection

// Globals returns a copy of the global namespace as left by the last run.
func (vm *VM) Globals() map[string]Value {
	return maps.Clone(vm.globals)
}

// Global returns the value bound to name by the last run.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Stack returns a copy of the operand stack, bottom first.
func (vm *VM) Stack() []Value {
	return slices.Clone(vm.stack)
}

// Steps returns the number of instructions the last run executed.
func (vm *VM) Steps() int {
	return vm.steps
}

// Operator semantics

// binaryOp applies a two-operand opcode. a is the left operand, b the
// right one. Errors are ErrTypeMismatch or ErrDivisionByZero.
func binaryOp(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpAdd:
		if x, y, ok := numbers(a, b); ok {
			return x + y, nil
		}
		_, as := a.(String)
		_, bs := b.(String)
		if as || bs {
			return String(a.String() + b.String()), nil
		}

	case OpSub, OpMul, OpDiv, OpMod, OpExp:
		if x, y, ok := numbers(a, b); ok {
			return arith(op, x, y)
		}

	case OpAnd, OpOr, OpXor:
		switch x := a.(type) {
		case Number:
			if y, ok := b.(Number); ok {
				return Number(bitwise(op, int64(x), int64(y))), nil
			}
		case Bool:
			if y, ok := b.(Bool); ok {
				return logical(op, x, y), nil
			}
		}

	case OpEq, OpNe:
		if a.Kind() == b.Kind() {
			return Bool(Equal(a, b) == (op == OpEq)), nil
		}

	case OpLt, OpLe, OpGt, OpGe:
		switch x := a.(type) {
		case Number:
			if y, ok := b.(Number); ok {
				return Bool(ordered(op, x, y)), nil
			}
		case String:
			if y, ok := b.(String); ok {
				return Bool(ordered(op, x, y)), nil
			}
		}
	}
	return nil, ErrTypeMismatch
}

func numbers(a, b Value) (Number, Number, bool) {
	x, ok := a.(Number)
	if !ok {
		return 0, 0, false
	}
	y, ok := b.(Number)
	return x, y, ok
}

func arith(op Opcode, x, y Number) (Value, error) {
	switch op {
	case OpSub:
		return x - y, nil
	case OpMul:
		return x * y, nil
	case OpDiv:
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		return x / y, nil
	case OpMod:
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		// Floored modulo: the result takes the sign of the divisor.
		r := math.Mod(float64(x), float64(y))
		if r != 0 && (r < 0) != (y < 0) {
			r += float64(y)
		}
		return Number(r), nil
	default: // OpExp
		if x == 0 && y < 0 {
			return nil, ErrDivisionByZero
		}
		return Number(math.Pow(float64(x), float64(y))), nil
	}
}

func bitwise(op Opcode, x, y int64) float64 {
	switch op {
	case OpAnd:
		return float64(x & y)
	case OpOr:
		return float64(x | y)
	default: // OpXor
		return float64(x ^ y)
	}
}

func logical(op Opcode, x, y Bool) Bool {
	switch op {
	case OpAnd:
		return x && y
	case OpOr:
		return x || y
	default: // OpXor
		return x != y
	}
}

func ordered[T cmp.Ordered](op Opcode, x, y T) bool {
	switch op {
	case OpLt:
		return x < y
	case OpLe:
		return x <= y
	case OpGt:
		return x > y
	default: // OpGe
		return x >= y
	}
}
