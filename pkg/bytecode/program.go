package bytecode

import (
	"errors"
	"fmt"
)

// BytecodeVersion is the current program format version.
// Increment when making incompatible changes to the instruction set.
const BytecodeVersion uint16 = 1

// Instruction is one opcode plus the argument its opcode requires.
// Arg is set only for PUSH; Name only for LABEL, JMP, JMPZ, LOAD_GLOBAL
// and STORE_GLOBAL.
type Instruction struct {
	Op   Opcode
	Arg  Value
	Name string
}

// Push returns a PUSH instruction for v.
func Push(v Value) Instruction { return Instruction{Op: OpPush, Arg: v} }

// Label returns a LABEL instruction marking a jump target.
func Label(name string) Instruction { return Instruction{Op: OpLabel, Name: name} }

// Jmp returns an unconditional jump to label.
func Jmp(label string) Instruction { return Instruction{Op: OpJmp, Name: label} }

// Jmpz returns a jump to label taken when the popped value is zero or false.
func Jmpz(label string) Instruction { return Instruction{Op: OpJmpz, Name: label} }

// LoadGlobal returns a LOAD_GLOBAL instruction for name.
func LoadGlobal(name string) Instruction { return Instruction{Op: OpLoadGlobal, Name: name} }

// StoreGlobal returns a STORE_GLOBAL instruction for name.
func StoreGlobal(name string) Instruction { return Instruction{Op: OpStoreGlobal, Name: name} }

// Simple returns an instruction for an opcode that takes no argument.
func Simple(op Opcode) Instruction { return Instruction{Op: op} }

// String renders the instruction the way listings show it, e.g.
// `PUSH 3`, `JMPZ LBL2`, `STORE_GLOBAL x`.
func (in Instruction) String() string {
	switch in.Op.Operand() {
	case OperandValue:
		return fmt.Sprintf("%s %s", in.Op, GoString(in.Arg))
	case OperandName, OperandLabel:
		return fmt.Sprintf("%s %s", in.Op, in.Name)
	default:
		return in.Op.String()
	}
}

// SourceLocation maps an instruction index to a source location for diagnostics.
type SourceLocation struct {
	PC     int // Index into Program.Code
	Line   int // Source line number (1-based)
	Column int // Source column number (1-based)
}

// Program is an ordered instruction sequence produced once by the
// compiler and executed by the VM. The VM never mutates it.
type Program struct {
	Version uint16
	Name    string // Source file name, if any

	Code []Instruction

	// SourceMap is sorted by PC; each entry covers instructions up to the next one.
	SourceMap []SourceLocation
}

// NewProgram creates a new empty program with the current version.
func NewProgram(name string) *Program {
	return &Program{
		Version: BytecodeVersion,
		Name:    name,
		Code:    make([]Instruction, 0, 64),
	}
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(in Instruction) int {
	p.Code = append(p.Code, in)
	return len(p.Code) - 1
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Code)
}

// AddSourceLocation records that instructions from the next emitted one on
// come from the given source location. Consecutive entries for the same
// line are collapsed.
func (p *Program) AddSourceLocation(line, column int) {
	pc := len(p.Code)
	if n := len(p.SourceMap); n > 0 {
		last := &p.SourceMap[n-1]
		if last.Line == line {
			return
		}
		if last.PC == pc {
			last.Line, last.Column = line, column
			return
		}
	}
	p.SourceMap = append(p.SourceMap, SourceLocation{PC: pc, Line: line, Column: column})
}

// GetSourceLocation returns the source location for an instruction index.
// Returns line 0, column 0 if no mapping exists.
func (p *Program) GetSourceLocation(pc int) (line, column int) {
	for i := len(p.SourceMap) - 1; i >= 0; i-- {
		if p.SourceMap[i].PC <= pc {
			return p.SourceMap[i].Line, p.SourceMap[i].Column
		}
	}
	return 0, 0
}

// Labels scans the program for LABEL instructions and returns the
// name -> index table. If a name is defined more than once the last
// definition wins.
func (p *Program) Labels() map[string]int {
	labels := make(map[string]int)
	for pc, in := range p.Code {
		if in.Op == OpLabel {
			labels[in.Name] = pc
		}
	}
	return labels
}

// ErrInvalidProgram is wrapped by every error Verify returns.
var ErrInvalidProgram = errors.New("invalid program")

// Verify checks the structural invariants the VM relies on: every opcode
// is known and carries the argument its opcode requires, every jump target
// is defined exactly once, and the program ends with HALT. Programs from
// the compiler always pass; Verify exists for programs loaded from object
// files or built by hand.
func (p *Program) Verify() error {
	var errs []error
	fail := func(pc int, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: pc %d: %s", ErrInvalidProgram, pc, fmt.Sprintf(format, args...)))
	}

	defined := make(map[string]int)
	for pc, in := range p.Code {
		if !in.Op.Valid() {
			fail(pc, "unknown opcode 0x%02X", byte(in.Op))
			continue
		}
		switch in.Op.Operand() {
		case OperandValue:
			if in.Arg == nil {
				fail(pc, "%s without a value", in.Op)
			}
		case OperandName, OperandLabel:
			if in.Name == "" {
				fail(pc, "%s without a name", in.Op)
			}
		}
		if in.Op == OpLabel && in.Name != "" {
			if prev, dup := defined[in.Name]; dup {
				fail(pc, "label %q already defined at pc %d", in.Name, prev)
			}
			defined[in.Name] = pc
		}
	}

	for pc, in := range p.Code {
		if in.Op.IsJump() && in.Name != "" {
			if _, ok := defined[in.Name]; !ok {
				fail(pc, "%s to undefined label %q", in.Op, in.Name)
			}
		}
	}

	if n := len(p.Code); n == 0 || p.Code[n-1].Op != OpHalt {
		fail(n, "program does not end with HALT")
	}

	return errors.Join(errs...)
}
