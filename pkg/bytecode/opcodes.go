package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpLabel Opcode = 0x00 // Jump target marker, no-op at runtime: LABEL <name>
	OpPush  Opcode = 0x01 // Push literal value: PUSH <value>
	OpPop   Opcode = 0x02 // Pop and discard top of stack

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd Opcode = 0x10 // Pop two, push sum or string concatenation
	OpSub Opcode = 0x11 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x12 // Pop two, push product
	OpDiv Opcode = 0x13 // Pop two, push quotient
	OpMod Opcode = 0x14 // Pop two, push floored remainder
	OpExp Opcode = 0x15 // Pop two, push a raised to b
	OpNeg Opcode = 0x16 // Negate top of stack

	// ========================================================================
	// Bitwise / logical (0x20-0x2F)
	// ========================================================================

	OpAnd Opcode = 0x20 // Bitwise AND of numbers, logical AND of bools
	OpOr  Opcode = 0x21 // Bitwise OR of numbers, logical OR of bools
	OpXor Opcode = 0x22 // Bitwise XOR of numbers, logical XOR of bools

	// ========================================================================
	// Comparison (0x30-0x3F)
	// ========================================================================

	OpEq Opcode = 0x30 // Pop two of the same kind, push equality
	OpNe Opcode = 0x31 // Pop two of the same kind, push inequality
	OpLt Opcode = 0x32 // Pop two numbers or strings, push a < b
	OpLe Opcode = 0x33 // Pop two numbers or strings, push a <= b
	OpGt Opcode = 0x34 // Pop two numbers or strings, push a > b
	OpGe Opcode = 0x35 // Pop two numbers or strings, push a >= b

	// ========================================================================
	// Output (0x40-0x4F)
	// ========================================================================

	OpPrint   Opcode = 0x40 // Pop and write without newline
	OpPrintln Opcode = 0x41 // Pop and write followed by newline

	// ========================================================================
	// Globals (0x50-0x5F)
	// ========================================================================

	OpStoreGlobal Opcode = 0x50 // Pop and bind: STORE_GLOBAL <name>
	OpLoadGlobal  Opcode = 0x51 // Push bound value: LOAD_GLOBAL <name>

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJmp  Opcode = 0x60 // Unconditional jump: JMP <label>
	OpJmpz Opcode = 0x61 // Pop, jump if zero or false: JMPZ <label>

	// ========================================================================
	// Termination (0xF0-0xFF)
	// ========================================================================

	OpHalt Opcode = 0xFF // Stop execution
)

// OperandKind describes the single argument an instruction carries.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota // No argument
	OperandValue                    // A literal Value (PUSH)
	OperandName                     // A global variable name
	OperandLabel                    // A label name
)

// String returns a human-readable name for the operand kind.
func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandValue:
		return "value"
	case OperandName:
		return "name"
	case OperandLabel:
		return "label"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack
	StackPush int         // How many values pushed to stack
	Operand   OperandKind // Argument carried by the instruction
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpLabel: {"LABEL", 0, 0, OperandLabel},
	OpPush:  {"PUSH", 0, 1, OperandValue},
	OpPop:   {"POP", 1, 0, OperandNone},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, OperandNone},
	OpSub: {"SUB", 2, 1, OperandNone},
	OpMul: {"MUL", 2, 1, OperandNone},
	OpDiv: {"DIV", 2, 1, OperandNone},
	OpMod: {"MOD", 2, 1, OperandNone},
	OpExp: {"EXP", 2, 1, OperandNone},
	OpNeg: {"NEG", 1, 1, OperandNone},

	// Bitwise / logical
	OpAnd: {"AND", 2, 1, OperandNone},
	OpOr:  {"OR", 2, 1, OperandNone},
	OpXor: {"XOR", 2, 1, OperandNone},

	// Comparison
	OpEq: {"EQ", 2, 1, OperandNone},
	OpNe: {"NE", 2, 1, OperandNone},
	OpLt: {"LT", 2, 1, OperandNone},
	OpLe: {"LE", 2, 1, OperandNone},
	OpGt: {"GT", 2, 1, OperandNone},
	OpGe: {"GE", 2, 1, OperandNone},

	// Output
	OpPrint:   {"PRINT", 1, 0, OperandNone},
	OpPrintln: {"PRINTLN", 1, 0, OperandNone},

	// Globals
	OpStoreGlobal: {"STORE_GLOBAL", 1, 0, OperandName},
	OpLoadGlobal:  {"LOAD_GLOBAL", 0, 1, OperandName},

	// Control flow
	OpJmp:  {"JMP", 0, 0, OperandLabel},
	OpJmpz: {"JMPZ", 1, 0, OperandLabel},

	// Termination
	OpHalt: {"HALT", 0, 0, OperandNone},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Operand returns the kind of argument instructions with this opcode carry.
func (op Opcode) Operand() OperandKind {
	return GetOpcodeInfo(op).Operand
}

// IsJump returns true if this opcode transfers control to a label.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJmpz
}

// IsBinary returns true if this opcode pops two operands and pushes one result.
func (op Opcode) IsBinary() bool {
	info := GetOpcodeInfo(op)
	return info.StackPop == 2 && info.StackPush == 1
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
