package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	// Header
	if p.Name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", p.Name))
	}
	sb.WriteString(fmt.Sprintf("; Pinky Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; %d instructions, %d labels\n\n", len(p.Code), len(p.Labels())))

	// Code section
	next := 0 // index of the next unseen source map entry
	for pc, in := range p.Code {
		if in.Op == OpLabel {
			sb.WriteString(in.Name + ":\n")
			continue
		}

		line := fmt.Sprintf("%04d  %s", pc, p.DisassembleInstruction(pc))
		for next < len(p.SourceMap) && p.SourceMap[next].PC < pc {
			next++
		}
		if next < len(p.SourceMap) && p.SourceMap[next].PC == pc {
			line = fmt.Sprintf("%-36s ; line %d", line, p.SourceMap[next].Line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// DisassembleInstruction returns a human-readable representation of the
// instruction at pc, with the opcode name padded to a fixed column.
func (p *Program) DisassembleInstruction(pc int) string {
	if pc < 0 || pc >= len(p.Code) {
		return "<end of code>"
	}
	in := p.Code[pc]
	switch in.Op.Operand() {
	case OperandValue:
		return fmt.Sprintf("%-12s %s", in.Op, GoString(in.Arg))
	case OperandName, OperandLabel:
		return fmt.Sprintf("%-12s %s", in.Op, in.Name)
	default:
		return in.Op.String()
	}
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (p *Program) DisassembleToLines() []string {
	return strings.Split(strings.TrimSuffix(p.Disassemble(), "\n"), "\n")
}
