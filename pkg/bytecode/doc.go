// Package bytecode provides the value model, the instruction set and the
// stack-based virtual machine that executes compiled Pinky programs.
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Values: a closed sum type with exactly three variants (Number,
//     String, Bool). Values are immutable and copied freely.
//
//   - Opcodes: ~25 stack instructions covering arithmetic, comparison,
//     bitwise/logical operators, output, global variables and control flow.
//
//   - Program: an ordered slice of Instructions produced once by the
//     compiler. Control flow is expressed through LABEL markers and
//     JMP/JMPZ instructions that name them.
//
//   - VM: builds a label table in a single pre-pass, then runs a
//     fetch-decode-execute loop over the program, mutating an operand
//     stack and a flat global namespace. Output from PRINT and PRINTLN is
//     the only externally observable effect.
//
// # Errors
//
// The VM distinguishes two classes of failure. A *RuntimeError means the
// user program applied an operator to operands it does not support (or
// divided by zero). An *InternalError means the program itself is
// malformed: a jump to a label that does not exist, a read of an undefined
// global, or a stack underflow. Compiled programs never produce the second
// class; hand-written or decoded programs can, which is why
// Program.Verify exists.
//
// # Object Files
//
// Programs can be serialized to canonical CBOR (see Marshal and
// Unmarshal) so that a compiled program can be stored and run later
// without the source.
package bytecode
