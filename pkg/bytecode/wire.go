package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ObjectMagic identifies a serialized program.
const ObjectMagic = "PKBC"

// cborEncMode uses canonical options so that the same program always
// encodes to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireProgram struct {
	Magic     string            `cbor:"1,keyasint"`
	Version   uint16            `cbor:"2,keyasint"`
	Name      string            `cbor:"3,keyasint,omitempty"`
	Code      []wireInstruction `cbor:"4,keyasint"`
	SourceMap []wireLocation    `cbor:"5,keyasint,omitempty"`
}

type wireInstruction struct {
	Op   uint8      `cbor:"1,keyasint"`
	Arg  *wireValue `cbor:"2,keyasint,omitempty"`
	Name string     `cbor:"3,keyasint,omitempty"`
}

// wireValue carries a Value tagged by its Kind.
type wireValue struct {
	Kind uint8   `cbor:"1,keyasint"`
	Num  float64 `cbor:"2,keyasint,omitempty"`
	Str  string  `cbor:"3,keyasint,omitempty"`
	Bool bool    `cbor:"4,keyasint,omitempty"`
}

type wireLocation struct {
	_      struct{} `cbor:",toarray"`
	PC     int
	Line   int
	Column int
}

// Marshal serializes a program to canonical CBOR.
func Marshal(p *Program) ([]byte, error) {
	w := wireProgram{
		Magic:   ObjectMagic,
		Version: p.Version,
		Name:    p.Name,
		Code:    make([]wireInstruction, len(p.Code)),
	}
	for i, in := range p.Code {
		wi := wireInstruction{Op: uint8(in.Op), Name: in.Name}
		if in.Arg != nil {
			wv, err := encodeValue(in.Arg)
			if err != nil {
				return nil, fmt.Errorf("bytecode: marshal pc %d: %w", i, err)
			}
			wi.Arg = wv
		}
		w.Code[i] = wi
	}
	for _, loc := range p.SourceMap {
		w.SourceMap = append(w.SourceMap, wireLocation{PC: loc.PC, Line: loc.Line, Column: loc.Column})
	}
	return cborEncMode.Marshal(&w)
}

// Unmarshal deserializes a program produced by Marshal. The result is
// not verified; call Program.Verify before running untrusted input.
func Unmarshal(data []byte) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if w.Magic != ObjectMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidProgram, w.Magic)
	}
	if w.Version != BytecodeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (want %d)", ErrInvalidProgram, w.Version, BytecodeVersion)
	}

	p := &Program{
		Version: w.Version,
		Name:    w.Name,
		Code:    make([]Instruction, len(w.Code)),
	}
	for i, wi := range w.Code {
		in := Instruction{Op: Opcode(wi.Op), Name: wi.Name}
		if wi.Arg != nil {
			v, err := decodeValue(wi.Arg)
			if err != nil {
				return nil, fmt.Errorf("bytecode: unmarshal pc %d: %w", i, err)
			}
			in.Arg = v
		}
		p.Code[i] = in
	}
	for _, loc := range w.SourceMap {
		p.SourceMap = append(p.SourceMap, SourceLocation{PC: loc.PC, Line: loc.Line, Column: loc.Column})
	}
	return p, nil
}

func encodeValue(v Value) (*wireValue, error) {
	switch x := v.(type) {
	case Number:
		return &wireValue{Kind: uint8(KindNumber), Num: float64(x)}, nil
	case String:
		return &wireValue{Kind: uint8(KindString), Str: string(x)}, nil
	case Bool:
		return &wireValue{Kind: uint8(KindBool), Bool: bool(x)}, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func decodeValue(w *wireValue) (Value, error) {
	switch Kind(w.Kind) {
	case KindNumber:
		return Number(w.Num), nil
	case KindString:
		return String(w.Str), nil
	case KindBool:
		return Bool(w.Bool), nil
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", ErrInvalidProgram, w.Kind)
	}
}
