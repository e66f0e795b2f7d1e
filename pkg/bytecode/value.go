package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

// String returns the name used for the kind in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is a tagged scalar held on the operand stack and in globals.
// The only implementations are Number, String and Bool.
type Value interface {
	// Kind returns the variant tag.
	Kind() Kind
	// String renders the value the way PRINT shows it.
	String() string

	value() // marker method
}

// Number is a floating-point value.
type Number float64

// String is a text value.
type String string

// Bool is a boolean value.
type Bool bool

func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Bool) Kind() Kind   { return KindBool }

func (Number) value() {}
func (String) value() {}
func (Bool) value()   {}

// String formats the number without a fractional part when it is
// integral, and with the shortest round-trip representation otherwise.
// Exponent form is used for decimal exponents below -4 or from 16 up.
func (n Number) String() string {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		return "0"
	case f == math.Trunc(f):
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s String) String() string { return string(s) }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// IsFalsy reports whether JMPZ treats v as a false condition: numeric
// zero or boolean false. Strings are never falsy.
func IsFalsy(v Value) bool {
	switch x := v.(type) {
	case Number:
		return x == 0
	case Bool:
		return !bool(x)
	default:
		return false
	}
}

// Equal reports whether two values have the same kind and payload.
func Equal(a, b Value) bool {
	return a == b
}

// GoString renders a value in literal form for listings and test failures,
// e.g. 3, "hi", true.
func GoString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case String:
		return strconv.Quote(string(x))
	default:
		return x.String()
	}
}
