package compiler

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnsupportedNode is wrapped by the error the compiler returns for an
// AST node it cannot lower. The parser never produces such nodes.
var ErrUnsupportedNode = errors.New("unsupported node")

// SyntaxError is a lexical or grammatical error at a source position.
type SyntaxError struct {
	Pos Position
	End Position // zero if unknown
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// ErrorList is a list of syntax errors ordered by position.
type ErrorList []*SyntaxError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0], len(l)-1)
}

// Err returns nil for an empty list and the list otherwise.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

func (l ErrorList) sort() {
	slices.SortStableFunc(l, func(a, b *SyntaxError) int {
		return a.Pos.Offset - b.Pos.Offset
	})
}
