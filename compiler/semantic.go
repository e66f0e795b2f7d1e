package compiler

import (
	"fmt"
	"slices"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: pre-codegen checks and symbol index
// ---------------------------------------------------------------------------

// Warning is a problem that does not stop compilation but will probably
// fail or misbehave at runtime.
type Warning struct {
	Span Span
	Msg  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%d:%d: warning: %s", w.Span.Start.Line, w.Span.Start.Column, w.Msg)
}

// Analysis is the result of analyzing a program.
type Analysis struct {
	Warnings []Warning

	// Assignments maps each global to the spans of the names in its
	// assignments, in source order.
	Assignments map[string][]Span

	// References maps each global to the spans where it is read.
	References map[string][]Span
}

// Globals returns every assigned global name, sorted.
func (a *Analysis) Globals() []string {
	names := make([]string, 0, len(a.Assignments))
	for name := range a.Assignments {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SemanticAnalyzer walks a parsed program collecting warnings and the
// assignment and reference sites of every global.
type SemanticAnalyzer struct {
	warnings []Warning
	assigned map[string][]Span
	refs     []*Identifier
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{
		assigned: make(map[string][]Span),
	}
}

// warnAt records a warning for a node.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...any) {
	s.warnings = append(s.warnings, Warning{Span: node.Span(), Msg: fmt.Sprintf(format, args...)})
}

// Analyze runs every check over prog.
func (s *SemanticAnalyzer) Analyze(prog *Program) *Analysis {
	Walk(prog, s.visit)

	refs := make(map[string][]Span)
	for _, id := range s.refs {
		refs[id.Name] = append(refs[id.Name], id.SpanVal)
		if _, ok := s.assigned[id.Name]; !ok {
			s.warnAt(id, "variable '%s' is never assigned", id.Name)
		}
	}

	slices.SortStableFunc(s.warnings, func(a, b Warning) int {
		return a.Span.Start.Offset - b.Span.Start.Offset
	})

	return &Analysis{
		Warnings:    s.warnings,
		Assignments: s.assigned,
		References:  refs,
	}
}

func (s *SemanticAnalyzer) visit(node Node) bool {
	switch n := node.(type) {
	case *AssignStmt:
		s.assigned[n.Name] = append(s.assigned[n.Name], Span{Start: n.SpanVal.Start, End: n.NameEnd})
	case *Identifier:
		s.refs = append(s.refs, n)
	case *IfStmt:
		s.checkCondition(n.Cond)
	case *WhileStmt:
		s.checkCondition(n.Cond)
	case *UnaryExpr:
		s.checkUnary(n)
	case *BinaryExpr:
		s.checkBinary(n)
	}
	return true
}

// checkCondition flags conditions whose outcome is fixed by a literal.
func (s *SemanticAnalyzer) checkCondition(cond Expr) {
	if _, ok := unparen(cond).(*StringLiteral); ok {
		s.warnAt(cond, "condition is a string and is always true")
	}
}

func (s *SemanticAnalyzer) checkUnary(n *UnaryExpr) {
	if n.Op == TokenPlus {
		return
	}
	switch operand := unparen(n.Operand).(type) {
	case *StringLiteral, *BoolLiteral:
		if n.Op == TokenMinus {
			s.warnAt(n, "'-' cannot be applied to a %s", literalKind(operand))
		}
	case *NumberLiteral:
		if n.Op == TokenTilde {
			s.warnAt(n, "'~' cannot be applied to a number")
		}
	}
}

func (s *SemanticAnalyzer) checkBinary(n *BinaryExpr) {
	if n.Op != TokenSlash && n.Op != TokenPercent {
		return
	}
	if lit, ok := unparen(n.Right).(*NumberLiteral); ok && lit.Value == 0 {
		s.warnAt(n, "division by zero")
	}
}

func unparen(e Expr) Expr {
	for {
		g, ok := e.(*Grouping)
		if !ok {
			return e
		}
		e = g.Expr
	}
}

func literalKind(e Expr) string {
	switch e.(type) {
	case *StringLiteral:
		return "string"
	case *BoolLiteral:
		return "bool"
	default:
		return "number"
	}
}

// Analyze runs semantic analysis on a parsed program.
func Analyze(prog *Program) *Analysis {
	return NewSemanticAnalyzer().Analyze(prog)
}
