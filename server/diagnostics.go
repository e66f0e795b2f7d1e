package server

import (
	"github.com/chazu/pinky/compiler"
)

// Severity levels reported in a Diagnostic.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic is a problem found in source text. Lines and columns are
// 1-based; the end position is exclusive.
type Diagnostic struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

// checkResult is what one pass over a document produces.
type checkResult struct {
	diagnostics []Diagnostic
	analysis    *compiler.Analysis
	valid       bool
}

// checkSource parses src, reporting every syntax error. Semantic warnings
// are only reported for programs that parse cleanly, but the symbol index
// is built from the partial tree either way.
func checkSource(src string) checkResult {
	p := compiler.NewParser(src)
	prog := p.ParseProgram()
	errs := p.Errors()
	analysis := compiler.Analyze(prog)

	res := checkResult{analysis: analysis, valid: len(errs) == 0}
	for _, e := range errs {
		res.diagnostics = append(res.diagnostics, syntaxDiagnostic(e))
	}
	if res.valid {
		for _, w := range analysis.Warnings {
			res.diagnostics = append(res.diagnostics, Diagnostic{
				Line:      w.Span.Start.Line,
				Column:    w.Span.Start.Column,
				EndLine:   w.Span.End.Line,
				EndColumn: w.Span.End.Column,
				Severity:  SeverityWarning,
				Message:   w.Msg,
			})
		}
	}
	return res
}

func syntaxDiagnostic(e *compiler.SyntaxError) Diagnostic {
	d := Diagnostic{
		Line:      e.Pos.Line,
		Column:    e.Pos.Column,
		EndLine:   e.End.Line,
		EndColumn: e.End.Column,
		Severity:  SeverityError,
		Message:   e.Msg,
	}
	if d.EndLine == 0 || (d.EndLine == d.Line && d.EndColumn <= d.Column) {
		d.EndLine = d.Line
		d.EndColumn = d.Column + 1
	}
	return d
}
