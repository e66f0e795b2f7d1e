package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Pinky
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumberLiteral represents a numeric literal.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// StringLiteral represents a string literal. Value holds the raw text
// between the quotes.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// Identifier represents a reference to a global variable.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// Grouping represents a parenthesized expression.
type Grouping struct {
	SpanVal Span
	Expr    Expr
}

func (n *Grouping) Span() Span { return n.SpanVal }
func (n *Grouping) node()      {}
func (n *Grouping) expr()      {}

// UnaryExpr represents -x, +x or ~x.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr represents an arithmetic, comparison or logical operation.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// PrintStmt represents print or println.
type PrintStmt struct {
	SpanVal Span
	Value   Expr
	Newline bool
}

func (n *PrintStmt) Span() Span { return n.SpanVal }
func (n *PrintStmt) node()      {}
func (n *PrintStmt) stmt()      {}

// IfStmt represents if/then/else/end. An elif chain is represented as a
// nested IfStmt that is the only statement of Else.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt represents while/do/end.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// AssignStmt represents name := value.
type AssignStmt struct {
	SpanVal Span
	Name    string
	NameEnd Position // end of the name, for editor ranges
	Value   Expr
}

func (n *AssignStmt) Span() Span { return n.SpanVal }
func (n *AssignStmt) node()      {}
func (n *AssignStmt) stmt()      {}

// ExprStmt represents an expression evaluated for effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Top-level
// ---------------------------------------------------------------------------

// Program is a parsed source file.
type Program struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// Walk calls fn for node and every node below it, parents first.
// If fn returns false the children of that node are skipped.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Program:
		walkStmts(n.Stmts, fn)
	case *PrintStmt:
		Walk(n.Value, fn)
	case *IfStmt:
		Walk(n.Cond, fn)
		walkStmts(n.Then, fn)
		walkStmts(n.Else, fn)
	case *WhileStmt:
		Walk(n.Cond, fn)
		walkStmts(n.Body, fn)
	case *AssignStmt:
		Walk(n.Value, fn)
	case *ExprStmt:
		Walk(n.Expr, fn)
	case *Grouping:
		Walk(n.Expr, fn)
	case *UnaryExpr:
		Walk(n.Operand, fn)
	case *BinaryExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	}
}

func walkStmts(stmts []Stmt, fn func(Node) bool) {
	for _, s := range stmts {
		Walk(s, fn)
	}
}
