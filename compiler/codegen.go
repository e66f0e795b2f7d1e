package compiler

import (
	"fmt"

	"github.com/chazu/pinky/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pinky.compiler")

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// binaryOps maps binary operator tokens to the opcode that implements them.
var binaryOps = map[TokenType]bytecode.Opcode{
	TokenPlus:    bytecode.OpAdd,
	TokenMinus:   bytecode.OpSub,
	TokenStar:    bytecode.OpMul,
	TokenSlash:   bytecode.OpDiv,
	TokenPercent: bytecode.OpMod,
	TokenCaret:   bytecode.OpExp,
	TokenEq:      bytecode.OpEq,
	TokenNe:      bytecode.OpNe,
	TokenLt:      bytecode.OpLt,
	TokenLe:      bytecode.OpLe,
	TokenGt:      bytecode.OpGt,
	TokenGe:      bytecode.OpGe,
	TokenAnd:     bytecode.OpAnd,
	TokenOr:      bytecode.OpOr,
	TokenXor:     bytecode.OpXor,
}

// Compiler lowers a parsed program to a flat bytecode program.
type Compiler struct {
	prog       *bytecode.Program
	labelCount int
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile lowers prog. Jump targets get fresh names LBL0, LBL1, ... that
// are unique within the result.
func (c *Compiler) Compile(prog *Program, name string) (*bytecode.Program, error) {
	c.prog = bytecode.NewProgram(name)
	c.labelCount = 0

	if err := c.compileStatements(prog.Stmts); err != nil {
		return nil, err
	}
	if end := prog.SpanVal.End; end.Line > 0 {
		c.prog.AddSourceLocation(end.Line, end.Column)
	}
	c.emit(bytecode.Simple(bytecode.OpHalt))

	log.Debugf("compiled %d statements into %d instructions, %d labels",
		len(prog.Stmts), c.prog.Len(), c.labelCount)
	return c.prog, nil
}

// CompileProgram lowers a parsed program with a fresh Compiler.
func CompileProgram(prog *Program) (*bytecode.Program, error) {
	return NewCompiler().Compile(prog, "")
}

// Compile parses and compiles source text. Syntax errors are returned as
// an ErrorList.
func Compile(src string) (*bytecode.Program, error) {
	return CompileNamed("", src)
}

// CompileNamed is Compile with a program name recorded for diagnostics.
func CompileNamed(name, src string) (*bytecode.Program, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return NewCompiler().Compile(prog, name)
}

func (c *Compiler) emit(in bytecode.Instruction) {
	c.prog.Emit(in)
}

// newLabel returns a label name not used before in this program.
func (c *Compiler) newLabel() string {
	name := fmt.Sprintf("LBL%d", c.labelCount)
	c.labelCount++
	return name
}

// mark records the source line of node for the instructions that follow.
func (c *Compiler) mark(node Node) {
	pos := node.Span().Start
	if pos.Line > 0 {
		c.prog.AddSourceLocation(pos.Line, pos.Column)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(stmt Stmt) error {
	c.mark(stmt)

	switch s := stmt.(type) {
	case *PrintStmt:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if s.Newline {
			c.emit(bytecode.Simple(bytecode.OpPrintln))
		} else {
			c.emit(bytecode.Simple(bytecode.OpPrint))
		}

	case *AssignStmt:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(bytecode.StoreGlobal(s.Name))

	case *ExprStmt:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.emit(bytecode.Simple(bytecode.OpPop))

	case *IfStmt:
		return c.compileIf(s)

	case *WhileStmt:
		return c.compileWhile(s)

	default:
		return fmt.Errorf("compiler: %w: statement %T", ErrUnsupportedNode, stmt)
	}
	return nil
}

// compileIf emits:
//
//	cond; JMPZ else; then...; JMP end; LABEL else; else...; LABEL end
func (c *Compiler) compileIf(s *IfStmt) error {
	elseLabel := c.newLabel()
	endLabel := c.newLabel()

	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	c.emit(bytecode.Jmpz(elseLabel))
	if err := c.compileStatements(s.Then); err != nil {
		return err
	}
	c.emit(bytecode.Jmp(endLabel))
	c.emit(bytecode.Label(elseLabel))
	if err := c.compileStatements(s.Else); err != nil {
		return err
	}
	c.emit(bytecode.Label(endLabel))
	return nil
}

// compileWhile emits:
//
//	LABEL top; cond; JMPZ end; body...; JMP top; LABEL end
func (c *Compiler) compileWhile(s *WhileStmt) error {
	topLabel := c.newLabel()
	endLabel := c.newLabel()

	c.emit(bytecode.Label(topLabel))
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	c.emit(bytecode.Jmpz(endLabel))
	if err := c.compileStatements(s.Body); err != nil {
		return err
	}
	c.emit(bytecode.Jmp(topLabel))
	c.emit(bytecode.Label(endLabel))
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr emits code that leaves the value of expr on the stack.
// Operands are emitted left then right, followed by the operator.
func (c *Compiler) compileExpr(expr Expr) error {
	c.mark(expr)

	switch e := expr.(type) {
	case *NumberLiteral:
		c.emit(bytecode.Push(bytecode.Number(e.Value)))

	case *StringLiteral:
		c.emit(bytecode.Push(bytecode.String(e.Value)))

	case *BoolLiteral:
		c.emit(bytecode.Push(bytecode.Bool(e.Value)))

	case *Identifier:
		c.emit(bytecode.LoadGlobal(e.Name))

	case *Grouping:
		return c.compileExpr(e.Expr)

	case *UnaryExpr:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		switch e.Op {
		case TokenMinus:
			c.emit(bytecode.Simple(bytecode.OpNeg))
		case TokenPlus:
			// identity
		case TokenTilde:
			c.emit(bytecode.Push(bytecode.Bool(true)))
			c.emit(bytecode.Simple(bytecode.OpXor))
		default:
			return fmt.Errorf("compiler: %w: unary operator %s", ErrUnsupportedNode, e.Op)
		}

	case *BinaryExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			return fmt.Errorf("compiler: %w: binary operator %s", ErrUnsupportedNode, e.Op)
		}
		if err := c.compileExpr(e.Left); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		c.emit(bytecode.Simple(op))

	default:
		return fmt.Errorf("compiler: %w: expression %T", ErrUnsupportedNode, expr)
	}
	return nil
}
