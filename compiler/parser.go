package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Pinky
// ---------------------------------------------------------------------------

// Parser parses Pinky source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position // end of the last consumed token
	errors    ErrorList
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole program. On failure the error is an ErrorList
// holding every syntax error found.
func Parse(src string) (*Program, error) {
	p := NewParser(src)
	prog := p.ParseProgram()
	if err := p.Errors().Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// nextToken advances to the next token. Lexical errors are recorded and
// skipped.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	for {
		tok := p.lexer.NextToken()
		if tok.Type != TokenError {
			p.peekToken = tok
			return
		}
		p.errors = append(p.errors, &SyntaxError{Pos: tok.Pos, End: tok.End, Msg: tok.Literal})
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(types ...TokenType) bool {
	for _, t := range types {
		if p.curToken.Type == t {
			return true
		}
	}
	return false
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected '%s', got %s", t, p.curToken.describe())
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, &SyntaxError{
		Pos: p.curToken.Pos,
		End: p.curToken.End,
		Msg: fmt.Sprintf(format, args...),
	})
}

// Errors returns accumulated parse errors ordered by position.
func (p *Parser) Errors() ErrorList {
	p.errors.sort()
	return p.errors
}

// span returns the span from start to the end of the last consumed token.
func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until end of input.
func (p *Parser) ParseProgram() *Program {
	start := p.curToken.Pos
	stmts := p.parseBlock()
	return &Program{SpanVal: Span{Start: start, End: p.curToken.End}, Stmts: stmts}
}

// parseBlock parses statements until EOF or one of the terminators.
// After a statement fails to parse, tokens are skipped up to the next
// statement keyword so that later errors are still reported.
func (p *Parser) parseBlock(terminators ...TokenType) []Stmt {
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(terminators...) {
		errs := len(p.errors)
		startOffset := p.curToken.Pos.Offset

		stmt := p.parseStatement()
		if len(p.errors) > errs || stmt == nil {
			p.synchronize(startOffset, terminators)
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// synchronize skips to a token that can start or end a statement.
func (p *Parser) synchronize(startOffset int, terminators []TokenType) {
	if p.curToken.Pos.Offset == startOffset && !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(terminators...) {
		if p.curTokenIs(TokenPrint, TokenPrintln, TokenIf, TokenWhile) {
			return
		}
		if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenAssign) {
			return
		}
		p.nextToken()
	}
}

func (p *Parser) parseStatement() Stmt {
	switch p.curToken.Type {
	case TokenPrint, TokenPrintln:
		return p.parsePrint()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenIdentifier:
		if p.peekTokenIs(TokenAssign) {
			return p.parseAssign()
		}
	case TokenFunc, TokenRet, TokenLocal, TokenFor:
		p.errorf("'%s' is not supported", p.curToken.Literal)
		return nil
	case TokenEnd, TokenElse, TokenElif, TokenThen, TokenDo:
		p.errorf("unexpected '%s'", p.curToken.Literal)
		return nil
	}

	start := p.curToken.Pos
	expr := p.parseExpr()
	if expr == nil {
		return nil
	}
	return &ExprStmt{SpanVal: p.span(start), Expr: expr}
}

func (p *Parser) parsePrint() Stmt {
	start := p.curToken.Pos
	newline := p.curTokenIs(TokenPrintln)
	p.nextToken()

	value := p.parseExpr()
	if value == nil {
		return nil
	}
	return &PrintStmt{SpanVal: p.span(start), Value: value, Newline: newline}
}

// parseIf parses if ... then ... (elif ... then ...)* (else ...)? end.
// The keyword at the current token is either 'if' or 'elif'.
func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume if / elif

	cond := p.parseExpr()
	if cond == nil || !p.expect(TokenThen) {
		return nil
	}

	then := p.parseBlock(TokenElif, TokenElse, TokenEnd)
	stmt := &IfStmt{Cond: cond, Then: then}

	switch p.curToken.Type {
	case TokenElif:
		// The nested if consumes the shared 'end'.
		nested := p.parseIf()
		if nested == nil {
			return nil
		}
		stmt.Else = []Stmt{nested}
		stmt.SpanVal = p.span(start)
		return stmt
	case TokenElse:
		p.nextToken()
		stmt.Else = p.parseBlock(TokenEnd)
	}

	if !p.expect(TokenEnd) {
		return nil
	}
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume while

	cond := p.parseExpr()
	if cond == nil || !p.expect(TokenDo) {
		return nil
	}

	body := p.parseBlock(TokenEnd)
	if !p.expect(TokenEnd) {
		return nil
	}
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

func (p *Parser) parseAssign() Stmt {
	start := p.curToken.Pos
	name := p.curToken.Literal
	nameEnd := p.curToken.End
	p.nextToken() // consume name
	p.nextToken() // consume :=

	value := p.parseExpr()
	if value == nil {
		return nil
	}
	return &AssignStmt{SpanVal: p.span(start), Name: name, NameEnd: nameEnd, Value: value}
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

// binaryLevel parses left-associative operators of one precedence level.
func (p *Parser) binaryLevel(next func() Expr, ops ...TokenType) Expr {
	left := next()
	for left != nil && p.curTokenIs(ops...) {
		op := p.curToken.Type
		p.nextToken()
		right := next()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: Span{Start: left.Span().Start, End: right.Span().End},
			Op:      op,
			Left:    left,
			Right:   right,
		}
	}
	return left
}

func (p *Parser) parseOr() Expr {
	return p.binaryLevel(p.parseAnd, TokenOr)
}

func (p *Parser) parseAnd() Expr {
	return p.binaryLevel(p.parseEquality, TokenAnd)
}

func (p *Parser) parseEquality() Expr {
	return p.binaryLevel(p.parseComparison, TokenEq, TokenNe)
}

func (p *Parser) parseComparison() Expr {
	return p.binaryLevel(p.parseAddition, TokenLt, TokenLe, TokenGt, TokenGe)
}

func (p *Parser) parseAddition() Expr {
	return p.binaryLevel(p.parseMultiplication, TokenPlus, TokenMinus, TokenXor)
}

func (p *Parser) parseMultiplication() Expr {
	return p.binaryLevel(p.parseUnary, TokenStar, TokenSlash, TokenPercent)
}

func (p *Parser) parseUnary() Expr {
	if !p.curTokenIs(TokenMinus, TokenPlus, TokenTilde) {
		return p.parsePower()
	}
	start := p.curToken.Pos
	op := p.curToken.Type
	p.nextToken()

	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return &UnaryExpr{SpanVal: p.span(start), Op: op, Operand: operand}
}

// parsePower parses primary ('^' unary)?, which makes ^ right-associative
// and lets the exponent carry a sign.
func (p *Parser) parsePower() Expr {
	base := p.parsePrimary()
	if base == nil || !p.curTokenIs(TokenCaret) {
		return base
	}
	p.nextToken()

	exp := p.parseUnary()
	if exp == nil {
		return nil
	}
	return &BinaryExpr{
		SpanVal: Span{Start: base.Span().Start, End: exp.Span().End},
		Op:      TokenCaret,
		Left:    base,
		Right:   exp,
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	span := Span{Start: tok.Pos, End: tok.End}

	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errors = append(p.errors, &SyntaxError{Pos: tok.Pos, End: tok.End, Msg: fmt.Sprintf("invalid number %s", tok.Literal)})
			return nil
		}
		return &NumberLiteral{SpanVal: span, Value: v}

	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: tok.Literal}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: span, Value: tok.Type == TokenTrue}

	case TokenIdentifier:
		p.nextToken()
		return &Identifier{SpanVal: span, Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		inner := p.parseExpr()
		if inner == nil || !p.expect(TokenRParen) {
			return nil
		}
		return &Grouping{SpanVal: p.span(tok.Pos), Expr: inner}
	}

	p.errorf("expected expression, got %s", tok.describe())
	return nil
}
