package compiler

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Pinky source
// ---------------------------------------------------------------------------

// Lexer tokenizes Pinky source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // line of the current character (1-based)
	col     int  // column of the current character (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++

	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// token builds a token that started at pos and ends at the current character.
func (l *Lexer) token(typ TokenType, lit string, pos Position) Token {
	return Token{Type: typ, Literal: lit, Pos: pos, End: l.position()}
}

// operator consumes n characters and returns an operator token.
func (l *Lexer) operator(typ TokenType, n int, pos Position) Token {
	for range n {
		l.readChar()
	}
	return l.token(typ, l.input[pos.Offset:l.pos], pos)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	if l.atEOF() {
		return l.token(TokenEOF, "", pos)
	}

	switch ch, next := l.ch, l.peekChar(); {
	case ch == '(':
		return l.operator(TokenLParen, 1, pos)
	case ch == ')':
		return l.operator(TokenRParen, 1, pos)
	case ch == '+':
		return l.operator(TokenPlus, 1, pos)
	case ch == '-':
		return l.operator(TokenMinus, 1, pos)
	case ch == '*':
		return l.operator(TokenStar, 1, pos)
	case ch == '/':
		return l.operator(TokenSlash, 1, pos)
	case ch == '%':
		return l.operator(TokenPercent, 1, pos)
	case ch == '^':
		return l.operator(TokenCaret, 1, pos)

	case ch == '~' && next == '=':
		return l.operator(TokenNe, 2, pos)
	case ch == '~':
		return l.operator(TokenTilde, 1, pos)

	case ch == '=' && next == '=':
		return l.operator(TokenEq, 2, pos)
	case ch == '=':
		l.readChar()
		return l.token(TokenError, "unexpected '=' (use '==' to compare or ':=' to assign)", pos)

	case ch == ':' && next == '=':
		return l.operator(TokenAssign, 2, pos)

	case ch == '<' && next == '=':
		return l.operator(TokenLe, 2, pos)
	case ch == '<':
		return l.operator(TokenLt, 1, pos)
	case ch == '>' && next == '=':
		return l.operator(TokenGe, 2, pos)
	case ch == '>':
		return l.operator(TokenGt, 1, pos)

	case ch == '"' || ch == '\'':
		return l.readString(pos)

	case isDigit(ch):
		return l.readNumber(pos)

	case isLetter(ch) || ch == '_':
		return l.readIdentifier(pos)

	default:
		l.readChar()
		return l.token(TokenError, fmt.Sprintf("unexpected character %q", ch), pos)
	}
}

// skipWhitespaceAndComments skips whitespace and -- line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		break
	}
}

// readString reads a string literal delimited by the quote it starts with.
// The content is kept raw; escape sequences are resolved when printed.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar() // consume opening quote

	start := l.pos
	for l.ch != quote {
		if l.atEOF() {
			return l.token(TokenError, "unterminated string", pos)
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar() // consume closing quote

	return l.token(TokenString, lit, pos)
}

// readNumber reads an integer or decimal literal.
func (l *Lexer) readNumber(pos Position) Token {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // consume .
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.token(TokenNumber, l.input[pos.Offset:l.pos], pos)
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[pos.Offset:l.pos]
	if typ, ok := reservedWords[lit]; ok {
		return l.token(typ, lit, pos)
	}
	return l.token(TokenIdentifier, lit, pos)
}

// Tokenize returns every token in the input up to and including EOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}
