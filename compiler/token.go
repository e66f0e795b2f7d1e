package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Pinky lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.5
	TokenString     // "hello", 'hello'
	TokenIdentifier // x, total_2

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenCaret   // ^
	TokenTilde   // ~
	TokenEq      // ==
	TokenNe      // ~=
	TokenLt      // <
	TokenLe      // <=
	TokenGt      // >
	TokenGe      // >=
	TokenAssign  // :=

	// Delimiters
	TokenLParen // (
	TokenRParen // )

	// Keywords
	TokenIf
	TokenThen
	TokenElif
	TokenElse
	TokenEnd
	TokenWhile
	TokenDo
	TokenPrint
	TokenPrintln
	TokenTrue
	TokenFalse
	TokenAnd
	TokenOr
	TokenXor

	// Reserved for language features this toolchain does not implement
	TokenFunc
	TokenRet
	TokenLocal
	TokenFor
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenCaret:      "^",
	TokenTilde:      "~",
	TokenEq:         "==",
	TokenNe:         "~=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenAssign:     ":=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenIf:         "if",
	TokenThen:       "then",
	TokenElif:       "elif",
	TokenElse:       "else",
	TokenEnd:        "end",
	TokenWhile:      "while",
	TokenDo:         "do",
	TokenPrint:      "print",
	TokenPrintln:    "println",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenAnd:        "and",
	TokenOr:         "or",
	TokenXor:        "xor",
	TokenFunc:       "func",
	TokenRet:        "ret",
	TokenLocal:      "local",
	TokenFor:        "for",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text; string tokens hold the text between the quotes
	Pos     Position // start position
	End     Position // position just past the token
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// describe renders a token for use in error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of file"
	case TokenNumber, TokenIdentifier:
		return fmt.Sprintf("%s %s", t.Type, t.Literal)
	case TokenString:
		return "string literal"
	default:
		return fmt.Sprintf("'%s'", t.Literal)
	}
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"if":      TokenIf,
	"then":    TokenThen,
	"elif":    TokenElif,
	"else":    TokenElse,
	"end":     TokenEnd,
	"while":   TokenWhile,
	"do":      TokenDo,
	"print":   TokenPrint,
	"println": TokenPrintln,
	"true":    TokenTrue,
	"false":   TokenFalse,
	"and":     TokenAnd,
	"or":      TokenOr,
	"xor":     TokenXor,
	"func":    TokenFunc,
	"ret":     TokenRet,
	"local":   TokenLocal,
	"for":     TokenFor,
}

// IsKeyword reports whether word is reserved.
func IsKeyword(word string) bool {
	_, ok := reservedWords[word]
	return ok
}

// Keywords returns the reserved words usable in programs, in a stable order.
func Keywords() []string {
	return []string{
		"if", "then", "elif", "else", "end",
		"while", "do",
		"print", "println",
		"true", "false",
		"and", "or", "xor",
	}
}
