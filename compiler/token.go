package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Monkey lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent  // add, foobar, x, y
	TokenInt    // 1343456
	TokenString // "foo bar"

	// Operators
	TokenAssign   // =
	TokenPlus     // +
	TokenMinus    // -
	TokenBang     // !
	TokenAsterisk // *
	TokenSlash    // /
	TokenLT       // <
	TokenGT       // >
	TokenEq       // ==
	TokenNotEq    // !=

	// Delimiters
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]

	// Keywords
	TokenFunction
	TokenLet
	TokenTrue
	TokenFalse
	TokenIf
	TokenElse
	TokenReturn
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenIllegal:   "ILLEGAL",
	TokenIdent:     "IDENT",
	TokenInt:       "INT",
	TokenString:    "STRING",
	TokenAssign:    "=",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenBang:      "!",
	TokenAsterisk:  "*",
	TokenSlash:     "/",
	TokenLT:        "<",
	TokenGT:        ">",
	TokenEq:        "==",
	TokenNotEq:     "!=",
	TokenComma:     ",",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenFunction:  "fn",
	TokenLet:       "let",
	TokenTrue:      "true",
	TokenFalse:     "false",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenReturn:    "return",
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
	Literal string   // the raw text; for strings, the unescaped contents
	Pos     Position // start position
	End     Position // position just past the last character
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Keywords maps reserved words to their token types.
var Keywords = map[string]TokenType{
	"fn":     TokenFunction,
	"let":    TokenLet,
	"true":   TokenTrue,
	"false":  TokenFalse,
	"if":     TokenIf,
	"else":   TokenElse,
	"return": TokenReturn,
}

// LookupIdent returns the keyword token type for ident, or TokenIdent.
func LookupIdent(ident string) TokenType {
	if tok, ok := Keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
