package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Pratt parser for Monkey syntax
// ---------------------------------------------------------------------------

// Operator precedences, lowest first.
const (
	_ int = iota
	precLowest
	precEquals      // ==
	precLessGreater // > or <
	precSum         // +
	precProduct     // *
	precPrefix      // -X or !X
	precCall        // myFunction(X)
	precIndex       // array[index]
)

var precedences = map[TokenType]int{
	TokenEq:       precEquals,
	TokenNotEq:    precEquals,
	TokenLT:       precLessGreater,
	TokenGT:       precLessGreater,
	TokenPlus:     precSum,
	TokenMinus:    precSum,
	TokenSlash:    precProduct,
	TokenAsterisk: precProduct,
	TokenLParen:   precCall,
	TokenLBracket: precIndex,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// SyntaxError is a single parse diagnostic.
type SyntaxError struct {
	Pos Position
	End Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

// ParseError collects every syntax error found in one input.
type ParseError struct {
	Errors []*SyntaxError

	// Incomplete is set when the input ended before a construct was closed.
	Incomplete bool
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Error()
	}
	return strings.Join(msgs, "\n")
}

// IsIncomplete reports whether err is a parse error caused by input that
// ended too early, so that more lines could complete it.
func IsIncomplete(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr) && perr.Incomplete
}

// Parser parses Monkey source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token

	errors     []*SyntaxError
	incomplete bool

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}

	p.prefixParseFns = map[TokenType]prefixParseFn{
		TokenIdent:    p.parseIdentifier,
		TokenInt:      p.parseIntegerLiteral,
		TokenString:   p.parseStringLiteral,
		TokenBang:     p.parsePrefixExpression,
		TokenMinus:    p.parsePrefixExpression,
		TokenTrue:     p.parseBoolean,
		TokenFalse:    p.parseBoolean,
		TokenLParen:   p.parseGroupedExpression,
		TokenIf:       p.parseIfExpression,
		TokenFunction: p.parseFunctionLiteral,
		TokenLBracket: p.parseArrayLiteral,
		TokenLBrace:   p.parseHashLiteral,
	}

	p.infixParseFns = map[TokenType]infixParseFn{
		TokenPlus:     p.parseInfixExpression,
		TokenMinus:    p.parseInfixExpression,
		TokenSlash:    p.parseInfixExpression,
		TokenAsterisk: p.parseInfixExpression,
		TokenEq:       p.parseInfixExpression,
		TokenNotEq:    p.parseInfixExpression,
		TokenLT:       p.parseInfixExpression,
		TokenGT:       p.parseInfixExpression,
		TokenLParen:   p.parseCallExpression,
		TokenLBracket: p.parseIndexExpression,
	}

	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete program. Syntax errors are returned as a
// *ParseError.
func Parse(input string) (*Program, error) {
	p := NewParser(input)
	program := p.ParseProgram()
	if len(p.errors) > 0 {
		return nil, &ParseError{Errors: p.errors, Incomplete: p.incomplete}
	}
	return program, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek advances if the peek token matches, otherwise records an error.
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorAt(p.peekToken, "expected next token to be %s, got %s instead", t, p.peekToken.Type)
	return false
}

// errorAt records a parse error at tok. Input counts as incomplete when the
// first error is caused by running out of input.
func (p *Parser) errorAt(tok Token, format string, args ...interface{}) {
	if len(p.errors) == 0 && (tok.Type == TokenEOF ||
		(tok.Type == TokenIllegal && tok.Literal == msgUnterminatedString)) {
		p.incomplete = true
	}
	p.errors = append(p.errors, &SyntaxError{
		Pos: tok.Pos,
		End: tok.End,
		Msg: fmt.Sprintf(format, args...),
	})
}

// Errors returns accumulated parse errors as messages.
func (p *Parser) Errors() []string {
	msgs := make([]string, len(p.errors))
	for i, e := range p.errors {
		msgs[i] = e.Error()
	}
	return msgs
}

// SyntaxErrors returns accumulated parse errors with their positions.
func (p *Parser) SyntaxErrors() []*SyntaxError {
	return p.errors
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *Parser) spanFrom(start Position) Span {
	return Span{Start: start, End: p.curToken.End}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() *Program {
	program := &Program{}
	program.SpanVal.Start = p.curToken.Pos

	for !p.curTokenIs(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}

	program.SpanVal.End = p.curToken.End
	return program
}

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case TokenLet:
		return p.parseLetStatement()
	case TokenReturn:
		return p.parseReturnStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseLetStatement() Statement {
	start := p.curToken.Pos

	if !p.expectPeek(TokenIdent) {
		return nil
	}
	name := &Identifier{
		SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Value:   p.curToken.Literal,
	}

	if !p.expectPeek(TokenAssign) {
		return nil
	}
	p.nextToken()

	value := p.parseExpression(precLowest)
	if value == nil {
		return nil
	}

	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return &LetStatement{SpanVal: p.spanFrom(start), Name: name, Value: value}
}

func (p *Parser) parseReturnStatement() Statement {
	start := p.curToken.Pos
	p.nextToken()

	value := p.parseExpression(precLowest)
	if value == nil {
		return nil
	}

	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return &ReturnStatement{SpanVal: p.spanFrom(start), ReturnValue: value}
}

func (p *Parser) parseExpressionStatement() Statement {
	start := p.curToken.Pos

	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil
	}

	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return &ExpressionStatement{SpanVal: p.spanFrom(start), Expression: expr}
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{}
	block.SpanVal.Start = p.curToken.Pos
	p.nextToken()

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}

	if p.curTokenIs(TokenEOF) {
		p.errorAt(p.curToken, "expected }, got EOF")
		return nil
	}

	block.SpanVal.End = p.curToken.End
	return block
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	for !p.peekTokenIs(TokenSemicolon) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()

		leftExp = infix(leftExp)
		if leftExp == nil {
			return nil
		}
	}
	return leftExp
}

func (p *Parser) noPrefixParseFnError(tok Token) {
	switch tok.Type {
	case TokenIllegal:
		p.errorAt(tok, "%s", tok.Literal)
	case TokenEOF:
		p.errorAt(tok, "unexpected end of input")
	default:
		p.errorAt(tok, "no prefix parse function for %s found", tok.Type)
	}
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{
		SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Value:   p.curToken.Literal,
	}
}

func (p *Parser) parseIntegerLiteral() Expression {
	value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.errorAt(p.curToken, "could not parse %q as integer", p.curToken.Literal)
		return nil
	}
	return &IntegerLiteral{
		SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Literal: p.curToken.Literal,
		Value:   value,
	}
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{
		SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Value:   p.curToken.Literal,
	}
}

func (p *Parser) parseBoolean() Expression {
	return &Boolean{
		SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Value:   p.curTokenIs(TokenTrue),
	}
}

func (p *Parser) parsePrefixExpression() Expression {
	start := p.curToken.Pos
	operator := p.curToken.Literal

	p.nextToken()
	right := p.parseExpression(precPrefix)
	if right == nil {
		return nil
	}
	return &PrefixExpression{SpanVal: p.spanFrom(start), Operator: operator, Right: right}
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	operator := p.curToken.Literal
	precedence := p.curPrecedence()

	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return &InfixExpression{
		SpanVal:  p.spanFrom(left.Span().Start),
		Left:     left,
		Operator: operator,
		Right:    right,
	}
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()

	exp := p.parseExpression(precLowest)
	if exp == nil {
		return nil
	}
	if !p.expectPeek(TokenRParen) {
		return nil
	}
	return exp
}

func (p *Parser) parseIfExpression() Expression {
	start := p.curToken.Pos

	if !p.expectPeek(TokenLParen) {
		return nil
	}
	p.nextToken()

	condition := p.parseExpression(precLowest)
	if condition == nil {
		return nil
	}
	if !p.expectPeek(TokenRParen) {
		return nil
	}
	if !p.expectPeek(TokenLBrace) {
		return nil
	}

	consequence := p.parseBlockStatement()
	if consequence == nil {
		return nil
	}
	expression := &IfExpression{Condition: condition, Consequence: consequence}

	if p.peekTokenIs(TokenElse) {
		p.nextToken()
		if !p.expectPeek(TokenLBrace) {
			return nil
		}
		expression.Alternative = p.parseBlockStatement()
		if expression.Alternative == nil {
			return nil
		}
	}

	expression.SpanVal = p.spanFrom(start)
	return expression
}

func (p *Parser) parseFunctionLiteral() Expression {
	start := p.curToken.Pos

	if !p.expectPeek(TokenLParen) {
		return nil
	}
	params, ok := p.parseFunctionParameters()
	if !ok {
		return nil
	}
	if !p.expectPeek(TokenLBrace) {
		return nil
	}

	body := p.parseBlockStatement()
	if body == nil {
		return nil
	}
	return &FunctionLiteral{SpanVal: p.spanFrom(start), Parameters: params, Body: body}
}

func (p *Parser) parseFunctionParameters() ([]*Identifier, bool) {
	identifiers := []*Identifier{}

	if p.peekTokenIs(TokenRParen) {
		p.nextToken()
		return identifiers, true
	}

	for {
		if !p.expectPeek(TokenIdent) {
			return nil, false
		}
		identifiers = append(identifiers, &Identifier{
			SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End},
			Value:   p.curToken.Literal,
		})
		if !p.peekTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(TokenRParen) {
		return nil, false
	}
	return identifiers, true
}

func (p *Parser) parseCallExpression(function Expression) Expression {
	args, ok := p.parseExpressionList(TokenRParen)
	if !ok {
		return nil
	}
	return &CallExpression{
		SpanVal:   p.spanFrom(function.Span().Start),
		Function:  function,
		Arguments: args,
	}
}

func (p *Parser) parseArrayLiteral() Expression {
	start := p.curToken.Pos

	elements, ok := p.parseExpressionList(TokenRBracket)
	if !ok {
		return nil
	}
	return &ArrayLiteral{SpanVal: p.spanFrom(start), Elements: elements}
}

// parseExpressionList parses comma-separated expressions up to end. The
// current token is the opening delimiter.
func (p *Parser) parseExpressionList(end TokenType) ([]Expression, bool) {
	list := []Expression{}

	if p.peekTokenIs(end) {
		p.nextToken()
		return list, true
	}

	p.nextToken()
	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil, false
	}
	list = append(list, expr)

	for p.peekTokenIs(TokenComma) {
		p.nextToken()
		p.nextToken()
		expr := p.parseExpression(precLowest)
		if expr == nil {
			return nil, false
		}
		list = append(list, expr)
	}

	if !p.expectPeek(end) {
		return nil, false
	}
	return list, true
}

func (p *Parser) parseIndexExpression(left Expression) Expression {
	p.nextToken()

	index := p.parseExpression(precLowest)
	if index == nil {
		return nil
	}
	if !p.expectPeek(TokenRBracket) {
		return nil
	}
	return &IndexExpression{SpanVal: p.spanFrom(left.Span().Start), Left: left, Index: index}
}

func (p *Parser) parseHashLiteral() Expression {
	hash := &HashLiteral{Pairs: []HashPair{}}
	start := p.curToken.Pos

	for !p.peekTokenIs(TokenRBrace) {
		p.nextToken()
		key := p.parseExpression(precLowest)
		if key == nil {
			return nil
		}

		if !p.expectPeek(TokenColon) {
			return nil
		}

		p.nextToken()
		value := p.parseExpression(precLowest)
		if value == nil {
			return nil
		}

		hash.Pairs = append(hash.Pairs, HashPair{Key: key, Value: value})

		if !p.peekTokenIs(TokenRBrace) && !p.expectPeek(TokenComma) {
			return nil
		}
	}

	if !p.expectPeek(TokenRBrace) {
		return nil
	}

	hash.SpanVal = p.spanFrom(start)
	return hash
}
