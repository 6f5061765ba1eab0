package compiler

import (
	"bytes"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Monkey
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

// Node is the interface implemented by all AST nodes. String renders the
// node back to source form.
type Node interface {
	Span() Span
	String() string
	node() // marker method
}

// Statement is the interface for statement nodes.
type Statement interface {
	Node
	stmt() // marker method
}

// Expression is the interface for expression nodes.
type Expression interface {
	Node
	expr() // marker method
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is the root node: a sequence of statements.
type Program struct {
	SpanVal    Span
	Statements []Statement
}

func (p *Program) Span() Span { return p.SpanVal }
func (p *Program) node()      {}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// LetStatement binds a name: let <name> = <value>;
type LetStatement struct {
	SpanVal Span
	Name    *Identifier
	Value   Expression
}

func (s *LetStatement) Span() Span { return s.SpanVal }
func (s *LetStatement) node()      {}
func (s *LetStatement) stmt()      {}

func (s *LetStatement) String() string {
	var out bytes.Buffer
	out.WriteString("let ")
	out.WriteString(s.Name.String())
	out.WriteString(" = ")
	if s.Value != nil {
		out.WriteString(s.Value.String())
	}
	out.WriteString(";")
	return out.String()
}

// ReturnStatement returns from the enclosing function: return <value>;
type ReturnStatement struct {
	SpanVal     Span
	ReturnValue Expression
}

func (s *ReturnStatement) Span() Span { return s.SpanVal }
func (s *ReturnStatement) node()      {}
func (s *ReturnStatement) stmt()      {}

func (s *ReturnStatement) String() string {
	var out bytes.Buffer
	out.WriteString("return ")
	if s.ReturnValue != nil {
		out.WriteString(s.ReturnValue.String())
	}
	out.WriteString(";")
	return out.String()
}

// ExpressionStatement is an expression evaluated for its value.
type ExpressionStatement struct {
	SpanVal    Span
	Expression Expression
}

func (s *ExpressionStatement) Span() Span { return s.SpanVal }
func (s *ExpressionStatement) node()      {}
func (s *ExpressionStatement) stmt()      {}

func (s *ExpressionStatement) String() string {
	if s.Expression != nil {
		return s.Expression.String()
	}
	return ""
}

// BlockStatement is a braced statement list. Blocks do not open a new
// variable scope.
type BlockStatement struct {
	SpanVal    Span
	Statements []Statement
}

func (s *BlockStatement) Span() Span { return s.SpanVal }
func (s *BlockStatement) node()      {}
func (s *BlockStatement) stmt()      {}

func (s *BlockStatement) String() string {
	var out bytes.Buffer
	for _, st := range s.Statements {
		out.WriteString(st.String())
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Identifier is a variable reference.
type Identifier struct {
	SpanVal Span
	Value   string
}

func (n *Identifier) Span() Span     { return n.SpanVal }
func (n *Identifier) node()          {}
func (n *Identifier) expr()          {}
func (n *Identifier) String() string { return n.Value }

// IntegerLiteral is a decimal integer literal.
type IntegerLiteral struct {
	SpanVal Span
	Literal string
	Value   int64
}

func (n *IntegerLiteral) Span() Span     { return n.SpanVal }
func (n *IntegerLiteral) node()          {}
func (n *IntegerLiteral) expr()          {}
func (n *IntegerLiteral) String() string { return n.Literal }

// StringLiteral is a string literal with escapes already resolved.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span     { return n.SpanVal }
func (n *StringLiteral) node()          {}
func (n *StringLiteral) expr()          {}
func (n *StringLiteral) String() string { return n.Value }

// Boolean is true or false.
type Boolean struct {
	SpanVal Span
	Value   bool
}

func (n *Boolean) Span() Span { return n.SpanVal }
func (n *Boolean) node()      {}
func (n *Boolean) expr()      {}

func (n *Boolean) String() string {
	if n.Value {
		return "true"
	}
	return "false"
}

// PrefixExpression is a unary operator application: !x, -x.
type PrefixExpression struct {
	SpanVal  Span
	Operator string
	Right    Expression
}

func (n *PrefixExpression) Span() Span { return n.SpanVal }
func (n *PrefixExpression) node()      {}
func (n *PrefixExpression) expr()      {}

func (n *PrefixExpression) String() string {
	return "(" + n.Operator + n.Right.String() + ")"
}

// InfixExpression is a binary operator application.
type InfixExpression struct {
	SpanVal  Span
	Left     Expression
	Operator string
	Right    Expression
}

func (n *InfixExpression) Span() Span { return n.SpanVal }
func (n *InfixExpression) node()      {}
func (n *InfixExpression) expr()      {}

func (n *InfixExpression) String() string {
	return "(" + n.Left.String() + " " + n.Operator + " " + n.Right.String() + ")"
}

// IfExpression is a conditional with an optional alternative. Its value is
// the value of the branch taken, or null.
type IfExpression struct {
	SpanVal     Span
	Condition   Expression
	Consequence *BlockStatement
	Alternative *BlockStatement
}

func (n *IfExpression) Span() Span { return n.SpanVal }
func (n *IfExpression) node()      {}
func (n *IfExpression) expr()      {}

func (n *IfExpression) String() string {
	var out bytes.Buffer
	out.WriteString("if")
	out.WriteString(n.Condition.String())
	out.WriteString(" ")
	out.WriteString(n.Consequence.String())
	if n.Alternative != nil {
		out.WriteString("else ")
		out.WriteString(n.Alternative.String())
	}
	return out.String()
}

// FunctionLiteral is fn(<params>) { <body> }.
type FunctionLiteral struct {
	SpanVal    Span
	Parameters []*Identifier
	Body       *BlockStatement
}

func (n *FunctionLiteral) Span() Span { return n.SpanVal }
func (n *FunctionLiteral) node()      {}
func (n *FunctionLiteral) expr()      {}

func (n *FunctionLiteral) String() string {
	params := make([]string, len(n.Parameters))
	for i, p := range n.Parameters {
		params[i] = p.String()
	}
	return "fn(" + strings.Join(params, ", ") + ") " + n.Body.String()
}

// CallExpression applies a function to arguments.
type CallExpression struct {
	SpanVal   Span
	Function  Expression // Identifier or FunctionLiteral
	Arguments []Expression
}

func (n *CallExpression) Span() Span { return n.SpanVal }
func (n *CallExpression) node()      {}
func (n *CallExpression) expr()      {}

func (n *CallExpression) String() string {
	return n.Function.String() + "(" + joinExpressions(n.Arguments) + ")"
}

// ArrayLiteral is [a, b, c].
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expression
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

func (n *ArrayLiteral) String() string {
	return "[" + joinExpressions(n.Elements) + "]"
}

// HashPair is one key: value entry of a hash literal.
type HashPair struct {
	Key   Expression
	Value Expression
}

// HashLiteral is {k: v, ...}. Pairs keep source order.
type HashLiteral struct {
	SpanVal Span
	Pairs   []HashPair
}

func (n *HashLiteral) Span() Span { return n.SpanVal }
func (n *HashLiteral) node()      {}
func (n *HashLiteral) expr()      {}

func (n *HashLiteral) String() string {
	pairs := make([]string, len(n.Pairs))
	for i, p := range n.Pairs {
		pairs[i] = p.Key.String() + ":" + p.Value.String()
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// IndexExpression is <left>[<index>].
type IndexExpression struct {
	SpanVal Span
	Left    Expression
	Index   Expression
}

func (n *IndexExpression) Span() Span { return n.SpanVal }
func (n *IndexExpression) node()      {}
func (n *IndexExpression) expr()      {}

func (n *IndexExpression) String() string {
	return "(" + n.Left.String() + "[" + n.Index.String() + "])"
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
