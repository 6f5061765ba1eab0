package server

import (
	"errors"
	"sort"

	"github.com/chazu/monkey/compiler"
)

// Diagnostic is a problem found in a document.
type Diagnostic struct {
	Span   compiler.Span
	Msg    string
	Source string // "parser" or "compiler"
}

// Binding is a name introduced by let or by a function parameter, together
// with every place that refers to it.
type Binding struct {
	Name   string
	Scope  compiler.SymbolScope
	Index  int
	Span   compiler.Span // the defining identifier
	Params []string      // parameters, when the bound value is a function literal
	IsFunc bool
	Refs   []compiler.Span
}

// Analysis is the result of checking one document version.
type Analysis struct {
	Diagnostics []Diagnostic
	Bindings    []*Binding // in definition order
}

// Analyzer checks documents and remembers the latest analysis per URI. It is
// not safe for concurrent use; the LSP server drives it from an EngineWorker.
type Analyzer struct {
	results map[string]*Analysis
}

// NewAnalyzer creates an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{results: make(map[string]*Analysis)}
}

// Analyze parses and compiles text, stores the result under uri and returns
// it. Compilation is skipped when the text does not parse.
func (a *Analyzer) Analyze(uri, text string) *Analysis {
	p := compiler.NewParser(text)
	program := p.ParseProgram()

	result := &Analysis{}
	for _, se := range p.SyntaxErrors() {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Span:   compiler.Span{Start: se.Pos, End: se.End},
			Msg:    se.Msg,
			Source: "parser",
		})
	}

	if len(result.Diagnostics) == 0 {
		if err := compiler.New().Compile(program); err != nil {
			d := Diagnostic{Msg: err.Error(), Source: "compiler"}
			var cerr *compiler.CompileError
			if errors.As(err, &cerr) {
				d.Msg, d.Span = cerr.Msg, cerr.Span
			}
			result.Diagnostics = append(result.Diagnostics, d)
		}
	}

	r := newResolver()
	r.visit(program)
	result.Bindings = r.bindings

	a.results[uri] = result
	return result
}

// Get returns the latest analysis for uri, or nil.
func (a *Analyzer) Get(uri string) *Analysis {
	return a.results[uri]
}

// Forget drops the analysis for uri.
func (a *Analyzer) Forget(uri string) {
	delete(a.results, uri)
}

// Globals returns the top-level bindings, keeping only the latest definition
// of each name, sorted by name.
func (an *Analysis) Globals() []*Binding {
	latest := make(map[string]*Binding)
	for _, b := range an.Bindings {
		if b.Scope == compiler.GlobalScope {
			latest[b.Name] = b
		}
	}

	out := make([]*Binding, 0, len(latest))
	for _, b := range latest {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BindingAt returns the binding whose definition or a reference covers the
// 1-based line and column, or nil.
func (an *Analysis) BindingAt(line, col int) *Binding {
	for _, b := range an.Bindings {
		if spanContains(b.Span, line, col) {
			return b
		}
		for _, ref := range b.Refs {
			if spanContains(ref, line, col) {
				return b
			}
		}
	}
	return nil
}

func spanContains(s compiler.Span, line, col int) bool {
	if line < s.Start.Line || line > s.End.Line {
		return false
	}
	if line == s.Start.Line && col < s.Start.Column {
		return false
	}
	if line == s.End.Line && col > s.End.Column {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Resolver: assigns slots the way the compiler does, recording references
// ---------------------------------------------------------------------------

type scope struct {
	outer *scope
	names map[string]*Binding
	count int
}

type resolver struct {
	current  *scope
	bindings []*Binding
}

func newResolver() *resolver {
	return &resolver{current: &scope{names: make(map[string]*Binding)}}
}

func (r *resolver) define(id *compiler.Identifier, value compiler.Expression) {
	b := &Binding{
		Name:  id.Value,
		Scope: compiler.LocalScope,
		Index: r.current.count,
		Span:  id.Span(),
	}
	if r.current.outer == nil {
		b.Scope = compiler.GlobalScope
	}
	if fn, ok := value.(*compiler.FunctionLiteral); ok {
		b.IsFunc = true
		b.Params = make([]string, len(fn.Parameters))
		for i, p := range fn.Parameters {
			b.Params[i] = p.Value
		}
	}

	r.current.names[id.Value] = b
	r.current.count++
	r.bindings = append(r.bindings, b)
}

func (r *resolver) lookup(name string) *Binding {
	for s := r.current; s != nil; s = s.outer {
		if b, ok := s.names[name]; ok {
			return b
		}
	}
	return nil
}

func (r *resolver) visit(node compiler.Node) {
	switch node := node.(type) {
	case *compiler.Program:
		for _, s := range node.Statements {
			r.visit(s)
		}
	case *compiler.BlockStatement:
		for _, s := range node.Statements {
			r.visit(s)
		}
	case *compiler.LetStatement:
		r.visit(node.Value)
		r.define(node.Name, node.Value)
	case *compiler.ReturnStatement:
		r.visit(node.ReturnValue)
	case *compiler.ExpressionStatement:
		r.visit(node.Expression)
	case *compiler.Identifier:
		if b := r.lookup(node.Value); b != nil {
			b.Refs = append(b.Refs, node.Span())
		}
	case *compiler.PrefixExpression:
		r.visit(node.Right)
	case *compiler.InfixExpression:
		r.visit(node.Left)
		r.visit(node.Right)
	case *compiler.IfExpression:
		r.visit(node.Condition)
		r.visit(node.Consequence)
		if node.Alternative != nil {
			r.visit(node.Alternative)
		}
	case *compiler.FunctionLiteral:
		r.current = &scope{outer: r.current, names: make(map[string]*Binding)}
		for _, p := range node.Parameters {
			r.define(p, nil)
		}
		r.visit(node.Body)
		r.current = r.current.outer
	case *compiler.CallExpression:
		r.visit(node.Function)
		for _, arg := range node.Arguments {
			r.visit(arg)
		}
	case *compiler.ArrayLiteral:
		for _, el := range node.Elements {
			r.visit(el)
		}
	case *compiler.HashLiteral:
		for _, pair := range node.Pairs {
			r.visit(pair.Key)
			r.visit(pair.Value)
		}
	case *compiler.IndexExpression:
		r.visit(node.Left)
		r.visit(node.Index)
	}
}
