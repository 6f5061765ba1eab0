package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/monkey/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Operand limits imposed by the instruction encoding.
const (
	maxConstants = 1 << 16
	maxGlobals   = 1 << 16
	maxLocals    = 1 << 8
	maxArgs      = 1<<8 - 1
	maxElements  = 1<<16 - 1
)

// jumpPlaceholder fills a forward jump's operand until it is patched.
const jumpPlaceholder = 0xFFFF

// CompileError reports why a program could not be compiled. No bytecode is
// produced when compilation fails.
type CompileError struct {
	Msg  string
	Span Span
}

func (e *CompileError) Error() string {
	return e.Msg
}

// EmittedInstruction records an opcode and the offset it was written at.
type EmittedInstruction struct {
	Opcode   vm.Opcode
	Position int
}

// CompilationScope is the code being generated for one function body (or the
// top level), together with the symbol table level it owns.
type CompilationScope struct {
	instructions        vm.Instructions
	lastInstruction     EmittedInstruction
	previousInstruction EmittedInstruction
	symbols             *SymbolTable
}

// Compiler compiles AST nodes to bytecode.
type Compiler struct {
	constants []vm.Object

	scopes     []CompilationScope
	scopeIndex int
}

// New creates a compiler with a fresh global symbol table that knows the
// builtins.
func New() *Compiler {
	symbolTable := NewSymbolTable()
	for i, b := range vm.Builtins {
		symbolTable.DefineBuiltin(i, b.Name)
	}
	return NewWithState(symbolTable, []vm.Object{})
}

// NewWithState creates a compiler that continues from an existing global
// symbol table and constant pool. The REPL uses this to keep bindings alive
// across inputs.
func NewWithState(s *SymbolTable, constants []vm.Object) *Compiler {
	return &Compiler{
		constants: constants,
		scopes: []CompilationScope{{
			instructions: vm.Instructions{},
			symbols:      s,
		}},
	}
}

// Bytecode returns the top-level instructions and the constant pool.
func (c *Compiler) Bytecode() *vm.Bytecode {
	return &vm.Bytecode{
		Instructions: c.currentInstructions(),
		Constants:    c.constants,
	}
}

// SymbolTable returns the global symbol table.
func (c *Compiler) SymbolTable() *SymbolTable {
	return c.scopes[0].symbols
}

// Constants returns the constant pool.
func (c *Compiler) Constants() []vm.Object {
	return c.constants
}

// CompileSource parses and compiles a complete program.
func CompileSource(input string) (*vm.Bytecode, error) {
	program, err := Parse(input)
	if err != nil {
		return nil, err
	}

	c := New()
	if err := c.Compile(program); err != nil {
		return nil, err
	}
	return c.Bytecode(), nil
}

func (c *Compiler) errorf(n Node, format string, args ...interface{}) error {
	return &CompileError{Msg: fmt.Sprintf(format, args...), Span: n.Span()}
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// Compile generates code for node and everything below it. The first error
// aborts compilation.
func (c *Compiler) Compile(node Node) error {
	switch node := node.(type) {
	case *Program:
		for _, s := range node.Statements {
			if err := c.Compile(s); err != nil {
				return err
			}
		}

	case *ExpressionStatement:
		if err := c.Compile(node.Expression); err != nil {
			return err
		}
		c.emit(vm.OpPop)

	case *BlockStatement:
		for _, s := range node.Statements {
			if err := c.Compile(s); err != nil {
				return err
			}
		}

	case *LetStatement:
		if err := c.Compile(node.Value); err != nil {
			return err
		}
		symbol := c.symbols().Define(node.Name.Value)
		if symbol.Scope == GlobalScope {
			if symbol.Index >= maxGlobals {
				return c.errorf(node, "too many global bindings")
			}
			c.emit(vm.OpSetGlobal, symbol.Index)
		} else {
			if symbol.Index >= maxLocals {
				return c.errorf(node, "too many local bindings")
			}
			c.emit(vm.OpSetLocal, symbol.Index)
		}

	case *ReturnStatement:
		if err := c.Compile(node.ReturnValue); err != nil {
			return err
		}
		c.emit(vm.OpReturnValue)

	case *Identifier:
		symbol, ok := c.symbols().Resolve(node.Value)
		if !ok {
			return c.errorf(node, "undefined variable %s", node.Value)
		}
		if symbol.Scope == LocalScope {
			if _, own := c.symbols().resolveOwn(node.Value); !own {
				return c.errorf(node, "closures are not supported: free variable %s", node.Value)
			}
		}
		c.loadSymbol(symbol)

	case *IntegerLiteral:
		integer := &vm.Integer{Value: node.Value}
		return c.emitConstant(node, integer)

	case *StringLiteral:
		str := &vm.String{Value: node.Value}
		return c.emitConstant(node, str)

	case *Boolean:
		if node.Value {
			c.emit(vm.OpTrue)
		} else {
			c.emit(vm.OpFalse)
		}

	case *PrefixExpression:
		if err := c.Compile(node.Right); err != nil {
			return err
		}
		switch node.Operator {
		case "!":
			c.emit(vm.OpBang)
		case "-":
			c.emit(vm.OpMinus)
		default:
			return c.errorf(node, "unknown operator %s", node.Operator)
		}

	case *InfixExpression:
		return c.compileInfix(node)

	case *IfExpression:
		return c.compileIf(node)

	case *FunctionLiteral:
		return c.compileFunction(node)

	case *CallExpression:
		if len(node.Arguments) > maxArgs {
			return c.errorf(node, "too many arguments: %d", len(node.Arguments))
		}
		if err := c.Compile(node.Function); err != nil {
			return err
		}
		for _, a := range node.Arguments {
			if err := c.Compile(a); err != nil {
				return err
			}
		}
		c.emit(vm.OpCall, len(node.Arguments))

	case *ArrayLiteral:
		if len(node.Elements) > maxElements {
			return c.errorf(node, "too many array elements: %d", len(node.Elements))
		}
		for _, el := range node.Elements {
			if err := c.Compile(el); err != nil {
				return err
			}
		}
		c.emit(vm.OpArray, len(node.Elements))

	case *HashLiteral:
		return c.compileHash(node)

	case *IndexExpression:
		if err := c.Compile(node.Left); err != nil {
			return err
		}
		if err := c.Compile(node.Index); err != nil {
			return err
		}
		c.emit(vm.OpIndex)

	case nil:
		return &CompileError{Msg: "unsupported node type <nil>"}

	default:
		return c.errorf(node, "unsupported node type %T", node)
	}

	return nil
}

// compileInfix compiles both operands and the operator. `<` is compiled as
// `>` with the operands swapped, so the VM only needs one ordering opcode.
func (c *Compiler) compileInfix(node *InfixExpression) error {
	if node.Operator == "<" {
		if err := c.Compile(node.Right); err != nil {
			return err
		}
		if err := c.Compile(node.Left); err != nil {
			return err
		}
		c.emit(vm.OpGreaterThan)
		return nil
	}

	if err := c.Compile(node.Left); err != nil {
		return err
	}
	if err := c.Compile(node.Right); err != nil {
		return err
	}

	switch node.Operator {
	case "+":
		c.emit(vm.OpAdd)
	case "-":
		c.emit(vm.OpSub)
	case "*":
		c.emit(vm.OpMul)
	case "/":
		c.emit(vm.OpDiv)
	case ">":
		c.emit(vm.OpGreaterThan)
	case "==":
		c.emit(vm.OpEqual)
	case "!=":
		c.emit(vm.OpNotEqual)
	default:
		return c.errorf(node, "unknown operator %s", node.Operator)
	}
	return nil
}

// compileIf emits
//
//	<condition>
//	JUMP_NOT_TRUTHY else
//	<consequence>
//	JUMP end
//	else: <alternative or NULL>
//	end:
//
// Both branches leave exactly one value on the stack.
func (c *Compiler) compileIf(node *IfExpression) error {
	if err := c.Compile(node.Condition); err != nil {
		return err
	}

	jumpNotTruthyPos := c.emit(vm.OpJumpNotTruthy, jumpPlaceholder)

	if err := c.compileBranch(node.Consequence); err != nil {
		return err
	}

	jumpPos := c.emit(vm.OpJump, jumpPlaceholder)

	if err := c.changeOperand(node, jumpNotTruthyPos, len(c.currentInstructions())); err != nil {
		return err
	}

	if node.Alternative == nil {
		c.emit(vm.OpNull)
	} else if err := c.compileBranch(node.Alternative); err != nil {
		return err
	}

	return c.changeOperand(node, jumpPos, len(c.currentInstructions()))
}

// compileBranch compiles one arm of a conditional so that it leaves a value:
// the trailing expression's, or null when the block does not end in one.
func (c *Compiler) compileBranch(block *BlockStatement) error {
	if err := c.Compile(block); err != nil {
		return err
	}

	n := len(block.Statements)
	if n > 0 {
		if _, ok := block.Statements[n-1].(*ExpressionStatement); ok && c.lastInstructionIs(vm.OpPop) {
			c.removeLastPop()
			return nil
		}
	}
	c.emit(vm.OpNull)
	return nil
}

// compileFunction compiles the body in a fresh scope and stores the result in
// the constant pool.
func (c *Compiler) compileFunction(node *FunctionLiteral) error {
	c.enterScope()

	for _, p := range node.Parameters {
		c.symbols().Define(p.Value)
	}

	if err := c.Compile(node.Body); err != nil {
		c.leaveScope()
		return err
	}

	if c.lastInstructionIs(vm.OpPop) {
		c.replaceLastPopWithReturn()
	}
	if !c.lastInstructionIs(vm.OpReturnValue) {
		c.emit(vm.OpReturn)
	}

	numLocals := c.symbols().NumDefinitions()
	instructions := c.leaveScope()

	if numLocals > maxLocals {
		return c.errorf(node, "too many locals in function: %d", numLocals)
	}

	fn := &vm.CompiledFunction{
		Instructions:  instructions,
		NumLocals:     numLocals,
		NumParameters: len(node.Parameters),
	}
	return c.emitConstant(node, fn)
}

// compileHash emits keys and values sorted by the key's source text, so the
// same literal always compiles to the same bytes.
func (c *Compiler) compileHash(node *HashLiteral) error {
	if len(node.Pairs)*2 > maxElements {
		return c.errorf(node, "too many hash entries: %d", len(node.Pairs))
	}

	pairs := make([]HashPair, len(node.Pairs))
	copy(pairs, node.Pairs)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Key.String() < pairs[j].Key.String()
	})

	for _, p := range pairs {
		if err := c.Compile(p.Key); err != nil {
			return err
		}
		if err := c.Compile(p.Value); err != nil {
			return err
		}
	}

	c.emit(vm.OpHash, len(pairs)*2)
	return nil
}

func (c *Compiler) loadSymbol(s Symbol) {
	switch s.Scope {
	case GlobalScope:
		c.emit(vm.OpGetGlobal, s.Index)
	case LocalScope:
		c.emit(vm.OpGetLocal, s.Index)
	case BuiltinScope:
		c.emit(vm.OpGetBuiltin, s.Index)
	}
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emitConstant(n Node, obj vm.Object) error {
	if len(c.constants) >= maxConstants {
		return c.errorf(n, "too many constants")
	}
	c.emit(vm.OpConstant, c.addConstant(obj))
	return nil
}

func (c *Compiler) addConstant(obj vm.Object) int {
	c.constants = append(c.constants, obj)
	return len(c.constants) - 1
}

// emit appends an instruction and returns its offset.
func (c *Compiler) emit(op vm.Opcode, operands ...int) int {
	ins := vm.Make(op, operands...)
	pos := c.addInstruction(ins)

	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []byte) int {
	posNewInstruction := len(c.currentInstructions())
	c.scopes[c.scopeIndex].instructions = append(c.currentInstructions(), ins...)
	return posNewInstruction
}

func (c *Compiler) setLastInstruction(op vm.Opcode, pos int) {
	previous := c.scopes[c.scopeIndex].lastInstruction
	last := EmittedInstruction{Opcode: op, Position: pos}

	c.scopes[c.scopeIndex].previousInstruction = previous
	c.scopes[c.scopeIndex].lastInstruction = last
}

func (c *Compiler) lastInstructionIs(op vm.Opcode) bool {
	if len(c.currentInstructions()) == 0 {
		return false
	}
	return c.scopes[c.scopeIndex].lastInstruction.Opcode == op
}

// removeLastPop truncates the trailing pop so the expression's value stays on
// the stack.
func (c *Compiler) removeLastPop() {
	last := c.scopes[c.scopeIndex].lastInstruction
	previous := c.scopes[c.scopeIndex].previousInstruction

	old := c.currentInstructions()
	c.scopes[c.scopeIndex].instructions = old[:last.Position]
	c.scopes[c.scopeIndex].lastInstruction = previous
}

func (c *Compiler) replaceInstruction(pos int, newInstruction []byte) {
	ins := c.currentInstructions()
	copy(ins[pos:], newInstruction)
}

// changeOperand rewrites the operand of the instruction at pos in place.
func (c *Compiler) changeOperand(n Node, pos int, operand int) error {
	if operand > jumpPlaceholder {
		return c.errorf(n, "jump target %d out of range", operand)
	}
	op := vm.Opcode(c.currentInstructions()[pos])
	c.replaceInstruction(pos, vm.Make(op, operand))
	return nil
}

// replaceLastPopWithReturn turns a function body's trailing expression into
// its return value.
func (c *Compiler) replaceLastPopWithReturn() {
	lastPos := c.scopes[c.scopeIndex].lastInstruction.Position
	c.replaceInstruction(lastPos, vm.Make(vm.OpReturnValue))

	c.scopes[c.scopeIndex].lastInstruction.Opcode = vm.OpReturnValue
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func (c *Compiler) currentInstructions() vm.Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) symbols() *SymbolTable {
	return c.scopes[c.scopeIndex].symbols
}

func (c *Compiler) enterScope() {
	scope := CompilationScope{
		instructions: vm.Instructions{},
		symbols:      NewEnclosedSymbolTable(c.symbols()),
	}
	c.scopes = append(c.scopes, scope)
	c.scopeIndex++
}

func (c *Compiler) leaveScope() vm.Instructions {
	instructions := c.currentInstructions()

	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--
	return instructions
}
