package compiler

// ---------------------------------------------------------------------------
// Symbol table: name resolution across nested function scopes
// ---------------------------------------------------------------------------

// SymbolScope says where a symbol's value lives at run time.
type SymbolScope string

const (
	GlobalScope  SymbolScope = "GLOBAL"
	LocalScope   SymbolScope = "LOCAL"
	BuiltinScope SymbolScope = "BUILTIN"
)

// Symbol is a resolved name: its scope and its slot within that scope.
type Symbol struct {
	Name  string
	Scope SymbolScope
	Index int
}

// SymbolTable maps names to symbols for one scope level. Tables chain to
// their enclosing level through Outer.
type SymbolTable struct {
	outer *SymbolTable

	store          map[string]Symbol
	numDefinitions int
}

// NewSymbolTable creates an outermost (global) table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]Symbol)}
}

// NewEnclosedSymbolTable creates a table for a function body nested in outer.
func NewEnclosedSymbolTable(outer *SymbolTable) *SymbolTable {
	s := NewSymbolTable()
	s.outer = outer
	return s
}

// Outer returns the enclosing table, or nil for the global table.
func (s *SymbolTable) Outer() *SymbolTable {
	return s.outer
}

// NumDefinitions returns how many slots Define has handed out at this level.
func (s *SymbolTable) NumDefinitions() int {
	return s.numDefinitions
}

// Clone returns a copy of this level that can be defined into without
// affecting s. Enclosing levels are shared, not copied.
func (s *SymbolTable) Clone() *SymbolTable {
	c := &SymbolTable{
		outer:          s.outer,
		store:          make(map[string]Symbol, len(s.store)),
		numDefinitions: s.numDefinitions,
	}
	for name, sym := range s.store {
		c.store[name] = sym
	}
	return c
}

// Define binds name to the next free slot at this level. Redefining a name
// shadows the earlier binding from here on and still consumes a new slot.
func (s *SymbolTable) Define(name string) Symbol {
	symbol := Symbol{Name: name, Index: s.numDefinitions}
	if s.outer == nil {
		symbol.Scope = GlobalScope
	} else {
		symbol.Scope = LocalScope
	}

	s.store[name] = symbol
	s.numDefinitions++
	return symbol
}

// DefineBuiltin binds name to a builtin function index. It does not consume
// a definition slot.
func (s *SymbolTable) DefineBuiltin(index int, name string) Symbol {
	symbol := Symbol{Name: name, Scope: BuiltinScope, Index: index}
	s.store[name] = symbol
	return symbol
}

// Resolve looks name up at this level, then in each enclosing level.
func (s *SymbolTable) Resolve(name string) (Symbol, bool) {
	obj, ok := s.store[name]
	if !ok && s.outer != nil {
		return s.outer.Resolve(name)
	}
	return obj, ok
}

// resolveOwn looks name up at this level only.
func (s *SymbolTable) resolveOwn(name string) (Symbol, bool) {
	obj, ok := s.store[name]
	return obj, ok
}

// Names returns every name bound at this level, in no particular order.
func (s *SymbolTable) Names() []string {
	names := make([]string, 0, len(s.store))
	for name := range s.store {
		names = append(names, name)
	}
	return names
}
