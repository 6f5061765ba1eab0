package compiler

import "testing"

func TestDefine(t *testing.T) {
	expected := map[string]Symbol{
		"a": {Name: "a", Scope: GlobalScope, Index: 0},
		"b": {Name: "b", Scope: GlobalScope, Index: 1},
		"c": {Name: "c", Scope: LocalScope, Index: 0},
		"d": {Name: "d", Scope: LocalScope, Index: 1},
		"e": {Name: "e", Scope: LocalScope, Index: 0},
		"f": {Name: "f", Scope: LocalScope, Index: 1},
	}

	global := NewSymbolTable()
	if a := global.Define("a"); a != expected["a"] {
		t.Errorf("a = %+v, want %+v", a, expected["a"])
	}
	if b := global.Define("b"); b != expected["b"] {
		t.Errorf("b = %+v, want %+v", b, expected["b"])
	}

	firstLocal := NewEnclosedSymbolTable(global)
	if c := firstLocal.Define("c"); c != expected["c"] {
		t.Errorf("c = %+v, want %+v", c, expected["c"])
	}
	if d := firstLocal.Define("d"); d != expected["d"] {
		t.Errorf("d = %+v, want %+v", d, expected["d"])
	}

	secondLocal := NewEnclosedSymbolTable(firstLocal)
	if e := secondLocal.Define("e"); e != expected["e"] {
		t.Errorf("e = %+v, want %+v", e, expected["e"])
	}
	if f := secondLocal.Define("f"); f != expected["f"] {
		t.Errorf("f = %+v, want %+v", f, expected["f"])
	}
}

func TestResolveGlobal(t *testing.T) {
	global := NewSymbolTable()
	global.Define("a")
	global.Define("b")

	expected := []Symbol{
		{Name: "a", Scope: GlobalScope, Index: 0},
		{Name: "b", Scope: GlobalScope, Index: 1},
	}

	for _, sym := range expected {
		result, ok := global.Resolve(sym.Name)
		if !ok {
			t.Errorf("name %s not resolvable", sym.Name)
			continue
		}
		if result != sym {
			t.Errorf("expected %s to resolve to %+v, got=%+v", sym.Name, sym, result)
		}
	}

	if _, ok := global.Resolve("missing"); ok {
		t.Error("missing name resolved")
	}
}

func TestResolveNestedLocal(t *testing.T) {
	global := NewSymbolTable()
	global.Define("a")
	global.Define("b")

	firstLocal := NewEnclosedSymbolTable(global)
	firstLocal.Define("c")
	firstLocal.Define("d")

	secondLocal := NewEnclosedSymbolTable(firstLocal)
	secondLocal.Define("e")
	secondLocal.Define("f")

	tests := []struct {
		table           *SymbolTable
		expectedSymbols []Symbol
	}{
		{
			firstLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "c", Scope: LocalScope, Index: 0},
				{Name: "d", Scope: LocalScope, Index: 1},
			},
		},
		{
			secondLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "e", Scope: LocalScope, Index: 0},
				{Name: "f", Scope: LocalScope, Index: 1},
			},
		},
	}

	for _, tt := range tests {
		for _, sym := range tt.expectedSymbols {
			result, ok := tt.table.Resolve(sym.Name)
			if !ok {
				t.Errorf("name %s not resolvable", sym.Name)
				continue
			}
			if result != sym {
				t.Errorf("expected %s to resolve to %+v, got=%+v", sym.Name, sym, result)
			}
		}
	}

	// An enclosing function's local still resolves through the chain, but
	// is not owned by the inner level.
	if sym, ok := secondLocal.Resolve("c"); !ok || sym.Scope != LocalScope {
		t.Errorf("c = %+v, %v", sym, ok)
	}
	if _, own := secondLocal.resolveOwn("c"); own {
		t.Error("c reported as owned by the inner level")
	}
}

func TestDefineResolveBuiltins(t *testing.T) {
	global := NewSymbolTable()
	firstLocal := NewEnclosedSymbolTable(global)
	secondLocal := NewEnclosedSymbolTable(firstLocal)

	expected := []Symbol{
		{Name: "a", Scope: BuiltinScope, Index: 0},
		{Name: "c", Scope: BuiltinScope, Index: 1},
		{Name: "e", Scope: BuiltinScope, Index: 2},
		{Name: "f", Scope: BuiltinScope, Index: 3},
	}

	for i, v := range expected {
		global.DefineBuiltin(i, v.Name)
	}

	if n := global.NumDefinitions(); n != 0 {
		t.Errorf("builtins consumed %d definition slots", n)
	}

	for _, table := range []*SymbolTable{global, firstLocal, secondLocal} {
		for _, sym := range expected {
			result, ok := table.Resolve(sym.Name)
			if !ok {
				t.Errorf("name %s not resolvable", sym.Name)
				continue
			}
			if result != sym {
				t.Errorf("expected %s to resolve to %+v, got=%+v", sym.Name, sym, result)
			}
		}
	}
}

func TestShadowing(t *testing.T) {
	global := NewSymbolTable()
	global.DefineBuiltin(0, "len")
	global.Define("x")

	// Redefinition consumes a fresh slot.
	again := global.Define("x")
	if again.Index != 1 {
		t.Errorf("redefined x index = %d, want 1", again.Index)
	}
	if got, _ := global.Resolve("x"); got.Index != 1 {
		t.Errorf("x resolves to index %d, want 1", got.Index)
	}
	if n := global.NumDefinitions(); n != 2 {
		t.Errorf("NumDefinitions = %d, want 2", n)
	}

	// A local shadows a global and a builtin of the same name.
	local := NewEnclosedSymbolTable(global)
	local.Define("x")
	local.Define("len")
	if got, _ := local.Resolve("x"); got.Scope != LocalScope || got.Index != 0 {
		t.Errorf("local x = %+v", got)
	}
	if got, _ := local.Resolve("len"); got.Scope != LocalScope || got.Index != 1 {
		t.Errorf("local len = %+v", got)
	}
	if got, _ := global.Resolve("len"); got.Scope != BuiltinScope {
		t.Errorf("global len = %+v", got)
	}
}

func TestSymbolTableOuter(t *testing.T) {
	global := NewSymbolTable()
	local := NewEnclosedSymbolTable(global)
	if global.Outer() != nil {
		t.Error("global table has an outer table")
	}
	if local.Outer() != global {
		t.Error("local table does not point at global")
	}
}

func TestSymbolTableClone(t *testing.T) {
	global := NewSymbolTable()
	global.DefineBuiltin(0, "len")
	global.Define("a")

	scratch := global.Clone()
	if got := scratch.Define("b"); got.Index != 1 || got.Scope != GlobalScope {
		t.Errorf("b in clone = %+v", got)
	}
	if _, ok := scratch.Resolve("len"); !ok {
		t.Error("clone lost builtin len")
	}

	if _, ok := global.Resolve("b"); ok {
		t.Error("definition in clone leaked into original")
	}
	if n := global.NumDefinitions(); n != 1 {
		t.Errorf("original NumDefinitions = %d, want 1", n)
	}
	if n := scratch.NumDefinitions(); n != 2 {
		t.Errorf("clone NumDefinitions = %d, want 2", n)
	}
}
