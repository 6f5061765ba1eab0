package vm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

type vmTestCase struct {
	input    string
	expected interface{}
}

// null marks an expected Null result.
var null = &struct{}{}

func TestIntegerArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"1", 1},
		{"2", 2},
		{"1 + 2", 3},
		{"1 - 2", -1},
		{"1 * 2", 2},
		{"4 / 2", 2},
		{"50 / 2 * 2 + 10 - 5", 55},
		{"5 * (2 + 10)", 60},
		{"5 + 5 + 5 + 5 - 10", 10},
		{"2 * 2 * 2 * 2 * 2", 32},
		{"-5", -5},
		{"-10", -10},
		{"-50 + 100 + -50", 0},
		{"(5 + 10 * 2 + 15 / 3) * 2 + -10", 50},
		{"7 / 2", 3},
		{"-7 / 2", -4},
		{"7 / -2", -4},
		{"-7 / -2", 3},
		{"-8 / 2", -4},
	}

	runVMTests(t, tests)
}

func TestBooleanExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"true", true},
		{"false", false},
		{"1 < 2", true},
		{"1 > 2", false},
		{"1 < 1", false},
		{"1 > 1", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{"1 == 2", false},
		{"1 != 2", true},
		{"true == true", true},
		{"false == false", true},
		{"true == false", false},
		{"true != false", true},
		{"(1 < 2) == true", true},
		{"(1 < 2) == false", false},
		{"(1 > 2) == false", true},
		{"!true", false},
		{"!false", true},
		{"!5", false},
		{"!!true", true},
		{"!!5", true},
		{"!(if (false) { 5; })", true},
		// Non-integers compare by identity.
		{`"a" == "a"`, false},
		{`let s = "a"; s == s`, true},
		{"[] == []", false},
		{"let a = [1]; a == a", true},
		{"1 == true", false},
	}

	runVMTests(t, tests)
}

func TestConditionals(t *testing.T) {
	tests := []vmTestCase{
		{"if (true) { 10 }", 10},
		{"if (true) { 10 } else { 20 }", 10},
		{"if (false) { 10 } else { 20 } ", 20},
		{"if (1) { 10 }", 10},
		{"if (0) { 10 } else { 20 }", 10},
		{"if (1 < 2) { 10 }", 10},
		{"if (1 < 2) { 10 } else { 20 }", 10},
		{"if (1 > 2) { 10 } else { 20 }", 20},
		{"if (1 > 2) { 10 }", null},
		{"if (false) { 10 }", null},
		{"if ((if (false) { 10 })) { 10 } else { 20 }", 20},
		{"if (true) { }", null},
		{"if (true) { let a = 1; }", null},
		{"if (false) { 1 } else { let b = 2; }", null},
		{"let x = if (true) { 1; 2 } else { 3 }; x", 2},
	}

	runVMTests(t, tests)
}

func TestGlobalLetStatements(t *testing.T) {
	tests := []vmTestCase{
		{"let one = 1; one", 1},
		{"let one = 1; let two = 2; one + two", 3},
		{"let one = 1; let two = one + one; one + two", 3},
		{"let x = 1; let x = x + 1; x", 2},
	}

	runVMTests(t, tests)
}

func TestStringExpressions(t *testing.T) {
	tests := []vmTestCase{
		{`"monkey"`, "monkey"},
		{`"mon" + "key"`, "monkey"},
		{`"mon" + "key" + "banana"`, "monkeybanana"},
		{`"tab\there"`, "tab\there"},
	}

	runVMTests(t, tests)
}

func TestArrayLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"[]", []int{}},
		{"[1, 2, 3]", []int{1, 2, 3}},
		{"[1 + 2, 3 * 4, 5 + 6]", []int{3, 12, 11}},
	}

	runVMTests(t, tests)
}

func TestHashLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"{}", map[vm.HashKey]int64{}},
		{
			"{1: 2, 2: 3}",
			map[vm.HashKey]int64{
				(&vm.Integer{Value: 1}).HashKey(): 2,
				(&vm.Integer{Value: 2}).HashKey(): 3,
			},
		},
		{
			"{1 + 1: 2 * 2, 3 + 3: 4 * 4}",
			map[vm.HashKey]int64{
				(&vm.Integer{Value: 2}).HashKey(): 4,
				(&vm.Integer{Value: 6}).HashKey(): 16,
			},
		},
		{
			// Later duplicates win.
			`{"a": 1, "a": 2}`,
			map[vm.HashKey]int64{
				(&vm.String{Value: "a"}).HashKey(): 2,
			},
		},
	}

	runVMTests(t, tests)
}

func TestIndexExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"[1, 2, 3][1]", 2},
		{"[1, 2, 3][0 + 2]", 3},
		{"[[1, 1, 1]][0][0]", 1},
		{"[][0]", null},
		{"[1, 2, 3][99]", null},
		{"[1][-1]", null},
		{"{1: 1, 2: 2}[1]", 1},
		{"{1: 1, 2: 2}[2]", 2},
		{"{1: 1}[0]", null},
		{"{}[0]", null},
		{`{"one": 1, "two": 2}["t" + "wo"]`, 2},
		{"{true: 5}[true]", 5},
		{"{false: 5}[true]", null},
	}

	runVMTests(t, tests)
}

func TestCallingFunctionsWithoutArguments(t *testing.T) {
	tests := []vmTestCase{
		{"let fivePlusTen = fn() { 5 + 10; }; fivePlusTen();", 15},
		{"let one = fn() { 1; }; let two = fn() { 2; }; one() + two()", 3},
		{"let a = fn() { 1 }; let b = fn() { a() + 1 }; let c = fn() { b() + 1 }; c();", 3},
	}

	runVMTests(t, tests)
}

func TestFunctionsWithReturnStatement(t *testing.T) {
	tests := []vmTestCase{
		{"let earlyExit = fn() { return 99; 100; }; earlyExit();", 99},
		{"let earlyExit = fn() { return 99; return 100; }; earlyExit();", 99},
		{"let f = fn(x) { if (x > 0) { return 1; } 0 }; f(5) + f(-5)", 1},
	}

	runVMTests(t, tests)
}

func TestFunctionsWithoutReturnValue(t *testing.T) {
	tests := []vmTestCase{
		{"let noReturn = fn() { }; noReturn();", null},
		{"let noReturn = fn() { }; let noReturnTwo = fn() { noReturn(); }; noReturn(); noReturnTwo();", null},
		{"let onlyLet = fn() { let a = 1; }; onlyLet();", null},
	}

	runVMTests(t, tests)
}

func TestFirstClassFunctions(t *testing.T) {
	tests := []vmTestCase{
		{"let returnsOne = fn() { 1; }; let returnsOneReturner = fn() { returnsOne; }; returnsOneReturner()();", 1},
		{"let apply = fn(f, x) { f(x) }; apply(fn(n) { n * 2 }, 21)", 42},
	}

	runVMTests(t, tests)
}

func TestCallingFunctionsWithBindings(t *testing.T) {
	tests := []vmTestCase{
		{"let one = fn() { let one = 1; one }; one();", 1},
		{"let oneAndTwo = fn() { let one = 1; let two = 2; one + two; }; oneAndTwo();", 3},
		{
			"let oneAndTwo = fn() { let one = 1; let two = 2; one + two; };" +
				"let threeAndFour = fn() { let three = 3; let four = 4; three + four; };" +
				"oneAndTwo() + threeAndFour();",
			10,
		},
		{
			"let firstFoobar = fn() { let foobar = 50; foobar; };" +
				"let secondFoobar = fn() { let foobar = 100; foobar; };" +
				"firstFoobar() + secondFoobar();",
			150,
		},
		{
			"let globalSeed = 50;" +
				"let minusOne = fn() { let num = 1; globalSeed - num; }" +
				"let minusTwo = fn() { let num = 2; globalSeed - num; }" +
				"minusOne() + minusTwo();",
			97,
		},
		// A let inside a branch that never ran leaves its slot null.
		{"fn() { if (false) { let x = 1; } x }()", null},
	}

	runVMTests(t, tests)
}

func TestCallingFunctionsWithArgumentsAndBindings(t *testing.T) {
	tests := []vmTestCase{
		{"let identity = fn(a) { a; }; identity(4);", 4},
		{"let sum = fn(a, b) { a + b; }; sum(1, 2);", 3},
		{"let sum = fn(a, b) { let c = a + b; c; }; sum(1, 2);", 3},
		{"let sum = fn(a, b) { let c = a + b; c; }; sum(1, 2) + sum(3, 4);", 10},
		{"let sum = fn(a, b) { let c = a + b; c; }; let outer = fn() { sum(1, 2) + sum(3, 4); }; outer();", 10},
		{
			"let globalNum = 10;" +
				"let sum = fn(a, b) { let c = a + b; c + globalNum; };" +
				"let outer = fn() { sum(1, 2) + sum(3, 4) + globalNum; };" +
				"outer() + globalNum;",
			50,
		},
	}

	runVMTests(t, tests)
}

func TestRecursionThroughArguments(t *testing.T) {
	tests := []vmTestCase{
		{
			"let fib = fn(f, n) { if (n < 2) { n } else { f(f, n - 1) + f(f, n - 2) } }; fib(fib, 15)",
			610,
		},
		{
			"let countDown = fn(self, x) { if (x == 0) { return 0; } self(self, x - 1) }; countDown(countDown, 100)",
			0,
		},
	}

	runVMTests(t, tests)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []vmTestCase{
		{`len("")`, 0},
		{`len("four")`, 4},
		{`len("hello world")`, 11},
		{`len([1, 2, 3])`, 3},
		{`len([])`, 0},
		{`puts("hello", "world!")`, null},
		{`first([1, 2, 3])`, 1},
		{`first([])`, null},
		{`last([1, 2, 3])`, 3},
		{`last([])`, null},
		{`rest([1, 2, 3])`, []int{2, 3}},
		{`rest([])`, null},
		{`push([], 1)`, []int{1}},
		{`let a = [1]; push(a, 2); a`, []int{1}},
		{`let len = fn(x) { 7 }; len([])`, 7},
	}

	runVMTests(t, tests)
}

func TestTopLevelReturn(t *testing.T) {
	tests := []vmTestCase{
		{"return 5; 10", 5},
		{"let x = 1; if (true) { return x + 1; } 99", 2},
	}

	runVMTests(t, tests)
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"fn() { 1; }(1);", "wrong number of arguments: want=0, got=1"},
		{"fn(a) { a; }();", "wrong number of arguments: want=1, got=0"},
		{"fn(a, b) { a + b; }(1);", "wrong number of arguments: want=2, got=1"},
		{"1();", "calling non-function"},
		{`"a"();`, "calling non-function"},
		{`"a" - "b"`, "unknown string operator: SUB"},
		{"1 + true", "unsupported types for binary operation: INTEGER BOOLEAN"},
		{`"a" + 1`, "unsupported types for binary operation: STRING INTEGER"},
		{"-true", "unsupported type for negation: BOOLEAN"},
		{"true > false", "unknown operator: GREATER_THAN (BOOLEAN BOOLEAN)"},
		{"5 / 0", "division by zero"},
		{"{[1]: 2}", "unusable as hash key: ARRAY"},
		{"{1: 2}[[1]]", "unusable as hash key: ARRAY"},
		{"{1: 1}[fn(x) { x }]", "unusable as hash key: COMPILED_FUNCTION"},
		{"1[0]", "index operator not supported: INTEGER[INTEGER]"},
		{`[1]["a"]`, "index operator not supported: ARRAY[STRING]"},
		{"len(1)", "argument to `len` not supported, got INTEGER"},
		{`len("one", "two")`, "wrong number of arguments. got=2, want=1"},
		{"first(1)", "argument to `first` must be ARRAY, got INTEGER"},
		{"push(1, 1)", "argument to `push` must be ARRAY, got INTEGER"},
	}

	for _, tt := range tests {
		machine := vm.New(compile(t, tt.input))
		err := machine.Run()
		if err == nil {
			t.Errorf("%q: expected runtime error", tt.input)
			continue
		}
		var rerr *vm.RuntimeError
		if !errors.As(err, &rerr) {
			t.Errorf("%q: error is %T, want *vm.RuntimeError", tt.input, err)
			continue
		}
		if err.Error() != tt.want {
			t.Errorf("%q: error = %q, want %q", tt.input, err.Error(), tt.want)
		}
	}
}

func TestRuntimeErrorLocation(t *testing.T) {
	// 0000 CONSTANT 0
	// 0003 CONSTANT 1
	// 0006 DIV
	machine := vm.New(compile(t, "5 / 0"))
	err := machine.Run()

	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *vm.RuntimeError", err)
	}
	if rerr.Op != vm.OpDiv || rerr.IP != 6 {
		t.Errorf("error at %s/%d, want DIV/6", rerr.Op, rerr.IP)
	}
}

func TestStackOverflow(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.StackSize = 4

	machine := vm.NewWithConfig(compile(t, "[1, 2, 3, 4, 5]"), cfg)
	err := machine.Run()
	if err == nil || err.Error() != "stack overflow" {
		t.Fatalf("err = %v, want stack overflow", err)
	}
}

func TestFrameOverflow(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.MaxFrames = 16

	machine := vm.NewWithConfig(compile(t, "let f = fn(g) { g(g) }; f(f)"), cfg)
	err := machine.Run()
	if err == nil || err.Error() != "frame overflow" {
		t.Fatalf("err = %v, want frame overflow", err)
	}
}

func TestUnboundedRecursionFailsCleanly(t *testing.T) {
	machine := vm.New(compile(t, "let f = fn(g) { g(g) }; f(f)"))
	err := machine.Run()
	if err == nil {
		t.Fatal("expected runtime error")
	}
	if !strings.Contains(err.Error(), "overflow") {
		t.Errorf("err = %v, want an overflow", err)
	}
}

func TestMalformedBytecode(t *testing.T) {
	tests := []struct {
		name string
		bc   *vm.Bytecode
		want string
	}{
		{
			"truncated operand",
			&vm.Bytecode{Instructions: vm.Instructions{byte(vm.OpConstant), 0}},
			"malformed bytecode",
		},
		{
			"unknown opcode",
			&vm.Bytecode{Instructions: vm.Instructions{0xEE}},
			"opcode 238 undefined",
		},
		{
			"constant out of range",
			&vm.Bytecode{Instructions: vm.Make(vm.OpConstant, 5)},
			"constant 5 out of range",
		},
	}

	for _, tt := range tests {
		err := vm.New(tt.bc).Run()
		if err == nil || !strings.HasPrefix(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want prefix %q", tt.name, err, tt.want)
		}
	}
}

func TestPutsWritesToConfiguredOutput(t *testing.T) {
	var out bytes.Buffer
	cfg := vm.DefaultConfig()
	cfg.Out = &out

	machine := vm.NewWithConfig(compile(t, `puts("hello", 1, [1, true]); puts()`), cfg)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %s", err)
	}
	if got, want := out.String(), "hello\n1\n[1, true]\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestTraceDoesNotChangeResult(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.Trace = true

	machine := vm.NewWithConfig(compile(t, "let f = fn(a) { a * 2 }; f(21)"), cfg)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %s", err)
	}
	testExpectedObject(t, "traced", 42, machine.LastPoppedStackElem())
}

func TestGlobalsPersistAcrossRuns(t *testing.T) {
	globals := vm.NewGlobals(vm.GlobalsSize)

	first := compiler.New()
	program, err := compiler.Parse("let a = 40;")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := first.Compile(program); err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := vm.NewWithGlobalsStore(first.Bytecode(), globals).Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}

	second := compiler.NewWithState(first.SymbolTable(), first.Constants())
	program, err = compiler.Parse("a + 2")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := second.Compile(program); err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := vm.NewWithGlobalsStore(second.Bytecode(), globals)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	testExpectedObject(t, "a + 2", 42, machine.LastPoppedStackElem())
}

func TestUninitializedGlobalReadsNull(t *testing.T) {
	bc := &vm.Bytecode{
		Instructions: append(vm.Make(vm.OpGetGlobal, 3), vm.Make(vm.OpPop)...),
	}
	machine := vm.New(bc)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	if machine.LastPoppedStackElem() != vm.Null {
		t.Errorf("got %v, want null", machine.LastPoppedStackElem())
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compile(t *testing.T, input string) *vm.Bytecode {
	t.Helper()
	bc, err := compiler.CompileSource(input)
	if err != nil {
		t.Fatalf("%q: compile error: %v", input, err)
	}
	return bc
}

func runVMTests(t *testing.T, tests []vmTestCase) {
	t.Helper()

	for _, tt := range tests {
		machine := vm.New(compile(t, tt.input))
		if err := machine.Run(); err != nil {
			t.Fatalf("%q: vm error: %s", tt.input, err)
		}

		if top := machine.StackTop(); top != nil {
			t.Errorf("%q: stack not empty after run, top = %s", tt.input, top.Inspect())
		}

		testExpectedObject(t, tt.input, tt.expected, machine.LastPoppedStackElem())
	}
}

func testExpectedObject(t *testing.T, input string, expected interface{}, actual vm.Object) {
	t.Helper()

	switch expected := expected.(type) {
	case int:
		testIntegerObject(t, input, int64(expected), actual)

	case bool:
		b, ok := actual.(*vm.Boolean)
		if !ok {
			t.Errorf("%q: object is not Boolean. got=%T (%+v)", input, actual, actual)
			return
		}
		if b.Value != expected {
			t.Errorf("%q: got=%t, want=%t", input, b.Value, expected)
		}

	case string:
		s, ok := actual.(*vm.String)
		if !ok {
			t.Errorf("%q: object is not String. got=%T (%+v)", input, actual, actual)
			return
		}
		if s.Value != expected {
			t.Errorf("%q: got=%q, want=%q", input, s.Value, expected)
		}

	case []int:
		array, ok := actual.(*vm.Array)
		if !ok {
			t.Errorf("%q: object not Array: %T (%+v)", input, actual, actual)
			return
		}
		if len(array.Elements) != len(expected) {
			t.Errorf("%q: wrong num of elements. want=%d, got=%d", input, len(expected), len(array.Elements))
			return
		}
		for i, el := range expected {
			testIntegerObject(t, input, int64(el), array.Elements[i])
		}

	case map[vm.HashKey]int64:
		hash, ok := actual.(*vm.Hash)
		if !ok {
			t.Errorf("%q: object is not Hash. got=%T (%+v)", input, actual, actual)
			return
		}
		if len(hash.Pairs) != len(expected) {
			t.Errorf("%q: hash has wrong number of pairs. want=%d, got=%d", input, len(expected), len(hash.Pairs))
			return
		}
		for key, value := range expected {
			pair, ok := hash.Pairs[key]
			if !ok {
				t.Errorf("%q: no pair for given key in pairs", input)
				continue
			}
			testIntegerObject(t, input, value, pair.Value)
		}

	default:
		if expected == null {
			if actual != vm.Null {
				t.Errorf("%q: object is not Null: %T (%+v)", input, actual, actual)
			}
			return
		}
		t.Fatalf("%q: unsupported expectation %T", input, expected)
	}
}

func testIntegerObject(t *testing.T, input string, expected int64, actual vm.Object) {
	t.Helper()

	result, ok := actual.(*vm.Integer)
	if !ok {
		t.Errorf("%q: object is not Integer. got=%T (%+v)", input, actual, actual)
		return
	}
	if result.Value != expected {
		t.Errorf("%q: object has wrong value. got=%d, want=%d", input, result.Value, expected)
	}
}
