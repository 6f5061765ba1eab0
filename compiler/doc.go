// Package compiler turns Monkey source into bytecode for package vm.
//
// The pipeline is lexer, Pratt parser, then a single recursive pass over the
// AST that emits instructions into one compilation scope per function body.
//
// Functions do not close over the locals of enclosing functions. A nested
// function may use globals, builtins, its own parameters and its own lets;
// naming a local of an enclosing function is a compile error ("closures are
// not supported"). A let binding is defined after its value is compiled, so
// a function cannot refer to itself by name. Recursion passes the function as
// an argument:
//
//	let fib = fn(self, n) { if (n < 2) { n } else { self(self, n - 1) + self(self, n - 2) } };
//	fib(fib, 10);
package compiler
