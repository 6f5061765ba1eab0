// Package vm is the Monkey virtual machine: the instruction set and its
// encoding, runtime values, the stack-based interpreter, builtins, and the
// CBOR image format used to store compiled programs.
//
// A VM runs one Bytecode once. Only null and false are falsy; integer zero is
// truthy. Resource limits (operand stack, globals, call frames) are fixed at
// construction and exhausting any of them is a RuntimeError.
package vm
