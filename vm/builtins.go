package vm

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// BuiltinFunction is the signature of host functions exposed to programs.
// Output written by a builtin goes to w.
type BuiltinFunction func(w io.Writer, args ...Object) (Object, error)

// BuiltinDef pairs a builtin with the name programs use for it.
type BuiltinDef struct {
	Name    string
	Builtin *Builtin
}

// Builtins is indexed by the OpGetBuiltin operand. The order is part of the
// bytecode format: append new entries, never reorder.
var Builtins = []BuiltinDef{
	{"len", &Builtin{Name: "len", Fn: builtinLen}},
	{"puts", &Builtin{Name: "puts", Fn: builtinPuts}},
	{"first", &Builtin{Name: "first", Fn: builtinFirst}},
	{"last", &Builtin{Name: "last", Fn: builtinLast}},
	{"rest", &Builtin{Name: "rest", Fn: builtinRest}},
	{"push", &Builtin{Name: "push", Fn: builtinPush}},
}

// LookupBuiltin returns the builtin registered under name, or nil.
func LookupBuiltin(name string) *Builtin {
	for _, def := range Builtins {
		if def.Name == name {
			return def.Builtin
		}
	}
	return nil
}

func checkArity(args []Object, want int) error {
	if len(args) != want {
		return fmt.Errorf("wrong number of arguments. got=%d, want=%d", len(args), want)
	}
	return nil
}

func builtinLen(_ io.Writer, args ...Object) (Object, error) {
	if err := checkArity(args, 1); err != nil {
		return nil, err
	}

	switch arg := args[0].(type) {
	case *String:
		return &Integer{Value: int64(utf8.RuneCountInString(arg.Value))}, nil
	case *Array:
		return &Integer{Value: int64(len(arg.Elements))}, nil
	default:
		return nil, fmt.Errorf("argument to `len` not supported, got %s", args[0].Type())
	}
}

func builtinPuts(w io.Writer, args ...Object) (Object, error) {
	for _, arg := range args {
		if _, err := fmt.Fprintln(w, arg.Inspect()); err != nil {
			return nil, err
		}
	}
	return Null, nil
}

func arrayArg(name string, args []Object) (*Array, error) {
	if err := checkArity(args, 1); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return nil, fmt.Errorf("argument to `%s` must be ARRAY, got %s", name, args[0].Type())
	}
	return arr, nil
}

func builtinFirst(_ io.Writer, args ...Object) (Object, error) {
	arr, err := arrayArg("first", args)
	if err != nil {
		return nil, err
	}
	if len(arr.Elements) > 0 {
		return arr.Elements[0], nil
	}
	return Null, nil
}

func builtinLast(_ io.Writer, args ...Object) (Object, error) {
	arr, err := arrayArg("last", args)
	if err != nil {
		return nil, err
	}
	if n := len(arr.Elements); n > 0 {
		return arr.Elements[n-1], nil
	}
	return Null, nil
}

func builtinRest(_ io.Writer, args ...Object) (Object, error) {
	arr, err := arrayArg("rest", args)
	if err != nil {
		return nil, err
	}
	n := len(arr.Elements)
	if n == 0 {
		return Null, nil
	}
	elements := make([]Object, n-1)
	copy(elements, arr.Elements[1:])
	return &Array{Elements: elements}, nil
}

func builtinPush(_ io.Writer, args ...Object) (Object, error) {
	if err := checkArity(args, 2); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return nil, fmt.Errorf("argument to `push` must be ARRAY, got %s", args[0].Type())
	}

	n := len(arr.Elements)
	elements := make([]Object, n+1)
	copy(elements, arr.Elements)
	elements[n] = args[1]
	return &Array{Elements: elements}, nil
}
