package vm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Runtime values
// ---------------------------------------------------------------------------

// ObjectType names the dynamic type of a runtime value. It appears verbatim in
// error messages.
type ObjectType string

const (
	IntegerObj          ObjectType = "INTEGER"
	BooleanObj          ObjectType = "BOOLEAN"
	StringObj           ObjectType = "STRING"
	NullObj             ObjectType = "NULL"
	ArrayObj            ObjectType = "ARRAY"
	HashObj             ObjectType = "HASH"
	CompiledFunctionObj ObjectType = "COMPILED_FUNCTION"
	BuiltinObj          ObjectType = "BUILTIN"
)

// Object is a runtime value.
type Object interface {
	Type() ObjectType
	Inspect() string
}

// Hashable is implemented by values usable as hash keys.
type Hashable interface {
	HashKey() HashKey
}

// HashKey identifies a hash entry. Keys of different types never collide
// because the type is part of the key.
type HashKey struct {
	Type  ObjectType
	Value uint64
}

// Singletons. Booleans and null are compared by identity in the VM, so every
// true, false and null on the stack must be one of these.
var (
	True  = &Boolean{Value: true}
	False = &Boolean{Value: false}
	Null  = &NullValue{}
)

// NativeBool returns the boolean singleton for b.
func NativeBool(b bool) *Boolean {
	if b {
		return True
	}
	return False
}

// IsTruthy reports whether obj counts as true in a conditional. Only false and
// null are falsy.
func IsTruthy(obj Object) bool {
	switch obj := obj.(type) {
	case *Boolean:
		return obj.Value
	case *NullValue:
		return false
	default:
		return true
	}
}

// Integer is a signed 64-bit integer.
type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return IntegerObj }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }
func (i *Integer) HashKey() HashKey {
	return HashKey{Type: i.Type(), Value: uint64(i.Value)}
}

// Boolean is true or false. Use the True and False singletons.
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BooleanObj }
func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }
func (b *Boolean) HashKey() HashKey {
	var v uint64
	if b.Value {
		v = 1
	}
	return HashKey{Type: b.Type(), Value: v}
}

// String is an immutable string.
type String struct {
	Value string
}

func (s *String) Type() ObjectType { return StringObj }
func (s *String) Inspect() string  { return s.Value }
func (s *String) HashKey() HashKey {
	return HashKey{Type: s.Type(), Value: xxh3.HashString(s.Value)}
}

// NullValue is the type of the Null singleton.
type NullValue struct{}

func (n *NullValue) Type() ObjectType { return NullObj }
func (n *NullValue) Inspect() string  { return "null" }

// Array is an ordered sequence of values.
type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ArrayObj }
func (a *Array) Inspect() string {
	elements := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		elements[i] = e.Inspect()
	}
	return "[" + strings.Join(elements, ", ") + "]"
}

// HashPair keeps the original key alongside its value for display.
type HashPair struct {
	Key   Object
	Value Object
}

// Hash maps hashable keys to values.
type Hash struct {
	Pairs map[HashKey]HashPair
}

func (h *Hash) Type() ObjectType { return HashObj }

// Inspect renders the pairs sorted by key so output is stable.
func (h *Hash) Inspect() string {
	pairs := make([]string, 0, len(h.Pairs))
	for _, pair := range h.Pairs {
		pairs = append(pairs, pair.Key.Inspect()+": "+pair.Value.Inspect())
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ", ") + "}"
}

// CompiledFunction is a function body produced by the compiler. It lives in
// the constant pool.
type CompiledFunction struct {
	Instructions  Instructions
	NumLocals     int
	NumParameters int
}

func (f *CompiledFunction) Type() ObjectType { return CompiledFunctionObj }
func (f *CompiledFunction) Inspect() string {
	return fmt.Sprintf("CompiledFunction[%p]", f)
}

// Builtin wraps a host function callable from bytecode.
type Builtin struct {
	Name string
	Fn   BuiltinFunction
}

func (b *Builtin) Type() ObjectType { return BuiltinObj }
func (b *Builtin) Inspect() string  { return "builtin function " + b.Name }
