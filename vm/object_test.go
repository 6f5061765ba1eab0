package vm

import "testing"

func TestStringHashKey(t *testing.T) {
	hello1 := &String{Value: "Hello World"}
	hello2 := &String{Value: "Hello World"}
	diff1 := &String{Value: "My name is johnny"}
	diff2 := &String{Value: "My name is johnny"}

	if hello1.HashKey() != hello2.HashKey() {
		t.Errorf("strings with same content have different hash keys")
	}
	if diff1.HashKey() != diff2.HashKey() {
		t.Errorf("strings with same content have different hash keys")
	}
	if hello1.HashKey() == diff1.HashKey() {
		t.Errorf("strings with different content have same hash keys")
	}
}

func TestHashKeysDistinguishTypes(t *testing.T) {
	one := &Integer{Value: 1}
	if one.HashKey() == True.HashKey() {
		t.Errorf("integer 1 and true share a hash key")
	}
	if (&Integer{Value: 0}).HashKey() == False.HashKey() {
		t.Errorf("integer 0 and false share a hash key")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		obj  Object
		want bool
	}{
		{True, true},
		{False, false},
		{Null, false},
		{&Integer{Value: 0}, true},
		{&String{Value: ""}, true},
		{&Array{}, true},
	}

	for _, tt := range tests {
		if got := IsTruthy(tt.obj); got != tt.want {
			t.Errorf("IsTruthy(%s) = %v, want %v", tt.obj.Inspect(), got, tt.want)
		}
	}
}

func TestInspect(t *testing.T) {
	hash := &Hash{Pairs: map[HashKey]HashPair{}}
	for _, kv := range []struct {
		k Object
		v Object
	}{
		{&String{Value: "b"}, &Integer{Value: 2}},
		{&String{Value: "a"}, &Integer{Value: 1}},
	} {
		hash.Pairs[kv.k.(Hashable).HashKey()] = HashPair{Key: kv.k, Value: kv.v}
	}

	tests := []struct {
		obj  Object
		want string
	}{
		{&Integer{Value: -5}, "-5"},
		{True, "true"},
		{Null, "null"},
		{&String{Value: "hi"}, "hi"},
		{&Array{Elements: []Object{&Integer{Value: 1}, &String{Value: "x"}}}, "[1, x]"},
		{hash, "{a: 1, b: 2}"},
		{LookupBuiltin("len"), "builtin function len"},
	}

	for _, tt := range tests {
		if got := tt.obj.Inspect(); got != tt.want {
			t.Errorf("Inspect() = %q, want %q", got, tt.want)
		}
	}
}
