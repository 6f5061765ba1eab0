package cache

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKey(t *testing.T) {
	a := Key("let x = 1;")
	b := Key("let x = 1;")
	c := Key("let x = 2;")

	if a != b {
		t.Errorf("same source produced different keys: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different sources produced the same key %s", a)
	}
	if !strings.HasSuffix(a, "-v1") {
		t.Errorf("key %s does not carry the image version", a)
	}
	if len(a) != 32+len("-v1") {
		t.Errorf("key %s has unexpected length %d", a, len(a))
	}
}

func TestGetMiss(t *testing.T) {
	s := openTestStore(t)

	bc, ok, err := s.Get(context.Background(), Key("nothing"))
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok || bc != nil {
		t.Errorf("Get on empty store = (%v, %v), want miss", bc, ok)
	}
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	source := `let add = fn(a, b) { a + b }; add(40, 2)`
	bc, err := compiler.CompileSource(source)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	key := Key(source)
	if err := s.Put(ctx, key, bc); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v, %v), want hit", got, ok, err)
	}
	if got.Instructions.String() != bc.Instructions.String() {
		t.Errorf("instructions differ:\n%s\nwant:\n%s", got.Instructions, bc.Instructions)
	}

	machine := vm.New(got)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	if result, ok := machine.LastPoppedStackElem().(*vm.Integer); !ok || result.Value != 42 {
		t.Errorf("result = %v, want 42", machine.LastPoppedStackElem())
	}
}

func TestPutReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, _ := compiler.CompileSource("1")
	second, _ := compiler.CompileSource("2")

	if err := s.Put(ctx, "k", first); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", second); err != nil {
		t.Fatal(err)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	got, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if c := got.Constants[0].(*vm.Integer); c.Value != 2 {
		t.Errorf("constant = %d, want 2", c.Value)
	}
}

func TestCompileUsesCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	source := `let greet = fn(n) { "hi " + n }; greet("there")`

	_, hit, err := s.Compile(ctx, source)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if hit {
		t.Error("first Compile reported a cache hit")
	}

	bc, hit, err := s.Compile(ctx, source)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !hit {
		t.Error("second Compile missed the cache")
	}

	machine := vm.New(bc)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	if got := machine.LastPoppedStackElem().Inspect(); got != "hi there" {
		t.Errorf("result = %q, want %q", got, "hi there")
	}
}

func TestCompileErrorsAreNotCached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Compile(ctx, "undefinedThing"); err == nil {
		t.Fatal("expected compile error")
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("Len = %d after failed compile, want 0", n)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Compile(ctx, "1 + 1"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, ok, err := s.Get(ctx, Key("1 + 1")); err != nil || !ok {
		t.Errorf("entry lost across reopen: ok=%v err=%v", ok, err)
	}
}

func TestCompileWithBrokenCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, "DROP TABLE bytecode"); err != nil {
		t.Fatal(err)
	}

	bc, hit, err := s.Compile(ctx, "1 + 2")
	if err != nil {
		t.Fatalf("Compile with unusable cache: %v", err)
	}
	if hit {
		t.Error("reported a cache hit without a table")
	}

	machine := vm.New(bc)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	if result, ok := machine.LastPoppedStackElem().(*vm.Integer); !ok || result.Value != 3 {
		t.Errorf("result = %v, want 3", machine.LastPoppedStackElem())
	}
}
