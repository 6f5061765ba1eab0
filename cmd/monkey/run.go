package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chazu/monkey/cache"
	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/vm"
)

// imageExt marks files that hold a compiled bytecode image.
const imageExt = ".mkc"

// outputOptions selects what to do with compiled bytecode instead of running it.
type outputOptions struct {
	disasm bool
	image  string // path to write a .mkc image to
}

type runner struct {
	manifest *manifest.Manifest
	store    *cache.Store // nil when caching is off
	stdout   io.Writer
	stderr   io.Writer
}

// runPath loads a source file or image and runs it, or disassembles or
// re-encodes it as opts asks.
func (r *runner) runPath(ctx context.Context, path string, opts outputOptions) error {
	bc, err := r.load(ctx, path)
	if err != nil {
		return err
	}
	if done, err := r.emit(bc, opts); done || err != nil {
		return err
	}
	_, err = r.execute(bc)
	return err
}

// evalSource compiles and runs source, printing the value of the final
// statement when it is an expression.
func (r *runner) evalSource(source string, opts outputOptions) error {
	program, err := compiler.Parse(source)
	if err != nil {
		return err
	}
	c := compiler.New()
	if err := c.Compile(program); err != nil {
		return err
	}
	bc := c.Bytecode()

	if done, err := r.emit(bc, opts); done || err != nil {
		return err
	}

	machine, err := r.execute(bc)
	if err != nil {
		return err
	}
	if result := resultOf(program, machine); result != nil {
		fmt.Fprintln(r.stdout, result.Inspect())
	}
	return nil
}

func (r *runner) load(ctx context.Context, path string) (*vm.Bytecode, error) {
	if strings.HasSuffix(path, imageExt) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		bc, err := vm.ReadImage(f)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		log.Infof("loaded image %s", path)
		return bc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.compile(ctx, string(data))
}

// compile turns source into bytecode, going through the cache when one is
// open.
func (r *runner) compile(ctx context.Context, source string) (*vm.Bytecode, error) {
	start := time.Now()

	if r.store != nil {
		bc, hit, err := r.store.Compile(ctx, source)
		if err != nil {
			return nil, err
		}
		log.Infof("compiled in %s (cache hit: %t)", time.Since(start), hit)
		return bc, nil
	}

	bc, err := compiler.CompileSource(source)
	if err != nil {
		return nil, err
	}
	log.Infof("compiled in %s", time.Since(start))
	return bc, nil
}

// emit handles -disasm and -o. It reports whether the program should not be
// run afterwards.
func (r *runner) emit(bc *vm.Bytecode, opts outputOptions) (bool, error) {
	if opts.image != "" {
		if err := writeImage(opts.image, bc); err != nil {
			return true, err
		}
		log.Infof("wrote image %s", opts.image)
	}
	if opts.disasm {
		fmt.Fprint(r.stdout, vm.Disassemble(bc))
	}
	return opts.image != "" || opts.disasm, nil
}

// execute runs bc with the manifest's engine settings.
func (r *runner) execute(bc *vm.Bytecode) (*vm.VM, error) {
	cfg := r.manifest.VMConfig()
	cfg.Out = r.stdout

	machine := vm.NewWithConfig(bc, cfg)
	start := time.Now()
	if err := machine.Run(); err != nil {
		return nil, err
	}
	log.Infof("ran in %s", time.Since(start))
	return machine, nil
}

// resultOf returns the value program evaluated to on machine: the last popped
// value when the final statement is an expression, nil otherwise.
func resultOf(program *compiler.Program, machine *vm.VM) vm.Object {
	if len(program.Statements) == 0 {
		return nil
	}
	if _, ok := program.Statements[len(program.Statements)-1].(*compiler.ExpressionStatement); !ok {
		return nil
	}
	return machine.LastPoppedStackElem()
}

func writeImage(path string, bc *vm.Bytecode) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := vm.WriteImage(f, bc); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// report prints err to stderr the way a user wants to read it and returns the
// process exit code.
func (r *runner) report(err error) int {
	if err == nil {
		return 0
	}
	printError(r.stderr, err)
	return 1
}

func printError(w io.Writer, err error) {
	var perr *compiler.ParseError
	var cerr *compiler.CompileError
	var rerr *vm.RuntimeError

	switch {
	case errors.As(err, &perr):
		for _, se := range perr.Errors {
			fmt.Fprintf(w, "syntax error: %s\n", se)
		}
	case errors.As(err, &cerr):
		if line := cerr.Span.Start.Line; line > 0 {
			fmt.Fprintf(w, "compile error: line %d: %s\n", line, cerr.Msg)
		} else {
			fmt.Fprintf(w, "compile error: %s\n", cerr.Msg)
		}
	case errors.As(err, &rerr):
		fmt.Fprintf(w, "runtime error: %s (at %s, ip %d)\n", rerr.Msg, rerr.Op, rerr.IP)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
