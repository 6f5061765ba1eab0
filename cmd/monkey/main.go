// Monkey CLI - compiles and runs Monkey programs
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/monkey/cache"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/server"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

var log = commonlog.GetLogger("monkey.cli")

// countFlag is a boolean-style flag that counts how often it is given.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(s string) error {
	if s == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid count %q", s)
	}
	*c = countFlag(n)
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("monkey", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var verbose countFlag
	fs.Var(&verbose, "v", "Verbose output (repeat for more)")
	interactive := fs.Bool("i", false, "Start interactive REPL")
	expr := fs.String("e", "", "Evaluate an expression and print the result")
	disasm := fs.Bool("disasm", false, "Print disassembly instead of running")
	output := fs.String("o", "", "Write a compiled bytecode image (.mkc) instead of running")
	lspMode := fs.Bool("lsp", false, "Start language server on stdio")
	noCache := fs.Bool("no-cache", false, "Do not use the compile cache")
	trace := fs.Bool("trace", false, "Log every executed instruction")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: monkey [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs a Monkey program. Files ending in %s are loaded as bytecode images.\n\n", imageExt)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  monkey                      # Run the project entry, or start the REPL\n")
		fmt.Fprintf(stderr, "  monkey fib.mk               # Compile and run fib.mk\n")
		fmt.Fprintf(stderr, "  monkey -o fib.mkc fib.mk    # Build a bytecode image\n")
		fmt.Fprintf(stderr, "  monkey -disasm fib.mkc      # Show the instructions in an image\n")
		fmt.Fprintf(stderr, "  monkey -e 'len(\"hello\")'    # Evaluate an expression\n")
		fmt.Fprintf(stderr, "  monkey -lsp                 # Serve LSP on stdio\n")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	inProject := m != nil
	if !inProject {
		m = manifest.Default(wd)
	}
	if *trace {
		m.Engine.Trace = true
	}
	configureLogging(m, int(verbose))

	if *lspMode {
		if err := server.NewLSP(version).Run(); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	r := &runner{manifest: m, stdout: stdout, stderr: stderr}

	// The cache lives inside a project; loose files compile every time.
	if inProject && m.CacheEnabled() && !*noCache {
		store, err := cache.Open(m.CachePath())
		if err != nil {
			log.Warningf("compile cache disabled: %s", err)
		} else {
			r.store = store
			defer store.Close()
		}
	}

	ctx := context.Background()
	opts := outputOptions{disasm: *disasm, image: *output}

	if *expr != "" {
		return r.report(r.evalSource(*expr, opts))
	}

	path := fs.Arg(0)
	if path == "" && !*interactive {
		path = m.EntryPath()
	}
	if path != "" {
		if code := r.report(r.runPath(ctx, path, opts)); code != 0 || !*interactive {
			return code
		}
	}

	if err := runREPL(m, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// configureLogging sets the commonlog verbosity from the manifest and the -v
// count, whichever is higher. Tracing needs debug level.
func configureLogging(m *manifest.Manifest, verbose int) {
	verbosity := m.Log.Verbosity
	if verbose > verbosity {
		verbosity = verbose
	}
	if m.Engine.Trace && verbosity < 2 {
		verbosity = 2
	}

	var path *string
	if p := m.LogFilePath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
}
