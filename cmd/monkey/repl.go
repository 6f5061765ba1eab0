package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/peterh/liner"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/vm"
)

const continuationPrompt = ".. "

// session holds the state that survives between REPL inputs: the global
// symbol table, the constant pool and the globals store.
type session struct {
	symbols   *compiler.SymbolTable
	constants []vm.Object
	globals   []vm.Object
	cfg       vm.Config
}

func newSession(cfg vm.Config) *session {
	c := compiler.New()
	cfg.Globals = vm.NewGlobals(cfg.GlobalsSize)
	return &session{
		symbols:   c.SymbolTable(),
		constants: c.Constants(),
		globals:   cfg.Globals,
		cfg:       cfg,
	}
}

// eval compiles input against the session state and runs it. It returns the
// value of the last expression statement, or nil when there was none.
func (s *session) eval(input string) (vm.Object, error) {
	program, err := compiler.Parse(input)
	if err != nil {
		return nil, err
	}

	// A failed compile must not leave half the input's names defined.
	symbols := s.symbols.Clone()
	c := compiler.NewWithState(symbols, s.constants)
	if err := c.Compile(program); err != nil {
		return nil, err
	}
	bc := c.Bytecode()
	s.symbols = symbols
	s.constants = bc.Constants

	machine := vm.NewWithConfig(bc, s.cfg)
	if err := machine.Run(); err != nil {
		return nil, err
	}
	return resultOf(program, machine), nil
}

// names returns every global and builtin name the session knows, sorted.
func (s *session) names() []string {
	names := s.symbols.Names()
	sort.Strings(names)
	return names
}

// complete returns whole-line candidates for the identifier being typed at
// the end of line.
func (s *session) complete(line string) []string {
	start := len(line)
	for start > 0 {
		ch := rune(line[start-1])
		if !(unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_') {
			break
		}
		start--
	}
	prefix := line[start:]
	if prefix == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			out = append(out, line[:start]+name)
		}
	}
	for kw := range compiler.Keywords {
		add(kw)
	}
	for _, name := range s.symbols.Names() {
		add(name)
	}
	sort.Strings(out)
	return out
}

// readInput reads lines until they form a complete program, or until a
// syntax error that more input cannot fix. It reports false at end of input.
func readInput(prompt func(string) (string, error), main, cont string) (string, bool) {
	var b strings.Builder

	for {
		p := main
		if b.Len() > 0 {
			p = cont
		}
		line, err := prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl-C drops the pending input.
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, perr := compiler.Parse(src); compiler.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}

func runREPL(m *manifest.Manifest, out io.Writer) error {
	fmt.Fprintf(out, "Monkey %s REPL (type :help for commands, :quit to exit)\n", version)

	cfg := m.VMConfig()
	cfg.Out = out
	s := newSession(cfg)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(s.complete)

	histPath := m.HistoryPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		} else {
			log.Warningf("saving history: %s", err)
		}
	}()

	for {
		input, ok := readInput(ln.Prompt, m.Repl.Prompt, continuationPrompt)
		if !ok {
			fmt.Fprintln(out)
			return nil
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(trimmed, ":") || trimmed == "exit" || trimmed == "quit" {
			if quit := s.command(out, trimmed); quit {
				return nil
			}
			continue
		}

		result, err := s.eval(input)
		if err != nil {
			printError(out, err)
			continue
		}
		if result != nil {
			fmt.Fprintln(out, result.Inspect())
		}
	}
}

// command handles REPL meta-commands. It reports whether the REPL should exit.
func (s *session) command(out io.Writer, cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":quit", ":q", "exit", "quit":
		return true
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :names            List global and builtin names")
		fmt.Fprintln(out, "  :disasm <source>  Show the bytecode for source without running it")
		fmt.Fprintln(out, "  :reset            Forget all bindings")
		fmt.Fprintln(out, "  :quit, exit       Exit REPL")
	case ":names":
		for _, name := range s.names() {
			sym, _ := s.symbols.Resolve(name)
			fmt.Fprintf(out, "  %-12s %s %d\n", name, sym.Scope, sym.Index)
		}
	case ":disasm":
		source := strings.TrimSpace(strings.TrimPrefix(cmd, ":disasm"))
		// Compiled standalone, so session names are not visible.
		bc, err := compiler.CompileSource(source)
		if err != nil {
			printError(out, err)
			break
		}
		fmt.Fprint(out, vm.Disassemble(bc))
	case ":reset":
		*s = *newSession(s.cfg)
		fmt.Fprintln(out, "Session reset")
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}
