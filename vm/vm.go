package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: The Monkey virtual machine
// ---------------------------------------------------------------------------

// Default resource limits.
const (
	StackSize   = 2048
	GlobalsSize = 65536
	MaxFrames   = 1024
)

var log = commonlog.GetLogger("monkey.vm")

// Config sizes the VM's fixed-capacity stores.
type Config struct {
	StackSize   int
	GlobalsSize int
	MaxFrames   int

	// Trace logs every dispatched instruction at debug level.
	Trace bool

	// Out receives output from the puts builtin. Defaults to os.Stdout.
	Out io.Writer

	// Globals, when set, is used as the globals store instead of a fresh
	// slice of GlobalsSize entries.
	Globals []Object
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		StackSize:   StackSize,
		GlobalsSize: GlobalsSize,
		MaxFrames:   MaxFrames,
		Out:         os.Stdout,
	}
}

func (c Config) withDefaults() Config {
	if c.StackSize <= 0 {
		c.StackSize = StackSize
	}
	if c.GlobalsSize <= 0 {
		c.GlobalsSize = GlobalsSize
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = MaxFrames
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	return c
}

// VM executes a single compiled program. A VM is not safe for concurrent use,
// and after Run fails it must not be run again.
type VM struct {
	constants []Object

	stack []Object
	sp    int // next free slot; the top of stack is stack[sp-1]

	globals []Object

	frames      []*CallFrame
	framesIndex int

	trace bool
	out   io.Writer
}

// New creates a VM with default limits.
func New(bytecode *Bytecode) *VM {
	return NewWithConfig(bytecode, DefaultConfig())
}

// NewWithGlobalsStore creates a VM that reads and writes the given globals
// slice. The REPL uses this to keep global bindings across inputs.
func NewWithGlobalsStore(bytecode *Bytecode, globals []Object) *VM {
	cfg := DefaultConfig()
	cfg.Globals = globals
	return NewWithConfig(bytecode, cfg)
}

// NewWithConfig creates a VM with explicit limits.
func NewWithConfig(bytecode *Bytecode, cfg Config) *VM {
	cfg = cfg.withDefaults()

	mainFn := &CompiledFunction{Instructions: bytecode.Instructions}
	frames := make([]*CallFrame, cfg.MaxFrames)
	frames[0] = NewCallFrame(mainFn, 0)

	globals := cfg.Globals
	if globals == nil {
		globals = make([]Object, cfg.GlobalsSize)
	}

	return &VM{
		constants:   bytecode.Constants,
		stack:       make([]Object, cfg.StackSize),
		sp:          0,
		globals:     globals,
		frames:      frames,
		framesIndex: 1,
		trace:       cfg.Trace,
		out:         cfg.Out,
	}
}

// NewGlobals allocates a globals store of the given size, for use with
// NewWithGlobalsStore.
func NewGlobals(size int) []Object {
	if size <= 0 {
		size = GlobalsSize
	}
	return make([]Object, size)
}

// StackTop returns the value on top of the stack, or nil when it is empty.
func (vm *VM) StackTop() Object {
	if vm.sp == 0 {
		return nil
	}
	return vm.stack[vm.sp-1]
}

// LastPoppedStackElem returns the slot just above the top of the stack,
// which holds the most recently popped value. After a program whose last
// statement is an expression this is that expression's result.
func (vm *VM) LastPoppedStackElem() Object {
	if vm.sp >= len(vm.stack) {
		return nil
	}
	return vm.stack[vm.sp]
}

// Globals exposes the globals store.
func (vm *VM) Globals() []Object {
	return vm.globals
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// RuntimeError reports a failure during execution, with the instruction at
// which the VM stopped.
type RuntimeError struct {
	Msg string
	Op  Opcode
	IP  int
}

func (e *RuntimeError) Error() string {
	return e.Msg
}

func (vm *VM) fail(op Opcode, ip int, err error) error {
	if rerr, ok := err.(*RuntimeError); ok {
		return rerr
	}
	return &RuntimeError{Msg: err.Error(), Op: op, IP: ip}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(o Object) error {
	if vm.sp >= len(vm.stack) {
		return fmt.Errorf("stack overflow")
	}
	vm.stack[vm.sp] = o
	vm.sp++
	return nil
}

func (vm *VM) pop() Object {
	o := vm.stack[vm.sp-1]
	vm.sp--
	return o
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func (vm *VM) currentFrame() *CallFrame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *CallFrame) error {
	if vm.framesIndex >= len(vm.frames) {
		return fmt.Errorf("frame overflow")
	}
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
	return nil
}

func (vm *VM) popFrame() *CallFrame {
	vm.framesIndex--
	f := vm.frames[vm.framesIndex]
	vm.frames[vm.framesIndex] = nil
	return f
}
