package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Instructions is a flat, byte-addressed instruction stream.
type Instructions []byte

// Constants and literals
const (
	OpConstant Opcode = 0x00 // push constant (16-bit pool index)
	OpPop      Opcode = 0x01 // discard top of stack
	OpTrue     Opcode = 0x02 // push true
	OpFalse    Opcode = 0x03 // push false
	OpNull     Opcode = 0x04 // push null
)

// Arithmetic
const (
	OpAdd   Opcode = 0x10 // pops 2, pushes 1
	OpSub   Opcode = 0x11 // pops 2, pushes 1
	OpMul   Opcode = 0x12 // pops 2, pushes 1
	OpDiv   Opcode = 0x13 // pops 2, pushes 1 (floor division)
	OpMinus Opcode = 0x14 // unary negation
)

// Comparison and logic
const (
	OpEqual       Opcode = 0x20
	OpNotEqual    Opcode = 0x21
	OpGreaterThan Opcode = 0x22
	OpBang        Opcode = 0x23 // logical not
)

// Control flow
const (
	OpJump          Opcode = 0x30 // unconditional jump (16-bit absolute target)
	OpJumpNotTruthy Opcode = 0x31 // pop, jump if falsy (16-bit absolute target)
)

// Variables
const (
	OpGetGlobal  Opcode = 0x40 // 16-bit global slot
	OpSetGlobal  Opcode = 0x41 // 16-bit global slot
	OpGetLocal   Opcode = 0x42 // 8-bit local slot
	OpSetLocal   Opcode = 0x43 // 8-bit local slot
	OpGetBuiltin Opcode = 0x44 // 8-bit builtin index
)

// Collections
const (
	OpArray Opcode = 0x50 // build array from N stack items (16-bit)
	OpHash  Opcode = 0x51 // build hash from N stack items, keys and values (16-bit)
	OpIndex Opcode = 0x52 // pops collection and index, pushes element
)

// Calls
const (
	OpCall        Opcode = 0x60 // call (8-bit argc)
	OpReturnValue Opcode = 0x61 // return top of stack
	OpReturn      Opcode = 0x62 // return null
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Definition describes an opcode: its name and the byte width of each operand.
type Definition struct {
	Name          string
	OperandWidths []int
}

// definitions maps opcodes to their metadata.
var definitions = map[Opcode]*Definition{
	OpConstant: {"CONSTANT", []int{2}},
	OpPop:      {"POP", []int{}},
	OpTrue:     {"TRUE", []int{}},
	OpFalse:    {"FALSE", []int{}},
	OpNull:     {"NULL", []int{}},

	OpAdd:   {"ADD", []int{}},
	OpSub:   {"SUB", []int{}},
	OpMul:   {"MUL", []int{}},
	OpDiv:   {"DIV", []int{}},
	OpMinus: {"MINUS", []int{}},

	OpEqual:       {"EQUAL", []int{}},
	OpNotEqual:    {"NOT_EQUAL", []int{}},
	OpGreaterThan: {"GREATER_THAN", []int{}},
	OpBang:        {"BANG", []int{}},

	OpJump:          {"JUMP", []int{2}},
	OpJumpNotTruthy: {"JUMP_NOT_TRUTHY", []int{2}},

	OpGetGlobal:  {"GET_GLOBAL", []int{2}},
	OpSetGlobal:  {"SET_GLOBAL", []int{2}},
	OpGetLocal:   {"GET_LOCAL", []int{1}},
	OpSetLocal:   {"SET_LOCAL", []int{1}},
	OpGetBuiltin: {"GET_BUILTIN", []int{1}},

	OpArray: {"ARRAY", []int{2}},
	OpHash:  {"HASH", []int{2}},
	OpIndex: {"INDEX", []int{}},

	OpCall:        {"CALL", []int{1}},
	OpReturnValue: {"RETURN_VALUE", []int{}},
	OpReturn:      {"RETURN", []int{}},
}

// Lookup returns the definition of a raw opcode byte.
func Lookup(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// OperandBytes returns the total operand width of an opcode.
func (d *Definition) OperandBytes() int {
	n := 0
	for _, w := range d.OperandWidths {
		n += w
	}
	return n
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	if def, ok := definitions[op]; ok {
		return def.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Make encodes an instruction. Two-byte operands are written big-endian.
// An undefined opcode yields an empty instruction.
func Make(op Opcode, operands ...int) []byte {
	def, ok := definitions[op]
	if !ok {
		return []byte{}
	}

	ins := make([]byte, 1+def.OperandBytes())
	ins[0] = byte(op)

	offset := 1
	for i, o := range operands {
		if i >= len(def.OperandWidths) {
			break
		}
		width := def.OperandWidths[i]
		switch width {
		case 2:
			binary.BigEndian.PutUint16(ins[offset:], uint16(o))
		case 1:
			ins[offset] = byte(o)
		}
		offset += width
	}
	return ins
}

// ReadOperands decodes the operands that follow an opcode. It returns the
// operands and the number of bytes consumed.
func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0

	for i, width := range def.OperandWidths {
		switch width {
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		case 1:
			operands[i] = int(ReadUint8(ins[offset:]))
		}
		offset += width
	}
	return operands, offset
}

// ReadUint16 decodes a big-endian 16-bit operand.
func ReadUint16(ins Instructions) uint16 {
	return binary.BigEndian.Uint16(ins)
}

// ReadUint8 decodes a single-byte operand.
func ReadUint8(ins Instructions) uint8 {
	return uint8(ins[0])
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// String renders the instructions one per line, prefixed with the byte offset.
func (ins Instructions) String() string {
	var out bytes.Buffer

	i := 0
	for i < len(ins) {
		def, err := Lookup(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "ERROR: %s\n", err)
			i++
			continue
		}

		if i+1+def.OperandBytes() > len(ins) {
			fmt.Fprintf(&out, "%04d %s <truncated>\n", i, def.Name)
			break
		}

		operands, read := ReadOperands(def, ins[i+1:])
		fmt.Fprintf(&out, "%04d %s\n", i, ins.fmtInstruction(def, operands))
		i += 1 + read
	}
	return out.String()
}

func (ins Instructions) fmtInstruction(def *Definition, operands []int) string {
	operandCount := len(def.OperandWidths)

	if len(operands) != operandCount {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d",
			len(operands), operandCount)
	}

	switch operandCount {
	case 0:
		return def.Name
	case 1:
		return fmt.Sprintf("%s %d", def.Name, operands[0])
	}
	return fmt.Sprintf("ERROR: unhandled operandCount for %s", def.Name)
}

// Disassemble renders a complete program: instructions followed by the
// constant pool, with compiled functions expanded inline.
func Disassemble(bc *Bytecode) string {
	var out bytes.Buffer
	out.WriteString("== main ==\n")
	out.WriteString(bc.Instructions.String())

	for i, c := range bc.Constants {
		fmt.Fprintf(&out, "\n== constant %d: %s ==\n", i, c.Type())
		if fn, ok := c.(*CompiledFunction); ok {
			fmt.Fprintf(&out, "locals=%d params=%d\n", fn.NumLocals, fn.NumParameters)
			out.WriteString(fn.Instructions.String())
			continue
		}
		out.WriteString(c.Inspect())
		out.WriteString("\n")
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Bytecode: compiler output
// ---------------------------------------------------------------------------

// Bytecode is a compiled program: the top-level instructions plus the
// constant pool they reference.
type Bytecode struct {
	Instructions Instructions
	Constants    []Object
}
