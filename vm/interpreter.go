package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// CallFrame: Execution state for a function invocation
// ---------------------------------------------------------------------------

// CallFrame is the execution state of a single function invocation.
type CallFrame struct {
	fn          *CompiledFunction
	ip          int // index of the instruction being executed; -1 before the first
	basePointer int // stack slot of the first argument (local 0)
}

// NewCallFrame creates a frame positioned before the function's first
// instruction.
func NewCallFrame(fn *CompiledFunction, basePointer int) *CallFrame {
	return &CallFrame{fn: fn, ip: -1, basePointer: basePointer}
}

// Instructions returns the bytecode the frame executes.
func (f *CallFrame) Instructions() Instructions {
	return f.fn.Instructions
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// Run executes the program until the main frame runs out of instructions or
// a runtime error occurs. Errors are returned as *RuntimeError.
func (vm *VM) Run() (err error) {
	var (
		ip    int
		op    Opcode
		frame *CallFrame
		ins   Instructions
	)

	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{Msg: fmt.Sprintf("malformed bytecode: %v", r), Op: op, IP: ip}
		}
	}()

	for vm.currentFrame().ip < len(vm.currentFrame().Instructions())-1 {
		frame = vm.currentFrame()
		frame.ip++

		ip = frame.ip
		ins = frame.Instructions()
		op = Opcode(ins[ip])

		if vm.trace {
			log.Debugf("%04d %-16s sp=%d frame=%d", ip, op, vm.sp, vm.framesIndex-1)
		}

		switch op {
		case OpConstant:
			constIndex := ReadUint16(ins[ip+1:])
			frame.ip += 2
			if int(constIndex) >= len(vm.constants) {
				return vm.fail(op, ip, fmt.Errorf("constant %d out of range", constIndex))
			}
			if err := vm.push(vm.constants[constIndex]); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpPop:
			vm.pop()

		case OpTrue:
			if err := vm.push(True); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpFalse:
			if err := vm.push(False); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpNull:
			if err := vm.push(Null); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpAdd, OpSub, OpMul, OpDiv:
			if err := vm.executeBinaryOperation(op); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpEqual, OpNotEqual, OpGreaterThan:
			if err := vm.executeComparison(op); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpBang:
			if err := vm.executeBangOperator(); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpMinus:
			if err := vm.executeMinusOperator(); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpJump:
			pos := int(ReadUint16(ins[ip+1:]))
			frame.ip = pos - 1

		case OpJumpNotTruthy:
			pos := int(ReadUint16(ins[ip+1:]))
			frame.ip += 2

			condition := vm.pop()
			if !IsTruthy(condition) {
				frame.ip = pos - 1
			}

		case OpSetGlobal:
			globalIndex := int(ReadUint16(ins[ip+1:]))
			frame.ip += 2
			if globalIndex >= len(vm.globals) {
				return vm.fail(op, ip, fmt.Errorf("global slot %d out of range", globalIndex))
			}
			vm.globals[globalIndex] = vm.pop()

		case OpGetGlobal:
			globalIndex := int(ReadUint16(ins[ip+1:]))
			frame.ip += 2
			if globalIndex >= len(vm.globals) {
				return vm.fail(op, ip, fmt.Errorf("global slot %d out of range", globalIndex))
			}
			val := vm.globals[globalIndex]
			if val == nil {
				val = Null
			}
			if err := vm.push(val); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpSetLocal:
			localIndex := int(ReadUint8(ins[ip+1:]))
			frame.ip++
			vm.stack[frame.basePointer+localIndex] = vm.pop()

		case OpGetLocal:
			localIndex := int(ReadUint8(ins[ip+1:]))
			frame.ip++
			val := vm.stack[frame.basePointer+localIndex]
			if val == nil {
				val = Null
			}
			if err := vm.push(val); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpGetBuiltin:
			builtinIndex := int(ReadUint8(ins[ip+1:]))
			frame.ip++
			if builtinIndex >= len(Builtins) {
				return vm.fail(op, ip, fmt.Errorf("builtin %d undefined", builtinIndex))
			}
			if err := vm.push(Builtins[builtinIndex].Builtin); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpArray:
			numElements := int(ReadUint16(ins[ip+1:]))
			frame.ip += 2

			array := vm.buildArray(vm.sp-numElements, vm.sp)
			vm.sp = vm.sp - numElements
			if err := vm.push(array); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpHash:
			numElements := int(ReadUint16(ins[ip+1:]))
			frame.ip += 2

			hash, err := vm.buildHash(vm.sp-numElements, vm.sp)
			if err != nil {
				return vm.fail(op, ip, err)
			}
			vm.sp = vm.sp - numElements
			if err := vm.push(hash); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpIndex:
			index := vm.pop()
			left := vm.pop()
			if err := vm.executeIndexExpression(left, index); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpCall:
			numArgs := int(ReadUint8(ins[ip+1:]))
			frame.ip++
			if err := vm.executeCall(numArgs); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpReturnValue:
			returnValue := vm.pop()
			if vm.framesIndex == 1 {
				// A return at the top level ends the program with that value
				// as the last popped element.
				return nil
			}
			returning := vm.popFrame()
			vm.sp = returning.basePointer - 1
			if err := vm.push(returnValue); err != nil {
				return vm.fail(op, ip, err)
			}

		case OpReturn:
			if vm.framesIndex == 1 {
				vm.stack[vm.sp] = Null
				return nil
			}
			returning := vm.popFrame()
			vm.sp = returning.basePointer - 1
			if err := vm.push(Null); err != nil {
				return vm.fail(op, ip, err)
			}

		default:
			return vm.fail(op, ip, fmt.Errorf("opcode %d undefined", byte(op)))
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (vm *VM) executeBinaryOperation(op Opcode) error {
	right := vm.pop()
	left := vm.pop()

	switch {
	case left.Type() == IntegerObj && right.Type() == IntegerObj:
		return vm.executeBinaryIntegerOperation(op, left.(*Integer), right.(*Integer))
	case left.Type() == StringObj && right.Type() == StringObj:
		return vm.executeBinaryStringOperation(op, left.(*String), right.(*String))
	default:
		return fmt.Errorf("unsupported types for binary operation: %s %s", left.Type(), right.Type())
	}
}

func (vm *VM) executeBinaryIntegerOperation(op Opcode, left, right *Integer) error {
	l, r := left.Value, right.Value

	var result int64
	switch op {
	case OpAdd:
		result = l + r
	case OpSub:
		result = l - r
	case OpMul:
		result = l * r
	case OpDiv:
		if r == 0 {
			return fmt.Errorf("division by zero")
		}
		result = floorDiv(l, r)
	default:
		return fmt.Errorf("unknown integer operator: %s", op)
	}
	return vm.push(&Integer{Value: result})
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (vm *VM) executeBinaryStringOperation(op Opcode, left, right *String) error {
	if op != OpAdd {
		return fmt.Errorf("unknown string operator: %s", op)
	}
	return vm.push(&String{Value: left.Value + right.Value})
}

func (vm *VM) executeComparison(op Opcode) error {
	right := vm.pop()
	left := vm.pop()

	if left.Type() == IntegerObj && right.Type() == IntegerObj {
		return vm.executeIntegerComparison(op, left.(*Integer), right.(*Integer))
	}

	switch op {
	case OpEqual:
		return vm.push(NativeBool(right == left))
	case OpNotEqual:
		return vm.push(NativeBool(right != left))
	default:
		return fmt.Errorf("unknown operator: %s (%s %s)", op, left.Type(), right.Type())
	}
}

func (vm *VM) executeIntegerComparison(op Opcode, left, right *Integer) error {
	switch op {
	case OpEqual:
		return vm.push(NativeBool(left.Value == right.Value))
	case OpNotEqual:
		return vm.push(NativeBool(left.Value != right.Value))
	case OpGreaterThan:
		return vm.push(NativeBool(left.Value > right.Value))
	default:
		return fmt.Errorf("unknown operator: %s", op)
	}
}

func (vm *VM) executeBangOperator() error {
	operand := vm.pop()

	switch operand {
	case True:
		return vm.push(False)
	case False:
		return vm.push(True)
	case Null:
		return vm.push(True)
	default:
		return vm.push(False)
	}
}

func (vm *VM) executeMinusOperator() error {
	operand := vm.pop()

	i, ok := operand.(*Integer)
	if !ok {
		return fmt.Errorf("unsupported type for negation: %s", operand.Type())
	}
	return vm.push(&Integer{Value: -i.Value})
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func (vm *VM) buildArray(startIndex, endIndex int) Object {
	elements := make([]Object, endIndex-startIndex)
	copy(elements, vm.stack[startIndex:endIndex])
	return &Array{Elements: elements}
}

func (vm *VM) buildHash(startIndex, endIndex int) (Object, error) {
	pairs := make(map[HashKey]HashPair, (endIndex-startIndex)/2)

	for i := startIndex; i < endIndex; i += 2 {
		key := vm.stack[i]
		value := vm.stack[i+1]

		hashKey, ok := key.(Hashable)
		if !ok {
			return nil, fmt.Errorf("unusable as hash key: %s", key.Type())
		}
		pairs[hashKey.HashKey()] = HashPair{Key: key, Value: value}
	}
	return &Hash{Pairs: pairs}, nil
}

func (vm *VM) executeIndexExpression(left, index Object) error {
	switch {
	case left.Type() == ArrayObj && index.Type() == IntegerObj:
		return vm.executeArrayIndex(left.(*Array), index.(*Integer))
	case left.Type() == HashObj:
		return vm.executeHashIndex(left.(*Hash), index)
	default:
		return fmt.Errorf("index operator not supported: %s[%s]", left.Type(), index.Type())
	}
}

func (vm *VM) executeArrayIndex(array *Array, index *Integer) error {
	i := index.Value
	last := int64(len(array.Elements) - 1)

	if i < 0 || i > last {
		return vm.push(Null)
	}
	return vm.push(array.Elements[i])
}

func (vm *VM) executeHashIndex(hash *Hash, index Object) error {
	key, ok := index.(Hashable)
	if !ok {
		return fmt.Errorf("unusable as hash key: %s", index.Type())
	}

	pair, ok := hash.Pairs[key.HashKey()]
	if !ok {
		return vm.push(Null)
	}
	return vm.push(pair.Value)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) executeCall(numArgs int) error {
	callee := vm.stack[vm.sp-1-numArgs]
	switch callee := callee.(type) {
	case *CompiledFunction:
		return vm.callFunction(callee, numArgs)
	case *Builtin:
		return vm.callBuiltin(callee, numArgs)
	default:
		return fmt.Errorf("calling non-function")
	}
}

func (vm *VM) callFunction(fn *CompiledFunction, numArgs int) error {
	if numArgs != fn.NumParameters {
		return fmt.Errorf("wrong number of arguments: want=%d, got=%d", fn.NumParameters, numArgs)
	}

	frame := NewCallFrame(fn, vm.sp-numArgs)
	if err := vm.pushFrame(frame); err != nil {
		return err
	}

	top := frame.basePointer + fn.NumLocals
	if top > len(vm.stack) {
		return fmt.Errorf("stack overflow")
	}
	for i := vm.sp; i < top; i++ {
		vm.stack[i] = Null
	}
	vm.sp = top
	return nil
}

func (vm *VM) callBuiltin(builtin *Builtin, numArgs int) error {
	args := vm.stack[vm.sp-numArgs : vm.sp]

	result, err := builtin.Fn(vm.out, args...)
	if err != nil {
		return err
	}
	if result == nil {
		result = Null
	}

	vm.sp = vm.sp - numArgs - 1
	return vm.push(result)
}
