// Package asm holds the architecture independent part of the assemblers used
// by the native JIT backend. Encoding is delegated to golang-asm.
package asm

import "fmt"

// Register represents architecture-specific registers.
//
// Values are golang-asm register numbers, so int16.
type Register int16

// NilRegister is the only architecture-independent register, and
// can be used to indicate that no register is specified.
const NilRegister Register = 0

// Instruction represents architecture-specific instructions.
type Instruction byte

// ConstantValue is an immediate operand or displacement.
type ConstantValue = int64

// NodeOffsetInBinary is the offset of an assembled instruction from the start
// of the code.
type NodeOffsetInBinary = uint64

// Node is an instruction added to an assembler, used as a jump source or to
// find where an instruction landed in the code.
type Node interface {
	fmt.Stringer
	// OffsetInBinary returns the offset of this node in the assembled binary.
	// Only valid after Assemble.
	OffsetInBinary() NodeOffsetInBinary
}

// AssemblerBase is the common interface for assemblers among multiple architectures.
type AssemblerBase interface {
	// Assemble produces the final binary for the assembled operations.
	Assemble() ([]byte, error)
	// SetJumpTargetOnNext instructs the assembler that the next node must be
	// assigned to the given nodes's jump destination.
	SetJumpTargetOnNext(nodes ...Node)
	// CompileStandAlone adds an instruction to take no arguments.
	CompileStandAlone(instruction Instruction) Node
	// CompileConstToRegister adds an instruction where source operand is `value` as constant and destination is `destinationReg` register.
	CompileConstToRegister(instruction Instruction, value ConstantValue, destinationReg Register) Node
	// CompileRegisterToRegister adds an instruction where source and destination operands are registers.
	CompileRegisterToRegister(instruction Instruction, from, to Register)
	// CompileMemoryToRegister adds an instruction where source operands is the memory address specified by `sourceBaseReg+sourceOffsetConst`
	// and the destination is `destinationReg` register.
	CompileMemoryToRegister(instruction Instruction, sourceBaseReg Register, sourceOffsetConst ConstantValue, destinationReg Register)
	// CompileRegisterToMemory adds an instruction where source operand is `sourceRegister` register and the destination is the
	// memory address specified by `destinationBaseRegister+destinationOffsetConst`.
	CompileRegisterToMemory(instruction Instruction, sourceRegister Register, destinationBaseRegister Register, destinationOffsetConst ConstantValue)
	// CompileJump adds jump-type instruction and returns the corresponding Node in the assembled linked list.
	CompileJump(jmpInstruction Instruction) Node
	// CompileJumpToRegister adds jump-type instruction whose destination is the address held by `reg`.
	CompileJumpToRegister(jmpInstruction Instruction, reg Register)
}
