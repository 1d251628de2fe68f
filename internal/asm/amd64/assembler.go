// Package amd64 is the x86-64 assembler of the native JIT backend.
package amd64

import (
	"github.com/armature-emu/armature/internal/asm"
)

// Assembler is the interface used by amd64 JIT backend.
type Assembler interface {
	asm.AssemblerBase
	// CompileNoneToRegister adds an instruction where destination operand is the register `register`,
	// and there's no source operand.
	CompileNoneToRegister(instruction asm.Instruction, register asm.Register)
	// CompileConstToMemory adds an instruction where source operand is the constant `value` and
	// the destination is the memory address specified as `dstBaseReg+dstOffset`.
	CompileConstToMemory(instruction asm.Instruction, value asm.ConstantValue, dstBaseReg asm.Register, dstOffset asm.ConstantValue) asm.Node
	// CompileMemoryWithIndexToRegister adds an instruction where source operand is the memory address
	// specified as `srcBaseReg + srcOffsetConst + srcIndex*srcScale` and destination is the register `dstReg`.
	// Note: srcScale must be one of 1, 2, 4, 8.
	CompileMemoryWithIndexToRegister(instruction asm.Instruction, srcBaseReg asm.Register, srcOffsetConst asm.ConstantValue, srcIndex asm.Register, srcScale int16, dstReg asm.Register)
}

// NewAssembler returns the golang-asm backed Assembler.
func NewAssembler() (Assembler, error) {
	b, err := asm.NewBaseAssembler("amd64")
	if err != nil {
		return nil, err
	}
	return &assemblerGoAsmImpl{BaseAssembler: b}, nil
}
