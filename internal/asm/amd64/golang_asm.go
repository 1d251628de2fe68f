package amd64

import (
	"github.com/twitchyliquid64/golang-asm/obj"

	"github.com/armature-emu/armature/internal/asm"
)

// assemblerGoAsmImpl implements Assembler for golang-asm library.
type assemblerGoAsmImpl struct {
	*asm.BaseAssembler
}

var _ Assembler = &assemblerGoAsmImpl{}

// CompileStandAlone implements AssemblerBase.CompileStandAlone.
func (a *assemblerGoAsmImpl) CompileStandAlone(instruction asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.AddInstruction(p)
	return asm.NewNode(p)
}

// CompileConstToRegister implements AssemblerBase.CompileConstToRegister.
func (a *assemblerGoAsmImpl) CompileConstToRegister(instruction asm.Instruction, value asm.ConstantValue, destinationReg asm.Register) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(destinationReg)
	a.AddInstruction(p)
	return asm.NewNode(p)
}

// CompileRegisterToRegister implements AssemblerBase.CompileRegisterToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(from)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(to)
	a.AddInstruction(p)
}

// CompileMemoryToRegister implements AssemblerBase.CompileMemoryToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst asm.ConstantValue, destinationReg asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = int16(sourceBaseReg)
	p.From.Offset = sourceOffsetConst
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(destinationReg)
	a.AddInstruction(p)
}

// CompileMemoryWithIndexToRegister implements Assembler.CompileMemoryWithIndexToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryWithIndexToRegister(instruction asm.Instruction, srcBaseReg asm.Register, srcOffsetConst asm.ConstantValue, srcIndex asm.Register, srcScale int16, dstReg asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = int16(srcBaseReg)
	p.From.Offset = srcOffsetConst
	p.From.Index = int16(srcIndex)
	p.From.Scale = srcScale
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(dstReg)
	a.AddInstruction(p)
}

// CompileRegisterToMemory implements AssemblerBase.CompileRegisterToMemory.
func (a *assemblerGoAsmImpl) CompileRegisterToMemory(instruction asm.Instruction, sourceRegister asm.Register, destinationBaseRegister asm.Register, destinationOffsetConst asm.ConstantValue) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(sourceRegister)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = int16(destinationBaseRegister)
	p.To.Offset = destinationOffsetConst
	a.AddInstruction(p)
}

// CompileConstToMemory implements Assembler.CompileConstToMemory.
func (a *assemblerGoAsmImpl) CompileConstToMemory(instruction asm.Instruction, value asm.ConstantValue, dstBaseReg asm.Register, dstOffset asm.ConstantValue) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = int16(dstBaseReg)
	p.To.Offset = dstOffset
	a.AddInstruction(p)
	return asm.NewNode(p)
}

// CompileNoneToRegister implements Assembler.CompileNoneToRegister.
func (a *assemblerGoAsmImpl) CompileNoneToRegister(instruction asm.Instruction, register asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_NONE
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(register)
	a.AddInstruction(p)
}

// CompileJump implements AssemblerBase.CompileJump.
func (a *assemblerGoAsmImpl) CompileJump(jmpInstruction asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[jmpInstruction]
	p.To.Type = obj.TYPE_BRANCH
	a.AddInstruction(p)
	return asm.NewNode(p)
}

// CompileJumpToRegister implements AssemblerBase.CompileJumpToRegister.
func (a *assemblerGoAsmImpl) CompileJumpToRegister(jmpInstruction asm.Instruction, reg asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[jmpInstruction]
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(reg)
	a.AddInstruction(p)
}
