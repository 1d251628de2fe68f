package amd64

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/armature-emu/armature/internal/asm"
)

// AMD64-specific registers, numbered as golang-asm numbers them.
const (
	REG_AX  = asm.Register(x86.REG_AX)
	REG_CX  = asm.Register(x86.REG_CX)
	REG_DX  = asm.Register(x86.REG_DX)
	REG_BX  = asm.Register(x86.REG_BX)
	REG_SP  = asm.Register(x86.REG_SP)
	REG_BP  = asm.Register(x86.REG_BP)
	REG_SI  = asm.Register(x86.REG_SI)
	REG_DI  = asm.Register(x86.REG_DI)
	REG_R8  = asm.Register(x86.REG_R8)
	REG_R9  = asm.Register(x86.REG_R9)
	REG_R10 = asm.Register(x86.REG_R10)
	REG_R11 = asm.Register(x86.REG_R11)
	REG_R12 = asm.Register(x86.REG_R12)
	REG_R13 = asm.Register(x86.REG_R13)
	REG_R14 = asm.Register(x86.REG_R14)
	REG_R15 = asm.Register(x86.REG_R15)
)

// RegisterName returns the Go assembler name of the register.
func RegisterName(reg asm.Register) string {
	if reg == asm.NilRegister {
		return "nil"
	}
	return obj.Rconv(int(reg))
}

// AMD64-specific instructions.
// https://www.felixcloutier.com/x86/index.html
//
// Note: here we do not define all of amd64 instructions, only the ones used by the JIT backend.
// Note: naming convention is exactly the same as Go assembler: https://go.dev/doc/asm
const (
	NONE asm.Instruction = iota
	ADDL
	ADDQ
	ANDL
	CMPL
	CMPQ
	IMULL
	IMULQ
	JEQ
	JLE
	JMI
	JMP
	JNE
	MOVBLSX
	MOVBLZX
	MOVL
	MOVLQSX
	MOVQ
	MOVWLSX
	NOP
	NOTL
	ORL
	RET
	RORL
	SARL
	SARQ
	SETEQ
	SETNE
	SHLL
	SHRL
	SHRQ
	SUBL
	SUBQ
	TESTL
	TESTQ
	XORL

	instructionEnd
)

var instructionNames = [instructionEnd]string{
	NONE: "NONE", ADDL: "ADDL", ADDQ: "ADDQ", ANDL: "ANDL", CMPL: "CMPL", CMPQ: "CMPQ",
	IMULL: "IMULL", IMULQ: "IMULQ", JEQ: "JEQ", JLE: "JLE", JMI: "JMI", JMP: "JMP", JNE: "JNE",
	MOVBLSX: "MOVBLSX", MOVBLZX: "MOVBLZX", MOVL: "MOVL", MOVLQSX: "MOVLQSX", MOVQ: "MOVQ",
	MOVWLSX: "MOVWLSX", NOP: "NOP", NOTL: "NOTL", ORL: "ORL", RET: "RET", RORL: "RORL",
	SARL: "SARL", SARQ: "SARQ", SETEQ: "SETEQ", SETNE: "SETNE", SHLL: "SHLL", SHRL: "SHRL",
	SHRQ: "SHRQ", SUBL: "SUBL", SUBQ: "SUBQ", TESTL: "TESTL", TESTQ: "TESTQ", XORL: "XORL",
}

// InstructionName returns the Go assembler name of the instruction.
func InstructionName(instruction asm.Instruction) string {
	if instruction < instructionEnd {
		return instructionNames[instruction]
	}
	return fmt.Sprintf("instruction(%d)", instruction)
}

var castAsGolangAsmInstruction = [instructionEnd]obj.As{
	NONE:    obj.AXXX,
	ADDL:    x86.AADDL,
	ADDQ:    x86.AADDQ,
	ANDL:    x86.AANDL,
	CMPL:    x86.ACMPL,
	CMPQ:    x86.ACMPQ,
	IMULL:   x86.AIMULL,
	IMULQ:   x86.AIMULQ,
	JEQ:     x86.AJEQ,
	JLE:     x86.AJLE,
	JMI:     x86.AJMI,
	JMP:     obj.AJMP,
	JNE:     x86.AJNE,
	MOVBLSX: x86.AMOVBLSX,
	MOVBLZX: x86.AMOVBLZX,
	MOVL:    x86.AMOVL,
	MOVLQSX: x86.AMOVLQSX,
	MOVQ:    x86.AMOVQ,
	MOVWLSX: x86.AMOVWLSX,
	NOP:     obj.ANOP,
	NOTL:    x86.ANOTL,
	ORL:     x86.AORL,
	RET:     obj.ARET,
	RORL:    x86.ARORL,
	SARL:    x86.ASARL,
	SARQ:    x86.ASARQ,
	SETEQ:   x86.ASETEQ,
	SETNE:   x86.ASETNE,
	SHLL:    x86.ASHLL,
	SHRL:    x86.ASHRL,
	SHRQ:    x86.ASHRQ,
	SUBL:    x86.ASUBL,
	SUBQ:    x86.ASUBQ,
	TESTL:   x86.ATESTL,
	TESTQ:   x86.ATESTQ,
	XORL:    x86.AXORL,
}
