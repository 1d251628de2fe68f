package isa

import (
	"fmt"
	"strings"
)

var condNames = [16]string{"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc", "hi", "ls", "ge", "lt", "gt", "le", "", "nv"}

var dataOpNames = [16]string{"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc", "tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn"}

var shiftNames = [4]string{"lsl", "lsr", "asr", "ror"}

// CondName returns the assembler suffix of a condition field, empty for AL.
func CondName(cond uint32) string { return condNames[cond&0xf] }

func reg(i int) string {
	switch i {
	case 13:
		return "sp"
	case 14:
		return "lr"
	case 15:
		return "pc"
	}
	return fmt.Sprintf("r%d", i)
}

func regList(list uint32) string {
	var regs []string
	for i := 0; i < 16; i++ {
		if list&(1<<i) != 0 {
			regs = append(regs, reg(i))
		}
	}
	return "{" + strings.Join(regs, ", ") + "}"
}

// Disassemble renders one instruction. addr is the address of the instruction
// and thumb selects the Thumb branch scaling and BL pair rendering; w and f are
// the (expanded) word and its format.
func Disassemble(w Word, f Format, addr uint32, thumb bool) string {
	cond := CondName(w.Cond())
	pc := addr + 8
	if thumb {
		pc = addr + 4
	}
	switch f {
	case FormatDataProcessing:
		return disasmDataProcessing(w, cond)
	case FormatPSRTransfer:
		psr := "cpsr"
		if w.Bit(22) {
			psr = "spsr"
		}
		if !w.Bit(21) {
			return fmt.Sprintf("mrs%s %s, %s", cond, reg(w.Rd()), psr)
		}
		fields := ""
		for i, c := range "cxsf" {
			if w.Bit(uint(16 + i)) {
				fields += string(c)
			}
		}
		if w.Bit(25) {
			v := w.Bits(7, 0)
			rot := w.Bits(11, 8) * 2
			v = v>>rot | v<<((32-rot)&31)
			return fmt.Sprintf("msr%s %s_%s, #%#x", cond, psr, fields, v)
		}
		return fmt.Sprintf("msr%s %s_%s, %s", cond, psr, fields, reg(w.Rm()))
	case FormatMultiply:
		s := sflag(w)
		if w.Bit(21) {
			return fmt.Sprintf("mla%s%s %s, %s, %s, %s", cond, s, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()), reg(w.Rd()))
		}
		return fmt.Sprintf("mul%s%s %s, %s, %s", cond, s, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()))
	case FormatMultiplyLong:
		name := "umull"
		switch {
		case w.Bit(22) && w.Bit(21):
			name = "smlal"
		case w.Bit(22):
			name = "smull"
		case w.Bit(21):
			name = "umlal"
		}
		return fmt.Sprintf("%s%s%s %s, %s, %s, %s", name, cond, sflag(w), reg(w.Rd()), reg(w.Rn()), reg(w.Rm()), reg(w.Rs()))
	case FormatSwap:
		b := ""
		if w.Bit(22) {
			b = "b"
		}
		return fmt.Sprintf("swp%s%s %s, %s, [%s]", cond, b, reg(w.Rd()), reg(w.Rm()), reg(w.Rn()))
	case FormatBranchExchange:
		if w.Bits(7, 4) == 0x3 {
			return fmt.Sprintf("blx%s %s", cond, reg(w.Rm()))
		}
		return fmt.Sprintf("bx%s %s", cond, reg(w.Rm()))
	case FormatHalfwordTransfer:
		return disasmHalfword(w, cond)
	case FormatSingleDataTransfer:
		return disasmSingle(w, cond)
	case FormatBlockTransfer:
		name := "stm"
		if w.Bit(20) {
			name = "ldm"
		}
		mode := [4]string{"da", "ia", "db", "ib"}[w.Bits(24, 23)]
		wb, s := "", ""
		if w.Bit(21) {
			wb = "!"
		}
		if w.Bit(22) {
			s = "^"
		}
		return fmt.Sprintf("%s%s%s %s%s, %s%s", name, cond, mode, reg(w.Rn()), wb, regList(w.Bits(15, 0)), s)
	case FormatBranch:
		shift := uint32(2)
		if thumb {
			shift = 1
		}
		target := pc + w.BranchOffset()<<shift
		if w.Cond() == CondNV {
			return fmt.Sprintf("blx %#x", target+w.Bits(24, 24)<<1)
		}
		if w.Bit(24) {
			return fmt.Sprintf("bl%s %#x", cond, target)
		}
		return fmt.Sprintf("b%s %#x", cond, target)
	case FormatCoprocessorDataTransfer:
		name := "stc"
		if w.Bit(20) {
			name = "ldc"
		}
		return fmt.Sprintf("%s%s p%d, c%d, [%s]", name, cond, w.Bits(11, 8), w.Rd(), reg(w.Rn()))
	case FormatCoprocessorDataOperation:
		return fmt.Sprintf("cdp%s p%d, %d, c%d, c%d, c%d, %d", cond, w.Bits(11, 8), w.Bits(23, 20), w.Rd(), w.Rn(), w.Rm(), w.Bits(7, 5))
	case FormatCoprocessorRegisterTransfer:
		name := "mcr"
		if w.Bit(20) {
			name = "mrc"
		}
		return fmt.Sprintf("%s%s p%d, %d, %s, c%d, c%d, %d", name, cond, w.Bits(11, 8), w.Bits(23, 21), reg(w.Rd()), w.Rn(), w.Rm(), w.Bits(7, 5))
	case FormatSoftwareInterrupt:
		if thumb {
			return fmt.Sprintf("swi%s %#x", cond, w.Bits(7, 0))
		}
		return fmt.Sprintf("swi%s %#x", cond, w.Bits(23, 0))
	case FormatCountLeadingZeros:
		return fmt.Sprintf("clz%s %s, %s", cond, reg(w.Rd()), reg(w.Rm()))
	case FormatSaturatingArithmetic:
		name := [4]string{"qadd", "qsub", "qdadd", "qdsub"}[w.Bits(22, 21)]
		return fmt.Sprintf("%s%s %s, %s, %s", name, cond, reg(w.Rd()), reg(w.Rm()), reg(w.Rn()))
	case FormatSignedMultiplyHalfword:
		return disasmSignedMultiply(w, cond)
	case FormatThumbLongBranchPrefix:
		off := uint32(int32(uint32(w)<<21)>>21) << 12
		return fmt.Sprintf("bl.prefix lr, pc, #%#x", off)
	case FormatThumbLongBranchSuffix:
		if !w.Bit(12) {
			return fmt.Sprintf("blx.suffix lr, #%#x", w.Bits(10, 0)<<1)
		}
		return fmt.Sprintf("bl.suffix lr, #%#x", w.Bits(10, 0)<<1)
	}
	return fmt.Sprintf("undefined %08x", uint32(w))
}

func sflag(w Word) string {
	if w.SetsFlags() {
		return "s"
	}
	return ""
}

func shifterOperand(w Word) string {
	if w.Bit(25) {
		v := w.Bits(7, 0)
		rot := w.Bits(11, 8) * 2
		v = v>>rot | v<<((32-rot)&31)
		return fmt.Sprintf("#%#x", v)
	}
	return shiftedRegister(w)
}

func shiftedRegister(w Word) string {
	rm := reg(w.Rm())
	kind := w.Bits(6, 5)
	if w.Bit(4) {
		return fmt.Sprintf("%s, %s %s", rm, shiftNames[kind], reg(w.Rs()))
	}
	amount := w.Bits(11, 7)
	switch {
	case amount == 0 && kind == 0:
		return rm
	case amount == 0 && kind == 3:
		return rm + ", rrx"
	case amount == 0:
		amount = 32
	}
	return fmt.Sprintf("%s, %s #%d", rm, shiftNames[kind], amount)
}

func disasmDataProcessing(w Word, cond string) string {
	op := w.Opcode()
	name := dataOpNames[op]
	switch {
	case IsTest(op):
		return fmt.Sprintf("%s%s %s, %s", name, cond, reg(w.Rn()), shifterOperand(w))
	case op == OpMOV || op == OpMVN:
		return fmt.Sprintf("%s%s%s %s, %s", name, cond, sflag(w), reg(w.Rd()), shifterOperand(w))
	}
	return fmt.Sprintf("%s%s%s %s, %s, %s", name, cond, sflag(w), reg(w.Rd()), reg(w.Rn()), shifterOperand(w))
}

func address(w Word, offset string) string {
	sign := ""
	if !w.Bit(23) {
		sign = "-"
	}
	if !w.Bit(24) {
		return fmt.Sprintf("[%s], %s%s", reg(w.Rn()), sign, offset)
	}
	wb := ""
	if w.Bit(21) {
		wb = "!"
	}
	return fmt.Sprintf("[%s, %s%s]%s", reg(w.Rn()), sign, offset, wb)
}

func disasmSingle(w Word, cond string) string {
	if w.Cond() == CondNV {
		return "pld " + address(w, fmt.Sprintf("#%#x", w.Bits(11, 0)))
	}
	name := "str"
	if w.Bit(20) {
		name = "ldr"
	}
	if w.Bit(22) {
		name += "b"
	}
	offset := fmt.Sprintf("#%#x", w.Bits(11, 0))
	if w.Bit(25) {
		offset = shiftedRegister(w)
	}
	return fmt.Sprintf("%s%s %s, %s", name, cond, reg(w.Rd()), address(w, offset))
}

func disasmHalfword(w Word, cond string) string {
	var name string
	switch sh := w.Bits(6, 5); {
	case w.Bit(20):
		name = [4]string{"", "ldrh", "ldrsb", "ldrsh"}[sh]
	case sh == 1:
		name = "strh"
	case sh == 2:
		name = "ldrd"
	default:
		name = "strd"
	}
	offset := reg(w.Rm())
	if w.Bit(22) {
		offset = fmt.Sprintf("#%#x", w.HalfwordOffset())
	}
	return fmt.Sprintf("%s%s %s, %s", name, cond, reg(w.Rd()), address(w, offset))
}

func disasmSignedMultiply(w Word, cond string) string {
	xy := func(b uint) string {
		if w.Bit(b) {
			return "t"
		}
		return "b"
	}
	switch w.Bits(22, 21) {
	case 0:
		return fmt.Sprintf("smla%s%s%s %s, %s, %s, %s", xy(5), xy(6), cond, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()), reg(w.Rd()))
	case 1:
		if w.Bit(5) {
			return fmt.Sprintf("smulw%s%s %s, %s, %s", xy(6), cond, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()))
		}
		return fmt.Sprintf("smlaw%s%s %s, %s, %s, %s", xy(6), cond, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()), reg(w.Rd()))
	case 2:
		return fmt.Sprintf("smlal%s%s%s %s, %s, %s, %s", xy(5), xy(6), cond, reg(w.Rd()), reg(w.Rn()), reg(w.Rm()), reg(w.Rs()))
	}
	return fmt.Sprintf("smul%s%s%s %s, %s, %s", xy(5), xy(6), cond, reg(w.Rn()), reg(w.Rm()), reg(w.Rs()))
}
