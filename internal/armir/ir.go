// Package armir is the intermediate representation of compiled guest code:
// a flat, block-scoped sequence of pseudo-ops over a linear value space. The
// position of an instruction in Block.Instrs is its value identity; operands
// are either constants or indices of earlier instructions in the same block.
package armir

import (
	"fmt"
	"strings"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
)

// Op is an IR opcode.
type Op byte

const (
	// OpNop is a deleted instruction. Indices stay stable across passes.
	OpNop Op = iota

	// OpLoadReg yields R[Aux].
	OpLoadReg
	// OpStoreReg sets R[Aux] to Args[0].
	OpStoreReg
	// OpLoadUserReg yields the user bank register Aux.
	OpLoadUserReg
	// OpStoreUserReg sets the user bank register Aux to Args[0].
	OpStoreUserReg
	// OpLoadFlag yields the CPSR bit Aux as 0 or 1.
	OpLoadFlag
	// OpStoreFlag sets the CPSR bit Aux to the low bit of Args[0].
	OpStoreFlag
	// OpLoadCPSR yields the CPSR.
	OpLoadCPSR
	// OpStoreCPSR replaces the CPSR with Args[0], switching register banks.
	OpStoreCPSR
	// OpLoadSPSR yields the SPSR of the current mode.
	OpLoadSPSR
	// OpStoreSPSR sets the SPSR of the current mode.
	OpStoreSPSR

	// OpMov yields Args[0].
	OpMov
	OpAdd
	OpSub
	// OpAdc yields Args[0]+Args[1]+Args[2].
	OpAdc
	// OpCarry yields the carry out of Args[0]+Args[1]+Args[2].
	OpCarry
	// OpOverflow yields the signed overflow of Args[0]+Args[1]+Args[2].
	OpOverflow
	OpAnd
	OpOr
	OpXor
	// OpBic yields Args[0] &^ Args[1].
	OpBic
	OpNot
	// OpLsl, OpLsr, OpAsr and OpRor shift Args[0] by Args[1] with the
	// semantics of a register-specified shift: the amount is taken modulo 256
	// and zero leaves the value unchanged.
	OpLsl
	OpLsr
	OpAsr
	OpRor
	// OpLslCarry, OpLsrCarry, OpAsrCarry and OpRorCarry yield the shifter carry
	// out of the corresponding shift, with Args[2] as the carry in.
	OpLslCarry
	OpLsrCarry
	OpAsrCarry
	OpRorCarry
	// OpRrx rotates Args[0] right by one through the carry Args[1].
	OpRrx
	// OpMul yields the low word of Args[0]*Args[1].
	OpMul
	// OpMulHiU and OpMulHiS yield the high word of the unsigned or signed
	// 64-bit product.
	OpMulHiU
	OpMulHiS
	// OpMulCycles yields the multiplier early-termination cycles of Args[0].
	// Aux is 1 for signed multiplies.
	OpMulCycles
	OpClz
	// OpQAdd and OpQSub yield the signed saturated sum or difference.
	OpQAdd
	OpQSub
	// OpQAddSat and OpQSubSat yield 1 if OpQAdd or OpQSub saturate.
	OpQAddSat
	OpQSubSat
	// OpEqz yields 1 if Args[0] is zero, 0 otherwise.
	OpEqz
	OpSext8
	OpSext16

	// OpRead8 through OpRead32 read the bus at Args[0]. Aux is AuxLiteral when
	// the address is PC-relative.
	OpRead8
	OpRead8S
	OpRead16
	OpRead16S
	OpRead32
	// OpWrite8 through OpWrite32 write Args[1] to the bus at Args[0].
	OpWrite8
	OpWrite16
	OpWrite32

	// OpCoprocRead yields the CP15 register Aux, packed by CoprocessorAux.
	OpCoprocRead
	// OpCoprocWrite writes Args[0] to the CP15 register Aux.
	OpCoprocWrite

	// OpCycles adds Args[0] to the cycle counter.
	OpCycles

	// OpJump continues at Target.
	OpJump
	// OpJumpIf continues at Target if Args[0] is nonzero.
	OpJumpIf
	// OpJumpIfZero continues at Target if Args[0] is zero.
	OpJumpIfZero
	// OpBranch continues at Target if Args[0] is nonzero, at Target2 otherwise.
	OpBranch

	// OpExit ends the block, continuing at the guest address Args[0].
	OpExit
	// OpException enters the exception vector Aux with Args[0] as LR.
	OpException
	// OpIdle ends a block that spins on itself, continuing at Args[0].
	OpIdle
	// OpHalt halts the core until the next interrupt, continuing at Args[0].
	OpHalt

	opCount
)

// AuxLiteral marks a read whose address is relative to the program counter.
const AuxLiteral = 1

var opNames = [opCount]string{
	OpNop: "nop", OpLoadReg: "load_reg", OpStoreReg: "store_reg",
	OpLoadUserReg: "load_user_reg", OpStoreUserReg: "store_user_reg",
	OpLoadFlag: "load_flag", OpStoreFlag: "store_flag",
	OpLoadCPSR: "load_cpsr", OpStoreCPSR: "store_cpsr",
	OpLoadSPSR: "load_spsr", OpStoreSPSR: "store_spsr",
	OpMov: "mov", OpAdd: "add", OpSub: "sub", OpAdc: "adc",
	OpCarry: "carry", OpOverflow: "overflow",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpBic: "bic", OpNot: "not",
	OpLsl: "lsl", OpLsr: "lsr", OpAsr: "asr", OpRor: "ror",
	OpLslCarry: "lsl_carry", OpLsrCarry: "lsr_carry", OpAsrCarry: "asr_carry", OpRorCarry: "ror_carry",
	OpRrx: "rrx", OpMul: "mul", OpMulHiU: "mul_hi_u", OpMulHiS: "mul_hi_s", OpMulCycles: "mul_cycles",
	OpClz: "clz", OpQAdd: "qadd", OpQSub: "qsub", OpQAddSat: "qadd_sat", OpQSubSat: "qsub_sat",
	OpEqz: "eqz", OpSext8: "sext8", OpSext16: "sext16",
	OpRead8: "read8", OpRead8S: "read8s", OpRead16: "read16", OpRead16S: "read16s", OpRead32: "read32",
	OpWrite8: "write8", OpWrite16: "write16", OpWrite32: "write32",
	OpCoprocRead: "coproc_read", OpCoprocWrite: "coproc_write",
	OpCycles: "cycles",
	OpJump:   "jump", OpJumpIf: "jump_if", OpJumpIfZero: "jump_if_zero", OpBranch: "branch",
	OpExit: "exit", OpException: "exception", OpIdle: "idle", OpHalt: "halt",
}

// String implements fmt.Stringer.
func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", byte(o))
}

// NumArgs returns the number of operands o reads.
func (o Op) NumArgs() int {
	switch o {
	case OpNop, OpLoadReg, OpLoadUserReg, OpLoadFlag, OpLoadCPSR, OpLoadSPSR, OpCoprocRead, OpJump:
		return 0
	case OpAdc, OpCarry, OpOverflow, OpLslCarry, OpLsrCarry, OpAsrCarry, OpRorCarry:
		return 3
	case OpAdd, OpSub, OpAnd, OpOr, OpXor, OpBic, OpLsl, OpLsr, OpAsr, OpRor, OpRrx,
		OpMul, OpMulHiU, OpMulHiS, OpQAdd, OpQSub, OpQAddSat, OpQSubSat,
		OpWrite8, OpWrite16, OpWrite32:
		return 2
	}
	return 1
}

// IsPure returns true if o only computes a value from its operands.
func (o Op) IsPure() bool {
	return o >= OpMov && o <= OpSext16
}

// IsRead returns true for the bus reads.
func (o Op) IsRead() bool { return o >= OpRead8 && o <= OpRead32 }

// IsWrite returns true for the bus writes.
func (o Op) IsWrite() bool { return o >= OpWrite8 && o <= OpWrite32 }

// HasResult returns true if o yields a value.
func (o Op) HasResult() bool {
	switch o {
	case OpLoadReg, OpLoadUserReg, OpLoadFlag, OpLoadCPSR, OpLoadSPSR, OpCoprocRead:
		return true
	}
	return o.IsPure() || o.IsRead()
}

// HasSideEffect returns true if o must be kept even when its result is unused.
func (o Op) HasSideEffect() bool {
	if o.IsRead() || o == OpCoprocRead || o == OpLoadUserReg {
		// Bus reads can have side effects on I/O registers.
		return true
	}
	return !o.HasResult() && o != OpNop
}

// IsJump returns true for the intra-block control transfers.
func (o Op) IsJump() bool { return o >= OpJump && o <= OpBranch }

// IsTerminator returns true for the ops that end the block.
func (o Op) IsTerminator() bool { return o >= OpExit && o <= OpHalt }

// CallsOut returns true for the ops that leave generated code to run Go:
// bus and coprocessor access, bank switching, exceptions and halting.
func (o Op) CallsOut() bool {
	switch o {
	case OpStoreCPSR, OpLoadUserReg, OpStoreUserReg, OpCoprocRead, OpCoprocWrite, OpException, OpHalt:
		return true
	}
	return o.IsRead() || o.IsWrite()
}

// Arg is an operand: a constant, or the index of an earlier instruction.
type Arg struct {
	Const bool
	Value uint32
}

// C returns the constant operand v.
func C(v uint32) Arg { return Arg{Const: true, Value: v} }

// V returns the operand referring to the result of instruction i.
func V(i int) Arg { return Arg{Value: uint32(i)} }

// Index returns the instruction index of a non-constant operand.
func (a Arg) Index() int { return int(a.Value) }

// String implements fmt.Stringer.
func (a Arg) String() string {
	if a.Const {
		return fmt.Sprintf("#%#x", a.Value)
	}
	return fmt.Sprintf("v%d", a.Value)
}

// LinkInfo is set on an OpExit whose successor block is known statically.
type LinkInfo struct {
	Linked bool
	Addr   uint32
	Attr   Attr
}

// Instr is one IR instruction.
type Instr struct {
	Op   Op
	Args [3]Arg
	Aux  uint32
	// Target and Target2 are the instruction indices control continues at.
	// Jumps only go forward.
	Target, Target2 int
	Link            LinkInfo
}

// String implements fmt.Stringer.
func (in *Instr) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	for i := 0; i < in.Op.NumArgs(); i++ {
		sb.WriteByte(' ')
		sb.WriteString(in.Args[i].String())
	}
	switch in.Op {
	case OpLoadReg, OpStoreReg, OpLoadUserReg, OpStoreUserReg:
		sb.WriteString(" ")
		sb.WriteString(cpu.RegisterName(int(in.Aux)))
	case OpLoadFlag, OpStoreFlag:
		sb.WriteString(" ")
		sb.WriteString(cpu.FlagName(in.Aux))
	case OpException:
		sb.WriteString(" ")
		sb.WriteString(api.VectorName(in.Aux))
	case OpCoprocRead, OpCoprocWrite:
		g, i, o := SplitCoprocessorAux(in.Aux)
		fmt.Fprintf(&sb, " c%d, c%d, %d", g, i, o)
	case OpJump, OpJumpIf, OpJumpIfZero:
		fmt.Fprintf(&sb, " -> %d", in.Target)
	case OpBranch:
		fmt.Fprintf(&sb, " -> %d, %d", in.Target, in.Target2)
	case OpExit:
		if in.Link.Linked {
			fmt.Fprintf(&sb, " (linked %#x/%#x)", in.Link.Addr, in.Link.Attr)
		}
	default:
		if in.Op.IsRead() && in.Aux == AuxLiteral {
			sb.WriteString(" literal")
		}
	}
	return sb.String()
}

// CoprocessorAux packs a CP15 register for OpCoprocRead and OpCoprocWrite.
func CoprocessorAux(group, index, opcode uint32) uint32 {
	return group<<16 | index<<8 | opcode
}

// SplitCoprocessorAux unpacks CoprocessorAux.
func SplitCoprocessorAux(aux uint32) (group, index, opcode uint32) {
	return aux >> 16, (aux >> 8) & 0xff, aux & 0xff
}

// Attr is the part of the CPSR a block is specialized to: the mode bits and
// the T bit.
type Attr uint8

// AttrOf returns the Attr of the given CPSR.
func AttrOf(cpsr uint32) Attr { return Attr(cpsr & (cpu.ModeMask | cpu.FlagT)) }

// Thumb returns true if the block executes in Thumb state.
func (a Attr) Thumb() bool { return uint32(a)&cpu.FlagT != 0 }

// Mode returns the processor mode of the block.
func (a Attr) Mode() api.Mode { return uint32(a) & cpu.ModeMask }

// Block is the IR of a run of guest instructions starting at Addr.
type Block struct {
	Addr uint32
	// End is the address after the last guest instruction.
	End  uint32
	Attr Attr
	// Instructions is the number of guest instructions compiled.
	Instructions int
	Instrs       []Instr
	// Literals are the word addresses of literals folded into the block.
	Literals []uint32
}

// String implements fmt.Stringer.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block %#x-%#x %s %s:\n", b.Addr, b.End, api.ModeName(b.Attr.Mode()), map[bool]string{false: "arm", true: "thumb"}[b.Attr.Thumb()])
	for i := range b.Instrs {
		if b.Instrs[i].Op == OpNop {
			continue
		}
		fmt.Fprintf(&sb, "\t%d: %s\n", i, b.Instrs[i].String())
	}
	return sb.String()
}

// RangeEnd returns the exclusive end address end as a 33-bit value: zero ends
// a range at the top of the address space.
func RangeEnd(end uint32) uint64 {
	if end == 0 {
		return 1 << 32
	}
	return uint64(end)
}

// Overlaps returns true if a write to [start, end) changes code or literals of
// b. An end of zero is the top of the address space.
func (b *Block) Overlaps(start, end uint32) bool {
	lo, hi := uint64(start), RangeEnd(end)
	blkEnd := uint64(b.End)
	if b.End < b.Addr {
		blkEnd = RangeEnd(b.End)
	}
	if lo < blkEnd && uint64(b.Addr) < hi {
		return true
	}
	for _, l := range b.Literals {
		if lo < uint64(l)+4 && uint64(l) < hi {
			return true
		}
	}
	return false
}

// Eval computes the pure op o. Operands beyond o.NumArgs are ignored.
func Eval(o Op, aux, a, b, c uint32) uint32 {
	switch o {
	case OpMov:
		return a
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpAdc:
		return a + b + c
	case OpCarry:
		_, carry, _ := cpu.AddWithCarry(a, b, c)
		return carry
	case OpOverflow:
		_, _, v := cpu.AddWithCarry(a, b, c)
		return v
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpXor:
		return a ^ b
	case OpBic:
		return a &^ b
	case OpNot:
		return ^a
	case OpLsl, OpLsr, OpAsr, OpRor:
		r, _ := cpu.Shift(uint32(o-OpLsl), a, b, 0)
		return r
	case OpLslCarry, OpLsrCarry, OpAsrCarry, OpRorCarry:
		_, carry := cpu.Shift(uint32(o-OpLslCarry), a, b, c)
		return carry
	case OpRrx:
		r, _ := cpu.RRX(a, b)
		return r
	case OpMul:
		return a * b
	case OpMulHiU:
		return uint32(uint64(a) * uint64(b) >> 32)
	case OpMulHiS:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case OpMulCycles:
		return cpu.MultiplyCycles(a, aux != 0)
	case OpClz:
		return cpu.CountLeadingZeros(a)
	case OpQAdd:
		r, _ := cpu.SaturatingAdd(a, b)
		return r
	case OpQSub:
		r, _ := cpu.SaturatingSub(a, b)
		return r
	case OpQAddSat:
		_, q := cpu.SaturatingAdd(a, b)
		return q
	case OpQSubSat:
		_, q := cpu.SaturatingSub(a, b)
		return q
	case OpEqz:
		if a == 0 {
			return 1
		}
		return 0
	case OpSext8:
		return uint32(int8(a))
	case OpSext16:
		return uint32(int16(a))
	}
	panic(fmt.Sprintf("BUG: %s is not a pure op", o))
}
