package armir

import (
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// shiftOp returns the value op of a shift kind, shiftCarryOp its carry op.
func shiftOp(kind cpu.ShiftKind) Op      { return OpLsl + Op(kind) }
func shiftCarryOp(kind cpu.ShiftKind) Op { return OpLslCarry + Op(kind) }

// shiftImmediate emits the immediate-specified shift of v. carry is only
// emitted when withCarry is set.
func (b *builder) shiftImmediate(kind cpu.ShiftKind, v Arg, imm5 uint32, withCarry bool) (res, carry Arg) {
	if imm5 == 0 {
		switch kind {
		case cpu.LSL:
			if withCarry {
				carry = b.flag(cpu.C)
			}
			return v, carry
		case cpu.LSR, cpu.ASR:
			if kind == cpu.LSR {
				res = C(0)
			} else {
				res = b.op(OpAsr, v, C(31))
			}
			if withCarry {
				carry = b.op(OpLsr, v, C(31))
			}
			return
		default: // RRX
			res = b.op(OpRrx, v, b.flag(cpu.C))
			if withCarry {
				carry = b.op(OpAnd, v, C(1))
			}
			return
		}
	}
	res = b.op(shiftOp(kind), v, C(imm5))
	if withCarry {
		carry = b.op(shiftCarryOp(kind), v, C(imm5), C(0))
	}
	return
}

// shifterOperand mirrors the interpreter's operand 2 decoding.
func (b *builder) shifterOperand(w isa.Word, withCarry bool) (op2, carry Arg, regShift bool) {
	switch {
	case w.Bit(25):
		v, _ := cpu.RotatedImmediate(w.Bits(11, 0), 0)
		op2 = C(v)
		if withCarry {
			if w.Bits(11, 8) == 0 {
				carry = b.flag(cpu.C)
			} else {
				carry = C(v >> 31)
			}
		}
	case w.Bit(4):
		rm := b.reg(w.Rm())
		if w.Rm() == cpu.PC {
			rm = C(b.pc() + 4)
		}
		amount := b.reg(w.Rs())
		kind := w.Bits(6, 5)
		op2 = b.op(shiftOp(kind), rm, amount)
		if withCarry {
			carry = b.op(shiftCarryOp(kind), rm, amount, b.flag(cpu.C))
		}
		regShift = true
	default:
		op2, carry = b.shiftImmediate(w.Bits(6, 5), b.reg(w.Rm()), w.Bits(11, 7), withCarry)
	}
	return
}

// readsCarry returns true if the data-processing instruction w reads C other
// than as the shifter carry out.
func readsCarry(w isa.Word) bool {
	switch w.Opcode() {
	case isa.OpADC, isa.OpSBC, isa.OpRSC:
		return true
	}
	// RRX
	return !w.Bit(25) && !w.Bit(4) && w.Bits(6, 5) == cpu.ROR && w.Bits(11, 7) == 0
}

// nextOverwritesCarryOverflow returns true if the instruction after the
// current one is compiled into the same block, always executes, and sets C
// and V without reading them.
func (b *builder) nextOverwritesCarryOverflow() bool {
	if b.blk.Instructions+1 >= b.c.cfg.MaxInstructions {
		return false
	}
	w, f := b.fetch(b.addr + b.width)
	if f != isa.FormatDataProcessing || w.Cond() != isa.CondAL || !w.SetsFlags() || readsCarry(w) {
		return false
	}
	switch w.Opcode() {
	case isa.OpSUB, isa.OpRSB, isa.OpADD:
		return w.Rd() != cpu.PC
	case isa.OpCMP, isa.OpCMN:
		return true
	}
	return false
}

func (b *builder) dataProcessing(w isa.Word) {
	op := w.Opcode()
	rd := w.Rd()
	setFlags := w.SetsFlags()
	// C and V are dead when the next instruction overwrites both.
	flagsCV := setFlags && (rd == cpu.PC || !b.nextOverwritesCarryOverflow())

	op2, sc, regShift := b.shifterOperand(w, flagsCV && isa.IsLogical(op))
	rn := b.reg(w.Rn())
	if w.Rn() == cpu.PC {
		if regShift {
			rn = C(b.pc() + 4)
		} else if w.Bit(25) && b.thumb {
			rn = C(b.pc() &^ 3)
		}
	}
	b.body += cpu.CyclesDataProcess
	if regShift {
		b.body += cpu.CyclesRegisterShift
	}

	var res, c, v Arg
	hasCV := false
	// add emits x+y+cin with its flags.
	add := func(x, y, cin Arg) {
		if cin.Const && cin.Value == 0 {
			res = b.op(OpAdd, x, y)
		} else {
			res = b.op(OpAdc, x, y, cin)
		}
		if flagsCV {
			c = b.op(OpCarry, x, y, cin)
			v = b.op(OpOverflow, x, y, cin)
			hasCV = true
		}
	}
	switch op {
	case isa.OpAND, isa.OpTST:
		res = b.op(OpAnd, rn, op2)
	case isa.OpEOR, isa.OpTEQ:
		res = b.op(OpXor, rn, op2)
	case isa.OpSUB, isa.OpCMP:
		add(rn, b.op(OpNot, op2), C(1))
	case isa.OpRSB:
		add(op2, b.op(OpNot, rn), C(1))
	case isa.OpADD, isa.OpCMN:
		add(rn, op2, C(0))
	case isa.OpADC:
		add(rn, op2, b.flag(cpu.C))
	case isa.OpSBC:
		add(rn, b.op(OpNot, op2), b.flag(cpu.C))
	case isa.OpRSC:
		add(op2, b.op(OpNot, rn), b.flag(cpu.C))
	case isa.OpORR:
		res = b.op(OpOr, rn, op2)
	case isa.OpMOV:
		res = op2
	case isa.OpBIC:
		res = b.op(OpBic, rn, op2)
	case isa.OpMVN:
		res = b.op(OpNot, op2)
	}

	setAll := func() {
		b.setNZ(res)
		if hasCV {
			b.setFlag(cpu.C, c)
			b.setFlag(cpu.V, v)
		} else if flagsCV {
			b.setFlag(cpu.C, sc)
		}
	}

	if rd == cpu.PC && !isa.IsTest(op) {
		b.body += cpu.CyclesPCWrite
		if setFlags && b.hasSPSR() {
			// Exception return.
			b.op(OpStoreCPSR, b.op(OpLoadSPSR))
			b.writePC(res)
			return
		}
		if setFlags {
			setAll()
		}
		b.writePC(res)
		return
	}
	if !isa.IsTest(op) {
		b.setReg(rd, res)
	}
	if setFlags {
		setAll()
	}
}

func (b *builder) psrTransfer(w isa.Word) {
	b.body += cpu.CyclesPSR
	spsr := w.Bit(22)
	if !w.Bit(21) {
		o := OpLoadCPSR
		if spsr {
			o = OpLoadSPSR
		}
		v := b.op(o)
		if w.Rd() != cpu.PC {
			b.setReg(w.Rd(), v)
		}
		return
	}
	var v Arg
	if w.Bit(25) {
		imm, _ := cpu.RotatedImmediate(w.Bits(11, 0), 0)
		v = C(imm)
	} else {
		v = b.reg(w.Rm())
	}
	mask := cpu.FieldMask(w.Bits(19, 16)) & cpu.WritablePSRMask(b.c.cfg.Variant)
	if spsr {
		if b.hasSPSR() && mask != 0 {
			old := b.op(OpLoadSPSR)
			b.op(OpStoreSPSR, b.op(OpOr, b.op(OpBic, old, C(mask)), b.op(OpAnd, v, C(mask))))
		}
		return
	}
	if !b.privileged() {
		mask &= 0xff000000
	}
	if mask == 0 {
		return
	}
	old := b.op(OpLoadCPSR)
	b.op(OpStoreCPSR, b.op(OpOr, b.op(OpBic, old, C(mask)), b.op(OpAnd, v, C(mask))))
	if mask&0xff != 0 {
		// The mode or the interrupt masks may have changed.
		b.next()
	}
}

func (b *builder) multiply(w isa.Word) {
	rs := b.reg(w.Rs())
	res := b.op(OpMul, b.reg(w.Rm()), rs)
	b.body++
	b.op(OpCycles, b.opAux(OpMulCycles, 1, rs))
	if w.Bit(21) {
		res = b.op(OpAdd, res, b.reg(w.Rd()))
		b.body++
	}
	if rd := w.Rn(); rd != cpu.PC {
		b.setReg(rd, res)
	}
	if w.SetsFlags() {
		b.setNZ(res)
	}
}

func (b *builder) multiplyLong(w isa.Word) {
	rm, rs := b.reg(w.Rm()), b.reg(w.Rs())
	signed := w.Bit(22)
	lo, hi := w.Rd(), w.Rn()
	rlo := b.op(OpMul, rm, rs)
	var rhi Arg
	var signedAux uint32
	if signed {
		rhi = b.op(OpMulHiS, rm, rs)
		signedAux = 1
	} else {
		rhi = b.op(OpMulHiU, rm, rs)
	}
	b.body += 2
	b.op(OpCycles, b.opAux(OpMulCycles, signedAux, rs))
	if w.Bit(21) {
		alo, ahi := b.reg(lo), b.reg(hi)
		carry := b.op(OpCarry, rlo, alo, C(0))
		rlo = b.op(OpAdd, rlo, alo)
		rhi = b.op(OpAdc, rhi, ahi, carry)
		b.body++
	}
	if lo != cpu.PC {
		b.setReg(lo, rlo)
	}
	if hi != cpu.PC {
		b.setReg(hi, rhi)
	}
	if w.SetsFlags() {
		b.setFlag(cpu.N, b.op(OpLsr, rhi, C(31)))
		b.setFlag(cpu.Z, b.op(OpEqz, b.op(OpOr, rlo, rhi)))
	}
}

func (b *builder) countLeadingZeros(w isa.Word) {
	b.body += cpu.CyclesDataProcess
	if rd := w.Rd(); rd != cpu.PC {
		b.setReg(rd, b.op(OpClz, b.reg(w.Rm())))
	}
}

func (b *builder) saturatingArithmetic(w isa.Word) {
	b.body += cpu.CyclesDataProcess
	rm, rn := b.reg(w.Rm()), b.reg(w.Rn())
	op := w.Bits(22, 21)
	q := C(0)
	if op&2 != 0 {
		q = b.op(OpQAddSat, rn, rn)
		rn = b.op(OpQAdd, rn, rn)
	}
	var res, q2 Arg
	if op&1 == 0 {
		res, q2 = b.op(OpQAdd, rm, rn), b.op(OpQAddSat, rm, rn)
	} else {
		res, q2 = b.op(OpQSub, rm, rn), b.op(OpQSubSat, rm, rn)
	}
	b.setQ(b.op(OpOr, q, q2))
	if rd := w.Rd(); rd != cpu.PC {
		b.setReg(rd, res)
	}
}

// half returns the sign-extended top or bottom halfword of v.
func (b *builder) half(v Arg, top bool) Arg {
	if top {
		return b.op(OpAsr, v, C(16))
	}
	return b.op(OpSext16, v)
}

func (b *builder) signedMultiplyHalfword(w isa.Word) {
	b.body += cpu.CyclesDataProcess
	rm, rs := b.reg(w.Rm()), b.reg(w.Rs())
	x, y := w.Bit(5), w.Bit(6)
	rd := w.Rn()
	var res Arg
	switch w.Bits(22, 21) {
	case 0: // SMLAxy
		p := b.op(OpMul, b.half(rm, x), b.half(rs, y))
		acc := b.reg(w.Rd())
		res = b.op(OpAdd, p, acc)
		b.setQ(b.op(OpOverflow, p, acc, C(0)))
	case 1:
		hy := b.half(rs, y)
		p := b.op(OpOr, b.op(OpLsl, b.op(OpMulHiS, rm, hy), C(16)), b.op(OpLsr, b.op(OpMul, rm, hy), C(16)))
		if x { // SMULWy
			res = p
			break
		}
		// SMLAWy
		acc := b.reg(w.Rd())
		res = b.op(OpAdd, p, acc)
		b.setQ(b.op(OpOverflow, p, acc, C(0)))
	case 2: // SMLALxy
		b.body++
		lo, hi := w.Rd(), w.Rn()
		alo, ahi := b.reg(lo), b.reg(hi)
		p := b.op(OpMul, b.half(rm, x), b.half(rs, y))
		carry := b.op(OpCarry, alo, p, C(0))
		rlo := b.op(OpAdd, alo, p)
		rhi := b.op(OpAdc, ahi, b.op(OpAsr, p, C(31)), carry)
		if lo != cpu.PC {
			b.setReg(lo, rlo)
		}
		if hi != cpu.PC {
			b.setReg(hi, rhi)
		}
		return
	default: // SMULxy
		res = b.op(OpMul, b.half(rm, x), b.half(rs, y))
	}
	if rd != cpu.PC {
		b.setReg(rd, res)
	}
}
