package interpreter

import (
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// shifterOperand returns the second operand of a data-processing instruction
// and the shifter carry out. regShift is true for register-specified shifts,
// during which PC reads one word further ahead.
func (it *Interpreter) shifterOperand(w isa.Word) (op2, carry uint32, regShift bool) {
	s := it.state
	c := s.Flag(cpu.C)
	switch {
	case w.Bit(25):
		op2, carry = cpu.RotatedImmediate(w.Bits(11, 0), c)
	case w.Bit(4):
		rm := s.R[w.Rm()]
		if w.Rm() == cpu.PC {
			rm += 4
		}
		op2, carry = cpu.Shift(w.Bits(6, 5), rm, s.R[w.Rs()], c)
		regShift = true
	default:
		op2, carry = cpu.ShiftImmediate(w.Bits(6, 5), s.R[w.Rm()], w.Bits(11, 7), c)
	}
	return
}

func (it *Interpreter) dataProcessing(w isa.Word) {
	s := it.state
	op2, sc, regShift := it.shifterOperand(w)
	rn := s.R[w.Rn()]
	if w.Rn() == cpu.PC {
		if regShift {
			rn += 4
		} else if w.Bit(25) && s.Thumb() {
			rn &^= 3
		}
	}
	s.Cycles += cpu.CyclesDataProcess
	if regShift {
		s.Cycles += cpu.CyclesRegisterShift
	}

	op := w.Opcode()
	res, c, v := uint32(0), sc, s.Flag(cpu.V)
	switch op {
	case isa.OpAND, isa.OpTST:
		res = rn & op2
	case isa.OpEOR, isa.OpTEQ:
		res = rn ^ op2
	case isa.OpSUB, isa.OpCMP:
		res, c, v = cpu.AddWithCarry(rn, ^op2, 1)
	case isa.OpRSB:
		res, c, v = cpu.AddWithCarry(op2, ^rn, 1)
	case isa.OpADD, isa.OpCMN:
		res, c, v = cpu.AddWithCarry(rn, op2, 0)
	case isa.OpADC:
		res, c, v = cpu.AddWithCarry(rn, op2, s.Flag(cpu.C))
	case isa.OpSBC:
		res, c, v = cpu.AddWithCarry(rn, ^op2, s.Flag(cpu.C))
	case isa.OpRSC:
		res, c, v = cpu.AddWithCarry(op2, ^rn, s.Flag(cpu.C))
	case isa.OpORR:
		res = rn | op2
	case isa.OpMOV:
		res = op2
	case isa.OpBIC:
		res = rn &^ op2
	case isa.OpMVN:
		res = ^op2
	}

	rd := w.Rd()
	if rd == cpu.PC && !isa.IsTest(op) {
		it.writePC(res)
		s.Cycles += cpu.CyclesPCWrite
		if w.SetsFlags() && s.HasSPSR() {
			// Exception return.
			s.WriteCPSR(s.SPSR)
			return
		}
	} else if !isa.IsTest(op) {
		s.R[rd] = res
	}
	if w.SetsFlags() {
		s.SetNZ(res)
		s.SetFlag(cpu.C, c)
		s.SetFlag(cpu.V, v)
	}
}

func (it *Interpreter) psrTransfer(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesPSR
	spsr := w.Bit(22)
	if !w.Bit(21) {
		v := s.CPSR
		if spsr {
			v = s.SPSR
		}
		if w.Rd() != cpu.PC {
			s.R[w.Rd()] = v
		}
		return
	}
	var v uint32
	if w.Bit(25) {
		v, _ = cpu.RotatedImmediate(w.Bits(11, 0), 0)
	} else {
		v = s.R[w.Rm()]
	}
	s.WritePSR(spsr, w.Bits(19, 16), v)
}

func (it *Interpreter) multiply(w isa.Word) {
	s := it.state
	rs := s.R[w.Rs()]
	res := s.R[w.Rm()] * rs
	s.Cycles += 1 + uint64(cpu.MultiplyCycles(rs, true))
	if w.Bit(21) {
		res += s.R[w.Rd()]
		s.Cycles++
	}
	if rd := w.Rn(); rd != cpu.PC {
		s.R[rd] = res
	}
	if w.SetsFlags() {
		s.SetNZ(res)
	}
}

func (it *Interpreter) multiplyLong(w isa.Word) {
	s := it.state
	rm, rs := s.R[w.Rm()], s.R[w.Rs()]
	signed := w.Bit(22)
	lo, hi := w.Rd(), w.Rn()
	var r uint64
	if signed {
		r = uint64(int64(int32(rm)) * int64(int32(rs)))
	} else {
		r = uint64(rm) * uint64(rs)
	}
	s.Cycles += 2 + uint64(cpu.MultiplyCycles(rs, signed))
	if w.Bit(21) {
		r += uint64(s.R[hi])<<32 | uint64(s.R[lo])
		s.Cycles++
	}
	if lo != cpu.PC {
		s.R[lo] = uint32(r)
	}
	if hi != cpu.PC {
		s.R[hi] = uint32(r >> 32)
	}
	if w.SetsFlags() {
		s.SetFlag(cpu.N, uint32(r>>63))
		z := uint32(0)
		if r == 0 {
			z = 1
		}
		s.SetFlag(cpu.Z, z)
	}
}

func (it *Interpreter) countLeadingZeros(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesDataProcess
	if rd := w.Rd(); rd != cpu.PC {
		s.R[rd] = cpu.CountLeadingZeros(s.R[w.Rm()])
	}
}

func (it *Interpreter) saturatingArithmetic(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesDataProcess
	rm, rn := s.R[w.Rm()], s.R[w.Rn()]
	op := w.Bits(22, 21)
	var q, q2, res uint32
	if op&2 != 0 {
		rn, q = cpu.SaturatingAdd(rn, rn)
	}
	if op&1 == 0 {
		res, q2 = cpu.SaturatingAdd(rm, rn)
	} else {
		res, q2 = cpu.SaturatingSub(rm, rn)
	}
	if q|q2 != 0 {
		s.SetFlag(cpu.Q, 1)
	}
	if rd := w.Rd(); rd != cpu.PC {
		s.R[rd] = res
	}
}

// halfOf returns the signed top (top true) or bottom halfword of v.
func halfOf(v uint32, top bool) int32 {
	if top {
		return int32(v) >> 16
	}
	return int32(int16(v))
}

func (it *Interpreter) signedMultiplyHalfword(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesDataProcess
	rm, rs := s.R[w.Rm()], s.R[w.Rs()]
	x, y := w.Bit(5), w.Bit(6)
	rd, acc := w.Rn(), s.R[w.Rd()]
	var res uint32
	switch w.Bits(22, 21) {
	case 0: // SMLAxy
		p := uint32(halfOf(rm, x) * halfOf(rs, y))
		res = p + acc
		if ((p^res)&(acc^res))>>31 != 0 {
			s.SetFlag(cpu.Q, 1)
		}
	case 1:
		p := uint32((int64(int32(rm)) * int64(halfOf(rs, y))) >> 16)
		if x { // SMULWy
			res = p
			break
		}
		// SMLAWy
		res = p + acc
		if ((p^res)&(acc^res))>>31 != 0 {
			s.SetFlag(cpu.Q, 1)
		}
	case 2: // SMLALxy
		s.Cycles++
		lo, hi := w.Rd(), w.Rn()
		r := uint64(s.R[hi])<<32 | uint64(s.R[lo])
		r += uint64(int64(halfOf(rm, x) * halfOf(rs, y)))
		if lo != cpu.PC {
			s.R[lo] = uint32(r)
		}
		if hi != cpu.PC {
			s.R[hi] = uint32(r >> 32)
		}
		return
	default: // SMULxy
		res = uint32(halfOf(rm, x) * halfOf(rs, y))
	}
	if rd != cpu.PC {
		s.R[rd] = res
	}
}
