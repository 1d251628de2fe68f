package armir

import (
	"math/bits"

	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// base reads Rn as a base register. In Thumb state PC-relative bases see the
// word-aligned program counter.
func (b *builder) base(rn int) Arg {
	if rn == cpu.PC {
		if b.thumb {
			return C(b.pc() &^ 3)
		}
		return C(b.pc())
	}
	return b.reg(rn)
}

// literalAux returns the read Aux of a transfer based on rn.
func literalAux(rn int) uint32 {
	if rn == cpu.PC {
		return AuxLiteral
	}
	return 0
}

// readWord reads the word at addr rotated right by 8*(addr&3).
func (b *builder) readWord(addr Arg, aux uint32) Arg {
	v := b.opAux(OpRead32, aux, b.op(OpAnd, addr, C(^uint32(3))))
	return b.op(OpRor, v, b.op(OpLsl, b.op(OpAnd, addr, C(3)), C(3)))
}

// loadPC ends the block at a value loaded into R15, interworking on ARMv5TE.
func (b *builder) loadPC(v Arg) {
	if b.v5() {
		b.setFlag(cpu.T, v)
	}
	b.body += cpu.CyclesPCWrite
	b.writePC(v)
}

// deliver writes a loaded value to rd.
func (b *builder) deliver(rd int, v Arg) {
	if rd == cpu.PC {
		b.loadPC(v)
		return
	}
	b.setReg(rd, v)
}

func (b *builder) swap(w isa.Word) {
	b.body += cpu.CyclesSwap
	addr, src := b.reg(w.Rn()), b.reg(w.Rm())
	var old Arg
	if w.Bit(22) {
		old = b.op(OpRead8, addr)
		b.op(OpWrite8, addr, src)
	} else {
		old = b.readWord(addr, 0)
		b.op(OpWrite32, b.op(OpAnd, addr, C(^uint32(3))), src)
	}
	if rd := w.Rd(); rd != cpu.PC {
		b.setReg(rd, old)
	}
}

// transferAddress applies the offset of a single, halfword or doubleword
// transfer and performs the writeback.
func (b *builder) transferAddress(w isa.Word, offset Arg) Arg {
	rn := w.Rn()
	base := b.base(rn)
	var moved Arg
	if w.Bit(23) {
		moved = b.op(OpAdd, base, offset)
	} else {
		moved = b.op(OpSub, base, offset)
	}
	addr := base
	pre := w.Bit(24)
	if pre {
		addr = moved
	}
	if rn != cpu.PC && (!pre || w.Bit(21)) {
		b.setReg(rn, moved)
	}
	return addr
}

func (b *builder) singleDataTransfer(w isa.Word) {
	var offset Arg
	if w.Bit(25) {
		offset, _ = b.shiftImmediate(w.Bits(6, 5), b.reg(w.Rm()), w.Bits(11, 7), false)
	} else {
		offset = C(w.Bits(11, 0))
	}
	rd := w.Rd()
	var src Arg
	load := w.Bit(20)
	if !load {
		src = b.reg(rd)
		if rd == cpu.PC {
			src = C(b.storedPC())
		}
	}
	aux := literalAux(w.Rn())
	addr := b.transferAddress(w, offset)
	byteAccess := w.Bit(22)

	if !load {
		b.body += cpu.CyclesStore
		if byteAccess {
			b.op(OpWrite8, addr, src)
		} else {
			b.op(OpWrite32, b.op(OpAnd, addr, C(^uint32(3))), src)
		}
		return
	}

	b.body += cpu.CyclesLoad
	var v Arg
	if byteAccess {
		v = b.opAux(OpRead8, aux, addr)
	} else {
		v = b.readWord(addr, aux)
	}
	b.deliver(rd, v)
}

func (b *builder) halfwordTransfer(w isa.Word) {
	offset := C(w.HalfwordOffset())
	if !w.Bit(22) {
		offset = b.reg(w.Rm())
	}
	rd := w.Rd()
	load := w.Bit(20)
	sh := w.Bits(6, 5)

	if !load && sh >= 2 {
		b.doubleTransfer(w, offset, sh == 3)
		return
	}

	var src Arg
	if !load {
		src = b.reg(rd)
		if rd == cpu.PC {
			src = C(b.storedPC())
		}
	}
	aux := literalAux(w.Rn())
	addr := b.transferAddress(w, offset)
	if !load {
		b.body += cpu.CyclesStore
		b.op(OpWrite16, b.op(OpAnd, addr, C(^uint32(1))), src)
		return
	}

	b.body += cpu.CyclesLoad
	v4 := !b.v5()
	switch sh {
	case 1: // LDRH
		v := b.opAux(OpRead16, aux, b.op(OpAnd, addr, C(^uint32(1))))
		if v4 {
			v = b.op(OpRor, v, b.op(OpLsl, b.op(OpAnd, addr, C(1)), C(3)))
		}
		b.deliver(rd, v)
	case 2: // LDRSB
		b.deliver(rd, b.opAux(OpRead8S, aux, addr))
	default: // LDRSH
		signedHalf := func() {
			b.deliver(rd, b.opAux(OpRead16S, aux, b.op(OpAnd, addr, C(^uint32(1)))))
		}
		if !v4 {
			signedHalf()
			return
		}
		// ARMv4T loads a sign-extended byte from odd addresses.
		signedByte := func() {
			b.deliver(rd, b.opAux(OpRead8S, aux, addr))
		}
		if addr.Const {
			if addr.Value&1 != 0 {
				signedByte()
			} else {
				signedHalf()
			}
			return
		}
		b.ifElse(b.op(OpAnd, addr, C(1)), signedByte, signedHalf)
	}
}

// doubleTransfer compiles LDRD (store false) and STRD.
func (b *builder) doubleTransfer(w isa.Word, offset Arg, store bool) {
	rd := w.Rd() &^ 1
	var lo, hi Arg
	if store {
		lo, hi = b.reg(rd), b.reg(rd+1)
		if rd+1 == cpu.PC {
			hi = C(b.storedPC())
		}
	}
	aux := literalAux(w.Rn())
	addr := b.op(OpAnd, b.transferAddress(w, offset), C(^uint32(3)))
	addr2 := b.op(OpAdd, addr, C(4))
	if store {
		b.body += cpu.CyclesStore + 1
		b.op(OpWrite32, addr, lo)
		b.op(OpWrite32, addr2, hi)
		return
	}
	b.body += cpu.CyclesLoad + 1
	b.setReg(rd, b.opAux(OpRead32, aux, addr))
	b.deliver(rd+1, b.opAux(OpRead32, aux, addr2))
}

func (b *builder) blockTransfer(w isa.Word) {
	rn := w.Rn()
	list := w.Bits(15, 0)
	load, user := w.Bit(20), w.Bit(22)
	v5 := b.v5()

	n := uint32(bits.OnesCount32(list))
	span := 4 * n
	if list == 0 {
		span = 0x40
		if !v5 {
			list = 1 << cpu.PC
			n = 1
		}
	}

	base := b.reg(rn)
	// Offsets of the first transfer and of the writeback from the base.
	var first, wb uint32
	switch w.Bits(24, 23) {
	case 0: // DA
		first, wb = -span+4, -span
	case 1: // IA
		first, wb = 0, span
	case 2: // DB
		first, wb = -span, -span
	default: // IB
		first, wb = 4, span
	}
	at := func(off uint32) Arg {
		return b.op(OpAnd, b.op(OpAdd, base, C(off)), C(^uint32(3)))
	}
	writeback := func() {
		if w.Bit(21) && rn != cpu.PC {
			b.setReg(rn, b.op(OpAdd, base, C(wb)))
		}
	}
	pcInList := list&(1<<cpu.PC) != 0
	userBank := user && !(load && pcInList)

	if load {
		b.body += int(cpu.BlockTransferCycles(n, true, pcInList))
		writeback()
		off := first
		for i := 0; i < cpu.PC; i++ {
			if list&(1<<i) == 0 {
				continue
			}
			v := b.op(OpRead32, at(off))
			off += 4
			if userBank {
				b.opAux(OpStoreUserReg, uint32(i), v)
			} else {
				b.setReg(i, v)
			}
		}
		if pcInList {
			v := b.op(OpRead32, at(off))
			switch {
			case user:
				b.op(OpStoreCPSR, b.op(OpLoadSPSR))
			case v5:
				b.setFlag(cpu.T, v)
			}
			b.writePC(v)
		}
		return
	}

	b.body += int(cpu.BlockTransferCycles(n, false, false))
	lowest := bits.TrailingZeros32(list)
	off := first
	for i := 0; i <= cpu.PC; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		var v Arg
		switch {
		case i == cpu.PC:
			v = C(b.storedPC())
		case i == rn && w.Bit(21) && i != lowest:
			v = b.op(OpAdd, base, C(wb))
		case userBank:
			v = b.opAux(OpLoadUserReg, uint32(i))
		default:
			v = b.reg(i)
		}
		b.op(OpWrite32, at(off), v)
		off += 4
	}
	writeback()
}
