package interpreter

import (
	"math/bits"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// storedPC is the value STR, STRH, STM and MCR store for R15: the address of
// the instruction plus twelve.
func (it *Interpreter) storedPC() uint32 { return it.addr + 12 }

// base reads Rn as a base register. In Thumb state PC-relative bases see the
// word-aligned program counter.
func (it *Interpreter) base(rn int) uint32 {
	v := it.state.R[rn]
	if rn == cpu.PC && it.state.Thumb() {
		v &^= 3
	}
	return v
}

// readWord reads the word at addr rotated right by 8*(addr&3), the way LDR
// and SWP see unaligned words.
func (it *Interpreter) readWord(addr uint32) uint32 {
	return bits.RotateLeft32(it.bus.Read32(addr&^3), -int(8*(addr&3)))
}

// loadPC branches to a value loaded into R15. ARMv5TE interworks on bit 0.
func (it *Interpreter) loadPC(v uint32) {
	if it.dec.Variant == api.VariantARMv5TE {
		it.setThumb(v)
	}
	it.writePC(v)
	it.state.Cycles += cpu.CyclesPCWrite
}

func (it *Interpreter) swap(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesSwap
	addr, src := s.R[w.Rn()], s.R[w.Rm()]
	var old uint32
	if w.Bit(22) {
		old = uint32(it.bus.Read8(addr))
		it.bus.Write8(addr, uint8(src))
	} else {
		old = it.readWord(addr)
		it.bus.Write32(addr&^3, src)
	}
	if rd := w.Rd(); rd != cpu.PC {
		s.R[rd] = old
	}
}

// transferAddress applies the offset of a single or halfword transfer and
// performs the writeback. It returns the address accessed.
func (it *Interpreter) transferAddress(w isa.Word, offset uint32) uint32 {
	s := it.state
	rn := w.Rn()
	b := it.base(rn)
	if !w.Bit(23) {
		offset = -offset
	}
	addr := b
	pre := w.Bit(24)
	if pre {
		addr += offset
	}
	if rn != cpu.PC && (!pre || w.Bit(21)) {
		s.R[rn] = b + offset
	}
	return addr
}

func (it *Interpreter) singleDataTransfer(w isa.Word) {
	s := it.state
	var offset uint32
	if w.Bit(25) {
		offset, _ = cpu.ShiftImmediate(w.Bits(6, 5), s.R[w.Rm()], w.Bits(11, 7), s.Flag(cpu.C))
	} else {
		offset = w.Bits(11, 0)
	}
	rd := w.Rd()
	src := s.R[rd]
	if rd == cpu.PC {
		src = it.storedPC()
	}
	addr := it.transferAddress(w, offset)
	byteAccess := w.Bit(22)

	if !w.Bit(20) {
		s.Cycles += cpu.CyclesStore
		if byteAccess {
			it.bus.Write8(addr, uint8(src))
		} else {
			it.bus.Write32(addr&^3, src)
		}
		return
	}

	s.Cycles += cpu.CyclesLoad
	var v uint32
	if byteAccess {
		v = uint32(it.bus.Read8(addr))
	} else {
		v = it.readWord(addr)
	}
	if rd == cpu.PC {
		it.loadPC(v)
		return
	}
	s.R[rd] = v
}

func (it *Interpreter) halfwordTransfer(w isa.Word) {
	s := it.state
	offset := w.HalfwordOffset()
	if !w.Bit(22) {
		offset = s.R[w.Rm()]
	}
	rd := w.Rd()
	src := s.R[rd]
	if rd == cpu.PC {
		src = it.storedPC()
	}
	load := w.Bit(20)
	sh := w.Bits(6, 5)

	// LDRD and STRD live in the signed encodings with L clear.
	if !load && sh >= 2 {
		it.doubleTransfer(w, offset, sh == 3)
		return
	}

	addr := it.transferAddress(w, offset)
	if !load {
		s.Cycles += cpu.CyclesStore
		it.bus.Write16(addr&^1, uint16(src))
		return
	}

	s.Cycles += cpu.CyclesLoad
	v4 := it.dec.Variant != api.VariantARMv5TE
	var v uint32
	switch sh {
	case 1: // LDRH
		v = uint32(it.bus.Read16(addr &^ 1))
		if v4 && addr&1 != 0 {
			v = bits.RotateLeft32(v, -8)
		}
	case 2: // LDRSB
		v = uint32(int8(it.bus.Read8(addr)))
	default: // LDRSH
		if v4 && addr&1 != 0 {
			v = uint32(int8(it.bus.Read8(addr)))
		} else {
			v = uint32(int16(it.bus.Read16(addr &^ 1)))
		}
	}
	if rd == cpu.PC {
		it.loadPC(v)
		return
	}
	s.R[rd] = v
}

// doubleTransfer executes LDRD (store false) or STRD on the register pair
// Rd, Rd+1.
func (it *Interpreter) doubleTransfer(w isa.Word, offset uint32, store bool) {
	s := it.state
	rd := w.Rd() &^ 1
	lo, hi := s.R[rd], s.R[rd+1]
	if rd+1 == cpu.PC {
		hi = it.storedPC()
	}
	addr := it.transferAddress(w, offset) &^ 3
	if store {
		s.Cycles += cpu.CyclesStore + 1
		it.bus.Write32(addr, lo)
		it.bus.Write32(addr+4, hi)
		return
	}
	s.Cycles += cpu.CyclesLoad + 1
	s.R[rd] = it.bus.Read32(addr)
	v := it.bus.Read32(addr + 4)
	if rd+1 == cpu.PC {
		it.loadPC(v)
		return
	}
	s.R[rd+1] = v
}

func (it *Interpreter) blockTransfer(w isa.Word) {
	s := it.state
	rn := w.Rn()
	list := w.Bits(15, 0)
	load, user := w.Bit(20), w.Bit(22)
	v5 := it.dec.Variant == api.VariantARMv5TE

	n := uint32(bits.OnesCount32(list))
	span := 4 * n
	if list == 0 {
		span = 0x40
		if !v5 {
			list = 1 << cpu.PC
			n = 1
		}
	}

	b := s.R[rn]
	var addr, wb uint32
	switch w.Bits(24, 23) {
	case 0: // DA
		addr, wb = b-span+4, b-span
	case 1: // IA
		addr, wb = b, b+span
	case 2: // DB
		addr, wb = b-span, b-span
	default: // IB
		addr, wb = b+4, b+span
	}
	pcInList := list&(1<<cpu.PC) != 0
	// With S set and PC absent, the transfer uses the user bank.
	userBank := user && !(load && pcInList)

	if load {
		s.Cycles += uint64(cpu.BlockTransferCycles(n, true, pcInList))
		if w.Bit(21) && rn != cpu.PC {
			s.R[rn] = wb
		}
		for i := 0; i < cpu.PC; i++ {
			if list&(1<<i) == 0 {
				continue
			}
			v := it.bus.Read32(addr &^ 3)
			addr += 4
			if userBank {
				s.SetUserReg(i, v)
			} else {
				s.R[i] = v
			}
		}
		if pcInList {
			v := it.bus.Read32(addr &^ 3)
			if user {
				it.writePC(v)
				s.WriteCPSR(s.SPSR)
			} else if v5 {
				it.setThumb(v)
				it.writePC(v)
			} else {
				it.writePC(v)
			}
		}
		return
	}

	s.Cycles += uint64(cpu.BlockTransferCycles(n, false, false))
	lowest := bits.TrailingZeros32(list)
	for i := 0; i <= cpu.PC; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		var v uint32
		switch {
		case i == cpu.PC:
			v = it.storedPC()
		case i == rn && w.Bit(21) && i != lowest:
			v = wb
		case userBank:
			v = s.UserReg(i)
		default:
			v = s.R[i]
		}
		it.bus.Write32(addr&^3, v)
		addr += 4
	}
	if w.Bit(21) && rn != cpu.PC {
		s.R[rn] = wb
	}
}
