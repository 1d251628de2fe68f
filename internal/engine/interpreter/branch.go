package interpreter

import (
	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

func (it *Interpreter) branch(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesBranch
	off := w.BranchOffset()
	if s.Thumb() {
		it.writePC(s.R[cpu.PC] + off<<1)
		return
	}
	target := s.R[cpu.PC] + off<<2
	switch {
	case w.Cond() == isa.CondNV: // BLX imm
		s.R[cpu.LR] = it.addr + 4
		target += w.Bits(24, 24) << 1
		s.SetFlag(cpu.T, 1)
	case w.Bit(24): // BL
		s.R[cpu.LR] = it.addr + 4
	}
	it.writePC(target)
}

func (it *Interpreter) branchExchange(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesBranch
	target := s.R[w.Rm()]
	if w.Bits(7, 4) == 3 { // BLX Rm
		if s.Thumb() {
			s.R[cpu.LR] = (it.addr + 2) | 1
		} else {
			s.R[cpu.LR] = it.addr + 4
		}
	}
	it.setThumb(target)
	it.writePC(target)
}

// thumbLongBranchPrefix is the first half of the Thumb BL/BLX pair. It leaves
// the upper part of the target in LR.
func (it *Interpreter) thumbLongBranchPrefix(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesDataProcess
	off := uint32(int32(w.Bits(10, 0)<<21) >> 9)
	s.R[cpu.LR] = s.R[cpu.PC] + off
}

func (it *Interpreter) thumbLongBranchSuffix(w isa.Word) {
	s := it.state
	s.Cycles += cpu.CyclesBranch
	target := s.R[cpu.LR] + w.Bits(10, 0)<<1
	s.R[cpu.LR] = (it.addr + 2) | 1
	if !w.Bit(12) { // BLX
		target &^= 3
		s.SetFlag(cpu.T, 0)
	}
	it.writePC(target)
}

// coprocessorRegisterTransfer executes MRC and MCR. Only CP15 exists, and only
// privileged code can reach it.
func (it *Interpreter) coprocessorRegisterTransfer(w isa.Word) {
	s := it.state
	if it.cp == nil || w.Bits(11, 8) != 15 || !s.Privileged() {
		it.exception(api.VectorUndefined)
		return
	}
	group, index := w.Bits(19, 16), w.Bits(3, 0)
	opcode := cpu.CoprocessorOpcode(w.Bits(23, 21), w.Bits(7, 5))
	rd := w.Rd()

	if w.Bit(20) { // MRC
		s.Cycles += cpu.CyclesCoprocRead
		v := it.cp.CoprocessorRead(group, index, opcode)
		if rd == cpu.PC {
			s.CPSR = s.CPSR&0x0fffffff | v&0xf0000000
			return
		}
		s.R[rd] = v
		return
	}

	s.Cycles += cpu.CyclesCoprocWrite
	v := s.R[rd]
	if rd == cpu.PC {
		v = it.storedPC()
	}
	it.cp.CoprocessorWrite(group, index, opcode, v)
	if cpu.IsWaitForInterrupt(group, index, opcode) {
		s.Halted = true
	}
}
