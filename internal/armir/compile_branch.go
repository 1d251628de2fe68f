package armir

import (
	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

func (b *builder) branch(w isa.Word) {
	b.body += cpu.CyclesBranch
	off := w.BranchOffset()
	if b.thumb {
		b.writePC(C(b.pc() + off<<1))
		return
	}
	target := b.pc() + off<<2
	switch {
	case w.Cond() == isa.CondNV: // BLX imm
		b.setReg(cpu.LR, C(b.addr+4))
		target += w.Bits(24, 24) << 1
		b.setFlag(cpu.T, C(1))
	case w.Bit(24): // BL
		b.setReg(cpu.LR, C(b.addr+4))
	}
	b.writePC(C(target))
}

func (b *builder) branchExchange(w isa.Word) {
	b.body += cpu.CyclesBranch
	target := b.reg(w.Rm())
	if w.Bits(7, 4) == 3 { // BLX Rm
		if b.thumb {
			b.setReg(cpu.LR, C((b.addr+2)|1))
		} else {
			b.setReg(cpu.LR, C(b.addr+4))
		}
	}
	b.setFlag(cpu.T, target)
	b.writePC(target)
}

func (b *builder) thumbLongBranchPrefix(w isa.Word) {
	b.body += cpu.CyclesDataProcess
	off := uint32(int32(w.Bits(10, 0)<<21) >> 9)
	b.setReg(cpu.LR, C(b.pc()+off))
}

func (b *builder) thumbLongBranchSuffix(w isa.Word) {
	b.body += cpu.CyclesBranch
	target := b.op(OpAdd, b.reg(cpu.LR), C(w.Bits(10, 0)<<1))
	b.setReg(cpu.LR, C((b.addr+2)|1))
	if !w.Bit(12) { // BLX
		target = b.op(OpAnd, target, C(^uint32(3)))
		b.setFlag(cpu.T, C(0))
	}
	b.writePC(target)
}

func (b *builder) coprocessorRegisterTransfer(w isa.Word) {
	if !b.c.cfg.Coprocessor || w.Bits(11, 8) != 15 || !b.privileged() {
		b.exception(api.VectorUndefined)
		return
	}
	group, index := w.Bits(19, 16), w.Bits(3, 0)
	opcode := cpu.CoprocessorOpcode(w.Bits(23, 21), w.Bits(7, 5))
	aux := CoprocessorAux(group, index, opcode)
	rd := w.Rd()

	if w.Bit(20) { // MRC
		b.body += cpu.CyclesCoprocRead
		v := b.opAux(OpCoprocRead, aux)
		if rd == cpu.PC {
			for _, f := range []cpu.Flag{cpu.N, cpu.Z, cpu.C, cpu.V} {
				b.setFlag(f, b.op(OpLsr, v, C(f)))
			}
			return
		}
		b.setReg(rd, v)
		return
	}

	b.body += cpu.CyclesCoprocWrite
	v := b.reg(rd)
	if rd == cpu.PC {
		v = C(b.storedPC())
	}
	b.opAux(OpCoprocWrite, aux, v)
	if cpu.IsWaitForInterrupt(group, index, opcode) {
		b.terminate(Instr{Op: OpHalt, Args: [3]Arg{C(b.addr + b.width)}})
		return
	}
	// The write may remap memory.
	b.next()
}
