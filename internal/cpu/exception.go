package cpu

import "github.com/armature-emu/armature/api"

// VectorMode returns the mode an exception is taken in.
func VectorMode(v api.Vector) api.Mode {
	switch v {
	case api.VectorUndefined:
		return api.ModeUndefined
	case api.VectorPrefetchAbort, api.VectorDataAbort:
		return api.ModeAbort
	case api.VectorIRQ:
		return api.ModeIRQ
	case api.VectorFIQ:
		return api.ModeFIQ
	}
	return api.ModeSupervisor
}

// ReturnAddress returns the value of LR on entry to the exception at v, where
// next is the address of the next instruction that would have executed. The
// handler's conventional return sequence (MOVS PC, LR or SUBS PC, LR, #4 or #8)
// resumes at next.
func ReturnAddress(v api.Vector, next uint32) uint32 {
	switch v {
	case api.VectorIRQ, api.VectorFIQ, api.VectorPrefetchAbort:
		return next + 4
	case api.VectorDataAbort:
		return next + 8
	}
	return next
}

// EnterException switches to the mode of the exception at v, saves the CPSR
// into the new mode's SPSR, sets LR to lr, masks IRQ (and FIQ on reset and FIQ
// entry), leaves Thumb state and points R[PC] at the vector. The pipeline is
// not refilled: callers Flush with R[PC].
func (s *State) EnterException(v api.Vector, lr uint32) {
	cpsr := s.CPSR
	s.SwitchMode(VectorMode(v))
	s.SPSR = cpsr
	s.R[LR] = lr
	s.CPSR = s.CPSR&^FlagT | FlagI
	if v == api.VectorFIQ || v == api.VectorReset {
		s.CPSR |= FlagF
	}
	if v == api.VectorIRQ || v == api.VectorFIQ {
		s.Halted = false
	}
	s.R[PC] = s.VectorBase + v
}

// Raise takes the exception at v between instructions: the instruction in
// Pipe[0] has not executed and is where the handler returns to.
func (s *State) Raise(v api.Vector, f Fetcher) {
	s.EnterException(v, ReturnAddress(v, s.CurrentAddress()))
	s.Flush(s.R[PC], f)
}

// InterruptMasked returns true if the given interrupt is disabled by the CPSR.
func (s *State) InterruptMasked(v api.Vector) bool {
	switch v {
	case api.VectorIRQ:
		return s.CPSR&FlagI != 0
	case api.VectorFIQ:
		return s.CPSR&FlagF != 0
	}
	return false
}

// IsWaitForInterrupt returns true for the CP15 writes that halt the core until
// the next interrupt: c7, c0, 4 and c7, c8, 2.
func IsWaitForInterrupt(group, index, opcode uint32) bool {
	return group == 7 && (index == 0 && opcode == 4 || index == 8 && opcode == 2)
}

// CoprocessorOpcode packs opcode_1 and opcode_2 of an MRC/MCR as passed to
// api.Coprocessor.
func CoprocessorOpcode(opc1, opc2 uint32) uint32 {
	return opc1<<3 | opc2
}
