// Package cpu holds the architectural state of one ARM core: the register
// file, status registers, mode banks and the two-stage prefetch pipeline.
//
// The state is shared by the interpreter, the reference IR interpreter and
// the JIT. Native code reads and writes R, CPSR, SPSR and Cycles directly at
// their field offsets, so those fields must stay plain values.
package cpu

import (
	"fmt"
	"strings"

	"github.com/armature-emu/armature/api"
)

const (
	// SP is the index of the stack pointer.
	SP = 13
	// LR is the index of the link register.
	LR = 14
	// PC is the index of the program counter.
	PC = 15
)

// Fetcher is the instruction fetch half of api.Bus.
type Fetcher interface {
	Fetch16(addr uint32) uint16
	Fetch32(addr uint32) uint32
}

// State is the register file and pipeline shadow of one core.
type State struct {
	// R is the live register file of the current mode. R[PC] always holds the
	// address two instructions ahead of Pipe[0].
	R [16]uint32
	// CPSR is the current program status register.
	CPSR uint32
	// SPSR is the saved program status register of the current mode. It has no
	// meaning in user and system modes.
	SPSR uint32
	// Cycles is the running guest cycle count.
	Cycles uint64

	// Pipe holds the two prefetched instructions. Pipe[0] executes next and sits
	// at R[PC]-2w, Pipe[1] at R[PC]-w.
	Pipe [2]uint32

	// Halted is set by the wait-for-interrupt operation and cleared by IRQ/FIQ entry.
	Halted bool

	Variant api.Variant
	// VectorBase is 0 or 0xffff0000 (high vectors).
	VectorBase uint32

	bankSP, bankLR, bankSPSR [numBanks]uint32
	// fiqHigh holds r8-r12 of FIQ mode while another mode is active, userHigh
	// holds r8-r12 of every other mode while FIQ mode is active.
	fiqHigh, userHigh [5]uint32
}

// NewState returns the state of a core that has just been reset.
func NewState(variant api.Variant, vectorBase uint32) *State {
	s := &State{Variant: variant, VectorBase: vectorBase}
	s.Reset()
	return s
}

// Reset puts the core into supervisor mode with interrupts disabled, ARM state
// and every register zeroed. The pipeline is left empty: call Flush with the
// reset vector (or any entry point) before executing.
func (s *State) Reset() {
	*s = State{Variant: s.Variant, VectorBase: s.VectorBase}
	s.CPSR = api.ModeSupervisor | FlagI | FlagF
	s.R[PC] = s.VectorBase + api.VectorReset
}

// Mode returns the current mode bits.
func (s *State) Mode() api.Mode {
	return s.CPSR & ModeMask
}

// Thumb returns true if the core executes the 16-bit encoding.
func (s *State) Thumb() bool {
	return s.CPSR&FlagT != 0
}

// Width returns the width in bytes of an instruction in the current state.
func (s *State) Width() uint32 {
	if s.Thumb() {
		return 2
	}
	return 4
}

// Privileged returns true in every mode except user mode.
func (s *State) Privileged() bool {
	return s.Mode() != api.ModeUser
}

// HasSPSR returns true if the current mode has a saved program status register.
func (s *State) HasSPSR() bool {
	return bankOf(s.Mode()) != bankUser
}

// Flag returns the given CPSR flag as 0 or 1.
func (s *State) Flag(f Flag) uint32 {
	return (s.CPSR >> f) & 1
}

// SetFlag sets the given CPSR flag to the low bit of v.
func (s *State) SetFlag(f Flag, v uint32) {
	s.CPSR = s.CPSR&^(1<<f) | (v&1)<<f
}

// SetNZ sets N and Z from the given result.
func (s *State) SetNZ(res uint32) {
	s.CPSR &^= FlagN | FlagZ
	s.CPSR |= res & FlagN
	if res == 0 {
		s.CPSR |= FlagZ
	}
}

// Condition evaluates the condition field of an instruction against the
// current flags. The "never" condition 0xf evaluates to false: callers handle
// its per-variant meaning.
func (s *State) Condition(cond uint32) bool {
	return ConditionHolds(cond, s.CPSR)
}

// ConditionHolds evaluates cond against the flags held in psr.
func ConditionHolds(cond, psr uint32) bool {
	n := psr&FlagN != 0
	z := psr&FlagZ != 0
	c := psr&FlagC != 0
	v := psr&FlagV != 0
	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS
		return c
	case 0x3: // CC
		return !c
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return c && !z
	case 0x9: // LS
		return !c || z
	case 0xa: // GE
		return n == v
	case 0xb: // LT
		return n != v
	case 0xc: // GT
		return !z && n == v
	case 0xd: // LE
		return z || n != v
	case 0xe: // AL
		return true
	}
	return false
}

// CurrentAddress returns the address of the instruction in Pipe[0].
func (s *State) CurrentAddress() uint32 {
	return s.R[PC] - 2*s.Width()
}

// String returns the register file and status flags in a table.
func (s *State) String() string {
	b := strings.Builder{}
	for i := 0; i < 16; i++ {
		if i > 0 && i%4 == 0 {
			b.WriteString("\n")
		} else if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(fmt.Sprintf("%-3s: %08x", RegisterName(i), s.R[i]))
	}
	b.WriteString(fmt.Sprintf("\ncpsr: %08x [%s]", s.CPSR, PSRString(s.CPSR)))
	if s.HasSPSR() {
		b.WriteString(fmt.Sprintf("  spsr: %08x [%s]", s.SPSR, PSRString(s.SPSR)))
	}
	b.WriteString(fmt.Sprintf("\ncycles: %d", s.Cycles))
	if s.Halted {
		b.WriteString(" (halted)")
	}
	return b.String()
}

// RegisterName returns the assembler name of register i.
func RegisterName(i int) string {
	switch i {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("r%d", i)
}
