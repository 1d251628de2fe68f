package cpu

import (
	"strings"

	"github.com/armature-emu/armature/api"
)

// Flag is the bit position of a single-bit CPSR field.
type Flag = uint32

const (
	N Flag = 31
	Z Flag = 30
	C Flag = 29
	V Flag = 28
	// Q is the sticky saturation flag. It only exists on VariantARMv5TE.
	Q Flag = 27
	I Flag = 7
	F Flag = 6
	T Flag = 5
)

const (
	FlagN uint32 = 1 << N
	FlagZ uint32 = 1 << Z
	FlagC uint32 = 1 << C
	FlagV uint32 = 1 << V
	FlagQ uint32 = 1 << Q
	FlagI uint32 = 1 << I
	FlagF uint32 = 1 << F
	FlagT uint32 = 1 << T

	ModeMask uint32 = 0x1f
)

// FlagName returns the letter of the given flag.
func FlagName(f Flag) string {
	switch f {
	case N:
		return "N"
	case Z:
		return "Z"
	case C:
		return "C"
	case V:
		return "V"
	case Q:
		return "Q"
	case I:
		return "I"
	case F:
		return "F"
	case T:
		return "T"
	}
	return "?"
}

// PSRString renders the flags of a PSR with set flags upper case, followed by
// the mode name. ex. "NzCvq if t svc"
func PSRString(psr uint32) string {
	b := strings.Builder{}
	for _, f := range []Flag{N, Z, C, V, Q} {
		b.WriteString(flagLetter(psr, f))
	}
	b.WriteByte(' ')
	for _, f := range []Flag{I, F} {
		b.WriteString(flagLetter(psr, f))
	}
	b.WriteByte(' ')
	b.WriteString(flagLetter(psr, T))
	b.WriteByte(' ')
	b.WriteString(api.ModeName(psr & ModeMask))
	return b.String()
}

func flagLetter(psr uint32, f Flag) string {
	if psr&(1<<f) != 0 {
		return FlagName(f)
	}
	return strings.ToLower(FlagName(f))
}

// WritablePSRMask returns the PSR bits an MSR can change on the given variant.
// The T bit is never writable by MSR.
func WritablePSRMask(variant api.Variant) uint32 {
	if variant == api.VariantARMv5TE {
		return 0xf80000df
	}
	return 0xf00000df
}

// FieldMask expands the four-bit MSR field mask (c, x, s, f) to a byte mask.
func FieldMask(fields uint32) (mask uint32) {
	for i := uint32(0); i < 4; i++ {
		if fields&(1<<i) != 0 {
			mask |= 0xff << (8 * i)
		}
	}
	return
}

// WriteCPSR replaces the CPSR, switching register banks first when the mode
// bits change.
func (s *State) WriteCPSR(v uint32) {
	if s.Variant != api.VariantARMv5TE {
		v &^= FlagQ
	}
	s.SwitchMode(v & ModeMask)
	s.CPSR = v
}

// WritePSR performs the MSR write of v to the CPSR (spsr false) or SPSR under
// the given field mask, with the user mode and variant restrictions applied.
// It returns true if the mode bits of the CPSR changed.
func (s *State) WritePSR(spsr bool, fields, v uint32) (modeChanged bool) {
	mask := FieldMask(fields) & WritablePSRMask(s.Variant)
	if spsr {
		if s.HasSPSR() {
			s.SPSR = s.SPSR&^mask | v&mask
		}
		return false
	}
	if !s.Privileged() {
		mask &= 0xff000000
	}
	old := s.CPSR
	s.WriteCPSR(old&^mask | v&mask)
	return old&ModeMask != s.CPSR&ModeMask
}
