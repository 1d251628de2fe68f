// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import "fmt"

// Variant is the architecture revision a core implements.
type Variant = byte

const (
	// VariantARMv4T is the ARM7TDMI class core: ARM and Thumb, no CP15.
	VariantARMv4T Variant = iota
	// VariantARMv5TE is the ARM946E-S class core: adds BLX, CLZ, the saturating and
	// signed halfword multiply extensions, LDRD/STRD and a CP15 system control coprocessor.
	VariantARMv5TE
)

// VariantName returns the architecture name of the given variant.
func VariantName(v Variant) string {
	switch v {
	case VariantARMv4T:
		return "ARMv4T"
	case VariantARMv5TE:
		return "ARMv5TE"
	}
	return fmt.Sprintf("%#x", v)
}

// Vector is the offset of an exception vector from the vector base.
type Vector = uint32

const (
	VectorReset             Vector = 0x00
	VectorUndefined         Vector = 0x04
	VectorSoftwareInterrupt Vector = 0x08
	VectorPrefetchAbort     Vector = 0x0c
	VectorDataAbort         Vector = 0x10
	VectorIRQ               Vector = 0x18
	VectorFIQ               Vector = 0x1c
)

// VectorName returns the conventional name of the exception at the given vector.
func VectorName(v Vector) string {
	switch v {
	case VectorReset:
		return "reset"
	case VectorUndefined:
		return "undefined"
	case VectorSoftwareInterrupt:
		return "swi"
	case VectorPrefetchAbort:
		return "prefetch_abort"
	case VectorDataAbort:
		return "data_abort"
	case VectorIRQ:
		return "irq"
	case VectorFIQ:
		return "fiq"
	}
	return fmt.Sprintf("%#x", v)
}

// Mode is the value of the CPSR mode bits (M4-M0).
type Mode = uint32

const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1b
	ModeSystem     Mode = 0x1f
)

// ModeName returns the assembler name of the given mode, ex. "svc".
func ModeName(m Mode) string {
	switch m {
	case ModeUser:
		return "usr"
	case ModeFIQ:
		return "fiq"
	case ModeIRQ:
		return "irq"
	case ModeSupervisor:
		return "svc"
	case ModeAbort:
		return "abt"
	case ModeUndefined:
		return "und"
	case ModeSystem:
		return "sys"
	}
	return fmt.Sprintf("%#x", m)
}

// Bus is the memory bus of one core. Each core owns its Bus value, so the bus
// implementation knows which core is accessing it.
//
// All addresses are core-relative. Every access succeeds: mapping, mirroring
// and open-bus behavior are the bus implementation's concern. Word and halfword
// addresses passed by the core are already aligned.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32

	Write8(addr uint32, v uint8)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)

	// Fetch16 and Fetch32 are the instruction fetch path, distinct from data
	// reads so buses can model separate timing or tightly coupled memories.
	Fetch16(addr uint32) uint16
	Fetch32(addr uint32) uint32
}

// Coprocessor is the optional system control coprocessor (CP15) interface. A
// Bus passed to a core with VariantARMv5TE may implement it; when it does not,
// MRC and MCR raise the undefined instruction exception.
//
// group is CRn, index is CRm and opcode is opcode_1<<3 | opcode_2.
type Coprocessor interface {
	CoprocessorRead(group, index, opcode uint32) uint32
	CoprocessorWrite(group, index, opcode, value uint32)
}
