// Package isa decodes ARM and Thumb instruction words. Every instruction is
// handled as a 32-bit ARM-layout Word: Thumb instructions are expanded to
// their ARM equivalent once, when the Decoder is built.
package isa

// Word is a 32-bit instruction word. Its fields overlap differently per
// format; the accessors below extract them by shift and mask.
type Word uint32

// CondAL and CondNV are the "always" and "never" (unconditional space on
// ARMv5TE) values of the condition field.
const (
	CondAL = 0xe
	CondNV = 0xf
)

// Cond returns bits 31-28.
func (w Word) Cond() uint32 { return uint32(w) >> 28 }

// Bits returns bits hi..lo inclusive, shifted down.
func (w Word) Bits(hi, lo uint) uint32 {
	return (uint32(w) >> lo) & (1<<(hi-lo+1) - 1)
}

// Bit returns true if bit n is set.
func (w Word) Bit(n uint) bool { return uint32(w)&(1<<n) != 0 }

// Rn returns bits 19-16.
func (w Word) Rn() int { return int(w.Bits(19, 16)) }

// Rd returns bits 15-12.
func (w Word) Rd() int { return int(w.Bits(15, 12)) }

// Rs returns bits 11-8.
func (w Word) Rs() int { return int(w.Bits(11, 8)) }

// Rm returns bits 3-0.
func (w Word) Rm() int { return int(w.Bits(3, 0)) }

// Opcode returns the data-processing opcode in bits 24-21.
func (w Word) Opcode() uint32 { return w.Bits(24, 21) }

// SetsFlags returns the S bit (bit 20).
func (w Word) SetsFlags() bool { return w.Bit(20) }

// Index returns the classifier table index: bits 27-20 followed by bits 7-4.
func (w Word) Index() int {
	return int((uint32(w)>>16)&0xff0 | (uint32(w)>>4)&0xf)
}

// BranchOffset returns the sign-extended 24-bit branch offset field, not yet scaled.
func (w Word) BranchOffset() uint32 {
	return uint32(int32(uint32(w)<<8) >> 8)
}

// HalfwordOffset returns the split 8-bit immediate of the halfword transfers.
func (w Word) HalfwordOffset() uint32 {
	return w.Bits(11, 8)<<4 | w.Bits(3, 0)
}

// Data-processing opcodes.
const (
	OpAND = iota
	OpEOR
	OpSUB
	OpRSB
	OpADD
	OpADC
	OpSBC
	OpRSC
	OpTST
	OpTEQ
	OpCMP
	OpCMN
	OpORR
	OpMOV
	OpBIC
	OpMVN
)

// IsTest returns true for TST, TEQ, CMP and CMN which only set flags.
func IsTest(op uint32) bool { return op >= OpTST && op <= OpCMN }

// IsLogical returns true for the opcodes whose carry comes from the shifter.
func IsLogical(op uint32) bool {
	switch op {
	case OpAND, OpEOR, OpTST, OpTEQ, OpORR, OpMOV, OpBIC, OpMVN:
		return true
	}
	return false
}
