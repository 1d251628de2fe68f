package cpu

import "math/bits"

// ShiftKind is the barrel shifter operation, as encoded in bits 6-5.
type ShiftKind = uint32

const (
	LSL ShiftKind = iota
	LSR
	ASR
	ROR
)

// ShiftKindName returns the assembler name of the shift kind.
func ShiftKindName(k ShiftKind) string {
	switch k {
	case LSL:
		return "lsl"
	case LSR:
		return "lsr"
	case ASR:
		return "asr"
	}
	return "ror"
}

// Shift applies a register-specified shift: amount is the bottom byte of the
// shift register. An amount of zero leaves both value and carry untouched.
func Shift(kind ShiftKind, v, amount, carry uint32) (uint32, uint32) {
	amount &= 0xff
	if amount == 0 {
		return v, carry
	}
	switch kind {
	case LSL:
		switch {
		case amount < 32:
			return v << amount, (v >> (32 - amount)) & 1
		case amount == 32:
			return 0, v & 1
		}
		return 0, 0
	case LSR:
		switch {
		case amount < 32:
			return v >> amount, (v >> (amount - 1)) & 1
		case amount == 32:
			return 0, v >> 31
		}
		return 0, 0
	case ASR:
		if amount < 32 {
			return uint32(int32(v) >> amount), (v >> (amount - 1)) & 1
		}
		return uint32(int32(v) >> 31), v >> 31
	}
	r := bits.RotateLeft32(v, -int(amount&31))
	return r, r >> 31
}

// ShiftImmediate applies an immediate-specified shift where the five-bit
// amount 0 encodes LSR #32, ASR #32 and RRX for the respective kinds.
func ShiftImmediate(kind ShiftKind, v, imm5, carry uint32) (uint32, uint32) {
	if imm5 == 0 {
		switch kind {
		case LSR, ASR:
			return Shift(kind, v, 32, carry)
		case ROR:
			return RRX(v, carry)
		}
	}
	return Shift(kind, v, imm5, carry)
}

// RRX rotates v right by one through the carry.
func RRX(v, carry uint32) (uint32, uint32) {
	return v>>1 | carry<<31, v & 1
}

// RotatedImmediate decodes the 12-bit data-processing immediate: an 8-bit value
// rotated right by twice the 4-bit rotation. The carry is unchanged when the
// rotation is zero, otherwise it is bit 31 of the result.
func RotatedImmediate(imm12, carry uint32) (uint32, uint32) {
	rot := (imm12 >> 8) * 2
	v := bits.RotateLeft32(imm12&0xff, -int(rot))
	if rot == 0 {
		return v, carry
	}
	return v, v >> 31
}

// AddWithCarry returns a+b+cin with its carry out and signed overflow. cin
// must be 0 or 1. Subtraction a-b-!C is AddWithCarry(a, ^b, C).
//
// The carry is computed as "a > a+b or a+b > a+b+cin", which is the unsigned
// carry out of the 33-bit sum for every combination of operands and cin.
func AddWithCarry(a, b, cin uint32) (res, carry, overflow uint32) {
	t := a + b
	res = t + cin
	if a > t || t > res {
		carry = 1
	}
	overflow = ((a ^ res) & (b ^ res)) >> 31
	return
}

// SaturatingAdd returns the signed saturated a+b, and 1 if it saturated.
func SaturatingAdd(a, b uint32) (uint32, uint32) {
	r := a + b
	if ((a^r)&(b^r))>>31 != 0 {
		return saturate(a), 1
	}
	return r, 0
}

// SaturatingSub returns the signed saturated a-b, and 1 if it saturated.
func SaturatingSub(a, b uint32) (uint32, uint32) {
	r := a - b
	if ((a^b)&(a^r))>>31 != 0 {
		return saturate(a), 1
	}
	return r, 0
}

// saturate returns the bound an overflowing operation with first operand a
// clamps to: the overflow always has the sign of a.
func saturate(a uint32) uint32 {
	return 0x7fffffff + a>>31
}

// CountLeadingZeros returns the number of leading zero bits of v.
func CountLeadingZeros(v uint32) uint32 {
	return uint32(bits.LeadingZeros32(v))
}
