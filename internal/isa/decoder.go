package isa

import "github.com/armature-emu/armature/api"

// Expanded is a Thumb instruction rewritten to the ARM layout.
type Expanded struct {
	Word   Word
	Format Format
}

// undefinedWord is the permanently undefined ARM encoding Thumb expands to
// when it has no equivalent.
const undefinedWord Word = 0xe7f000f0

// Decoder holds the dispatch tables of one core variant. Build it once with
// NewDecoder and share it by reference: it is immutable afterwards.
type Decoder struct {
	Variant api.Variant
	arm     [4096]Format
	thumb   [1 << 16]Expanded
}

// NewDecoder builds the ARM table by classifying every index and the Thumb
// table by expanding every 16-bit word.
func NewDecoder(variant api.Variant) *Decoder {
	d := &Decoder{Variant: variant}
	for i := range d.arm {
		w := Word(uint32(i&0xff0)<<16 | uint32(i&0xf)<<4)
		d.arm[i] = d.restrict(w, Classify(w))
	}
	for i := range d.thumb {
		d.thumb[i] = ExpandThumb(uint16(i), variant)
	}
	return d
}

// restrict maps the encodings the variant does not implement to FormatUndefined.
func (d *Decoder) restrict(w Word, f Format) Format {
	if d.Variant == api.VariantARMv5TE {
		return f
	}
	switch {
	case f.ARMv5TEOnly():
		return FormatUndefined
	case f == FormatBranchExchange && w.Bits(7, 4) == 0x3: // BLX Rm
		return FormatUndefined
	case f == FormatHalfwordTransfer && !w.Bit(20) && w.Bit(6): // LDRD, STRD
		return FormatUndefined
	}
	return f
}

// ARM returns the format of an ARM instruction word.
func (d *Decoder) ARM(w Word) Format {
	return d.arm[w.Index()]
}

// Thumb returns the ARM expansion of a Thumb instruction.
func (d *Decoder) Thumb(h uint16) Expanded {
	return d.thumb[h]
}

func arm(w uint32) Expanded {
	return Expanded{Word: Word(w), Format: Classify(Word(w))}
}

// ExpandThumb rewrites a Thumb instruction as the ARM instruction with the same
// effect when executed in Thumb state. The execution routines account for the
// differences of Thumb state: branch offsets are halfword-scaled, and
// immediate-form PC-relative operands are word-aligned.
func ExpandThumb(h uint16, variant api.Variant) Expanded {
	v := uint32(h)
	rd := v & 7
	rs := (v >> 3) & 7
	switch {
	case v>>11 == 0x3: // add/subtract
		rn := (v >> 6) & 7
		base := uint32(0xe0900000) // ADDS
		if v&(1<<9) != 0 {
			base = 0xe0500000 // SUBS
		}
		if v&(1<<10) != 0 {
			base |= 1 << 25
		}
		return arm(base | rs<<16 | rd<<12 | rn)
	case v>>13 == 0: // move shifted register
		return arm(0xe1b00000 | rd<<12 | ((v>>6)&0x1f)<<7 | ((v>>11)&3)<<5 | rs)
	case v>>13 == 1: // move/compare/add/subtract immediate
		rd := (v >> 8) & 7
		imm := v & 0xff
		switch (v >> 11) & 3 {
		case 0:
			return arm(0xe3b00000 | rd<<12 | imm)
		case 1:
			return arm(0xe3500000 | rd<<16 | imm)
		case 2:
			return arm(0xe2900000 | rd<<16 | rd<<12 | imm)
		}
		return arm(0xe2500000 | rd<<16 | rd<<12 | imm)
	case v>>10 == 0x10: // ALU operations
		return arm(thumbALU((v>>6)&0xf, rd, rs))
	case v>>10 == 0x11: // hi register operations, BX
		rd |= (v >> 4) & 8
		rs = (v >> 3) & 0xf
		switch (v >> 8) & 3 {
		case 0:
			return arm(0xe0800000 | rd<<16 | rd<<12 | rs)
		case 1:
			return arm(0xe1500000 | rd<<16 | rs)
		case 2:
			return arm(0xe1a00000 | rd<<12 | rs)
		}
		if v&(1<<7) != 0 && variant == api.VariantARMv5TE {
			return arm(0xe12fff30 | rs)
		}
		return arm(0xe12fff10 | rs)
	case v>>11 == 0x9: // PC-relative load
		return arm(0xe59f0000 | ((v>>8)&7)<<12 | (v&0xff)<<2)
	case v>>12 == 0x5 && v&(1<<9) == 0: // load/store with register offset
		l := (v >> 11) & 1
		b := (v >> 10) & 1
		return arm(0xe7800000 | b<<22 | l<<20 | rs<<16 | rd<<12 | (v>>6)&7)
	case v>>12 == 0x5: // load/store sign-extended byte/halfword
		var w uint32
		switch (v >> 10) & 3 {
		case 0:
			w = 0xe18000b0 // STRH
		case 1:
			w = 0xe19000d0 // LDRSB
		case 2:
			w = 0xe19000b0 // LDRH
		default:
			w = 0xe19000f0 // LDRSH
		}
		return arm(w | rs<<16 | rd<<12 | (v>>6)&7)
	case v>>13 == 0x3: // load/store with immediate offset
		b := (v >> 12) & 1
		l := (v >> 11) & 1
		off := (v >> 6) & 0x1f
		if b == 0 {
			off <<= 2
		}
		return arm(0xe5800000 | b<<22 | l<<20 | rs<<16 | rd<<12 | off)
	case v>>12 == 0x8: // load/store halfword
		off := ((v >> 6) & 0x1f) << 1
		return arm(0xe1c000b0 | ((v>>11)&1)<<20 | rs<<16 | rd<<12 | (off>>4)<<8 | off&0xf)
	case v>>12 == 0x9: // SP-relative load/store
		return arm(0xe58d0000 | ((v>>11)&1)<<20 | ((v>>8)&7)<<12 | (v&0xff)<<2)
	case v>>12 == 0xa: // load address
		rn := uint32(15)
		if v&(1<<11) != 0 {
			rn = 13
		}
		return arm(0xe2800f00 | rn<<16 | ((v>>8)&7)<<12 | v&0xff)
	case v>>8 == 0xb0: // add offset to stack pointer
		if v&(1<<7) != 0 {
			return arm(0xe24ddf00 | v&0x7f)
		}
		return arm(0xe28ddf00 | v&0x7f)
	case v>>12 == 0xb && (v>>9)&3 == 2: // push/pop
		list := v & 0xff
		if v&(1<<11) != 0 {
			return arm(0xe8bd0000 | list | ((v>>8)&1)<<15)
		}
		return arm(0xe92d0000 | list | ((v>>8)&1)<<14)
	case v>>12 == 0xc: // multiple load/store
		return arm(0xe8a00000 | ((v>>11)&1)<<20 | ((v>>8)&7)<<16 | v&0xff)
	case v>>8 == 0xdf: // software interrupt
		return arm(0xef000000 | v&0xff)
	case v>>12 == 0xd && (v>>8)&0xf != 0xe: // conditional branch
		off := uint32(int32(int8(v))) & 0xffffff
		return arm(((v>>8)&0xf)<<28 | 0x0a000000 | off)
	case v>>11 == 0x1c: // unconditional branch
		off := uint32(int32(v<<21)>>21) & 0xffffff
		return arm(0xea000000 | off)
	case v>>11 == 0x1e:
		return Expanded{Word: Word(0xe0000000 | v), Format: FormatThumbLongBranchPrefix}
	case v>>11 == 0x1f:
		return Expanded{Word: Word(0xe0000000 | v), Format: FormatThumbLongBranchSuffix}
	case v>>11 == 0x1d && v&1 == 0 && variant == api.VariantARMv5TE:
		return Expanded{Word: Word(0xe0000000 | v), Format: FormatThumbLongBranchSuffix}
	}
	return Expanded{Word: undefinedWord, Format: FormatUndefined}
}

// thumbALU expands the sixteen two-register ALU operations.
func thumbALU(op, rd, rs uint32) uint32 {
	switch op {
	case 0x0: // AND
		return 0xe0100000 | rd<<16 | rd<<12 | rs
	case 0x1: // EOR
		return 0xe0300000 | rd<<16 | rd<<12 | rs
	case 0x2: // LSL
		return 0xe1b00010 | rd<<12 | rs<<8 | rd
	case 0x3: // LSR
		return 0xe1b00030 | rd<<12 | rs<<8 | rd
	case 0x4: // ASR
		return 0xe1b00050 | rd<<12 | rs<<8 | rd
	case 0x5: // ADC
		return 0xe0b00000 | rd<<16 | rd<<12 | rs
	case 0x6: // SBC
		return 0xe0d00000 | rd<<16 | rd<<12 | rs
	case 0x7: // ROR
		return 0xe1b00070 | rd<<12 | rs<<8 | rd
	case 0x8: // TST
		return 0xe1100000 | rd<<16 | rs
	case 0x9: // NEG
		return 0xe2700000 | rs<<16 | rd<<12
	case 0xa: // CMP
		return 0xe1500000 | rd<<16 | rs
	case 0xb: // CMN
		return 0xe1700000 | rd<<16 | rs
	case 0xc: // ORR
		return 0xe1900000 | rd<<16 | rd<<12 | rs
	case 0xd: // MUL
		return 0xe0100090 | rd<<16 | rd<<8 | rs
	case 0xe: // BIC
		return 0xe1d00000 | rd<<16 | rd<<12 | rs
	}
	return 0xe1f00000 | rd<<12 | rs // MVN
}
