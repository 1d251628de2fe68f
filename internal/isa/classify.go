package isa

// Classify returns the format of an ARM-layout instruction word. It only
// looks at bits 27-20 and 7-4, the same bits Decoder indexes its table with.
//
// The cases are tested in the architecture's decode priority. Several
// patterns are subsets of later ones (a multiply is a data-processing
// encoding with bits 7-4 = 1001), so the order is significant.
func Classify(w Word) Format {
	op := w.Bits(27, 20)
	lo := w.Bits(7, 4)
	switch {
	case op&0xf0 == 0xf0:
		return FormatSoftwareInterrupt
	case op&0xf0 == 0xe0 && lo&1 == 1:
		return FormatCoprocessorRegisterTransfer
	case op&0xf0 == 0xe0:
		return FormatCoprocessorDataOperation
	case op&0xe0 == 0xc0:
		return FormatCoprocessorDataTransfer
	case op&0xe0 == 0xa0:
		return FormatBranch
	case op&0xe0 == 0x80:
		return FormatBlockTransfer
	case op&0xe0 == 0x60 && lo&1 == 1:
		return FormatUndefined
	case op&0xc0 == 0x40:
		return FormatSingleDataTransfer
	case op == 0x12 && (lo == 0x1 || lo == 0x3):
		return FormatBranchExchange
	case op == 0x16 && lo == 0x1:
		return FormatCountLeadingZeros
	case op&0xf9 == 0x10 && lo == 0x5:
		return FormatSaturatingArithmetic
	case op&0xf9 == 0x10 && lo&0x9 == 0x8:
		return FormatSignedMultiplyHalfword
	case op&0xfb == 0x10 && lo == 0x9:
		return FormatSwap
	case op&0xfc == 0x00 && lo == 0x9:
		return FormatMultiply
	case op&0xf8 == 0x08 && lo == 0x9:
		return FormatMultiplyLong
	case op&0xe0 == 0x00 && lo&0x9 == 0x9 && lo != 0x9:
		return FormatHalfwordTransfer
	case op&0xfb == 0x10 && lo == 0x0, op&0xfb == 0x12 && lo == 0x0, op&0xfb == 0x32:
		return FormatPSRTransfer
	case op&0xf9 == 0x10, op&0xfb == 0x30, op&0xe0 == 0x00 && lo == 0x9:
		// The rest of the miscellaneous space (BKPT, BXJ, ...), MOVW/MOVT and the
		// unallocated multiply encodings.
		return FormatUndefined
	case op&0xc0 == 0x00:
		return FormatDataProcessing
	}
	return FormatUndefined
}
