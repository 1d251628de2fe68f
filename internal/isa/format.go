package isa

// Format is the instruction class of a Word.
type Format byte

const (
	FormatUndefined Format = iota
	FormatDataProcessing
	FormatPSRTransfer
	FormatMultiply
	FormatMultiplyLong
	FormatSwap
	FormatBranchExchange
	FormatHalfwordTransfer
	FormatSingleDataTransfer
	FormatBlockTransfer
	FormatBranch
	FormatCoprocessorDataTransfer
	FormatCoprocessorDataOperation
	FormatCoprocessorRegisterTransfer
	FormatSoftwareInterrupt
	FormatCountLeadingZeros
	FormatSaturatingArithmetic
	FormatSignedMultiplyHalfword
	// FormatThumbLongBranchPrefix is the first half of the Thumb BL pair.
	FormatThumbLongBranchPrefix
	// FormatThumbLongBranchSuffix is the second half of the Thumb BL or BLX pair.
	FormatThumbLongBranchSuffix

	formatCount
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "Undefined"
	case FormatDataProcessing:
		return "DataProcessing"
	case FormatPSRTransfer:
		return "PSRTransfer"
	case FormatMultiply:
		return "Multiply"
	case FormatMultiplyLong:
		return "MultiplyLong"
	case FormatSwap:
		return "Swap"
	case FormatBranchExchange:
		return "BranchExchange"
	case FormatHalfwordTransfer:
		return "HalfwordTransfer"
	case FormatSingleDataTransfer:
		return "SingleDataTransfer"
	case FormatBlockTransfer:
		return "BlockTransfer"
	case FormatBranch:
		return "Branch"
	case FormatCoprocessorDataTransfer:
		return "CoprocessorDataTransfer"
	case FormatCoprocessorDataOperation:
		return "CoprocessorDataOperation"
	case FormatCoprocessorRegisterTransfer:
		return "CoprocessorRegisterTransfer"
	case FormatSoftwareInterrupt:
		return "SoftwareInterrupt"
	case FormatCountLeadingZeros:
		return "CountLeadingZeros"
	case FormatSaturatingArithmetic:
		return "SaturatingArithmetic"
	case FormatSignedMultiplyHalfword:
		return "SignedMultiplyHalfword"
	case FormatThumbLongBranchPrefix:
		return "ThumbLongBranchPrefix"
	case FormatThumbLongBranchSuffix:
		return "ThumbLongBranchSuffix"
	}
	return "Unknown"
}

// ARMv5TEOnly returns true for the formats an ARMv4T core decodes as undefined.
func (f Format) ARMv5TEOnly() bool {
	switch f {
	case FormatCountLeadingZeros, FormatSaturatingArithmetic, FormatSignedMultiplyHalfword:
		return true
	}
	return false
}
