package cpu

// Cycle costs of the ARM7TDMI timing model. Every memory access is one cycle;
// the bus does not report wait states.
const (
	CyclesSkipped       = 1
	CyclesDataProcess   = 1
	CyclesRegisterShift = 1
	CyclesPCWrite       = 2
	CyclesLoad          = 3
	CyclesStore         = 2
	CyclesSwap          = 4
	CyclesBranch        = 3
	CyclesException     = 3
	CyclesPSR           = 1
	CyclesCoprocRead    = 3
	CyclesCoprocWrite   = 2
)

// MultiplyCycles returns m, the number of multiplier array cycles the
// ARM7TDMI spends on the multiplier rs. For signed multiplies the early
// termination also applies to leading one bits.
func MultiplyCycles(rs uint32, signed bool) uint32 {
	if signed && rs&0x80000000 != 0 {
		rs = ^rs
	}
	switch {
	case rs&0xffffff00 == 0:
		return 1
	case rs&0xffff0000 == 0:
		return 2
	case rs&0xff000000 == 0:
		return 3
	}
	return 4
}

// BlockTransferCycles returns the cost of an LDM (load) or STM with n registers.
func BlockTransferCycles(n uint32, load, pc bool) uint32 {
	if !load {
		return n + 1
	}
	if pc {
		return n + 4
	}
	return n + 2
}
