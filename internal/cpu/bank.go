package cpu

import "github.com/armature-emu/armature/api"

const (
	bankUser = iota
	bankFIQ
	bankIRQ
	bankSupervisor
	bankAbort
	bankUndefined
	numBanks
)

// bankOf returns the register bank of the given mode. Reserved mode bit
// patterns use the user bank.
func bankOf(m api.Mode) int {
	switch m {
	case api.ModeFIQ:
		return bankFIQ
	case api.ModeIRQ:
		return bankIRQ
	case api.ModeSupervisor:
		return bankSupervisor
	case api.ModeAbort:
		return bankAbort
	case api.ModeUndefined:
		return bankUndefined
	}
	return bankUser
}

// SwitchMode changes the mode bits of the CPSR, saving the live SP, LR and
// SPSR into the bank of the previous mode and loading those of the new mode.
// Entering or leaving FIQ mode also swaps r8-r12. The rest of the CPSR and the
// pipeline are not touched.
func (s *State) SwitchMode(m api.Mode) {
	from, to := bankOf(s.Mode()), bankOf(m)
	s.CPSR = s.CPSR&^ModeMask | m&ModeMask
	if from == to {
		return
	}
	s.bankSP[from], s.bankLR[from], s.bankSPSR[from] = s.R[SP], s.R[LR], s.SPSR
	if from == bankFIQ {
		copy(s.fiqHigh[:], s.R[8:13])
		copy(s.R[8:13], s.userHigh[:])
	} else if to == bankFIQ {
		copy(s.userHigh[:], s.R[8:13])
		copy(s.R[8:13], s.fiqHigh[:])
	}
	s.R[SP], s.R[LR], s.SPSR = s.bankSP[to], s.bankLR[to], s.bankSPSR[to]
}

// UserReg reads register i of the user bank, regardless of the current mode.
// This is the view of LDM/STM with the S bit and without PC in the list.
func (s *State) UserReg(i int) uint32 {
	switch cur := bankOf(s.Mode()); {
	case i >= 8 && i <= 12 && cur == bankFIQ:
		return s.userHigh[i-8]
	case (i == SP || i == LR) && cur != bankUser:
		if i == SP {
			return s.bankSP[bankUser]
		}
		return s.bankLR[bankUser]
	}
	return s.R[i]
}

// SetUserReg writes register i of the user bank, regardless of the current mode.
func (s *State) SetUserReg(i int, v uint32) {
	switch cur := bankOf(s.Mode()); {
	case i >= 8 && i <= 12 && cur == bankFIQ:
		s.userHigh[i-8] = v
	case (i == SP || i == LR) && cur != bankUser:
		if i == SP {
			s.bankSP[bankUser] = v
		} else {
			s.bankLR[bankUser] = v
		}
	default:
		s.R[i] = v
	}
}

// BankedSP returns the stack pointer of the given mode.
func (s *State) BankedSP(m api.Mode) uint32 {
	if bankOf(m) == bankOf(s.Mode()) {
		return s.R[SP]
	}
	return s.bankSP[bankOf(m)]
}
