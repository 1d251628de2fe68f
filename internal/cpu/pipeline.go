package cpu

// Flush refills both prefetch stages starting at addr, aligned to the
// instruction width of the current state. Afterwards R[PC] is addr+2w, which is
// the value an instruction at addr observes when it reads the program counter.
func (s *State) Flush(addr uint32, f Fetcher) {
	if s.Thumb() {
		addr &^= 1
		s.Pipe[0] = uint32(f.Fetch16(addr))
		s.Pipe[1] = uint32(f.Fetch16(addr + 2))
		s.R[PC] = addr + 4
	} else {
		addr &^= 3
		s.Pipe[0] = f.Fetch32(addr)
		s.Pipe[1] = f.Fetch32(addr + 4)
		s.R[PC] = addr + 8
	}
}

// Advance retires Pipe[0] and fetches one instruction at R[PC].
func (s *State) Advance(f Fetcher) {
	s.Pipe[0] = s.Pipe[1]
	if s.Thumb() {
		s.Pipe[1] = uint32(f.Fetch16(s.R[PC]))
		s.R[PC] += 2
	} else {
		s.Pipe[1] = f.Fetch32(s.R[PC])
		s.R[PC] += 4
	}
}
