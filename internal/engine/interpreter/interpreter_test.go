package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
	"github.com/armature-emu/armature/internal/testing/membus"
)

// start returns an interpreter with the pipeline filled at address zero.
// setup runs before the pipeline fill, so it may change the state (mode, T bit).
func start(variant api.Variant, bus api.Bus, setup func(s *cpu.State)) (*Interpreter, *cpu.State) {
	s := cpu.NewState(variant, 0)
	if setup != nil {
		setup(s)
	}
	it := New(s, bus, isa.NewDecoder(variant))
	s.Flush(0, bus)
	return it, s
}

// step executes one instruction and returns the cycles it took.
func step(it *Interpreter) uint64 {
	before := it.state.Cycles
	it.Step()
	return it.state.Cycles - before
}

func flags(s *cpu.State) uint32 { return s.CPSR >> 28 }

func TestInterpreter_pcReads(t *testing.T) {
	t.Run("arm", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe1a0000f) // mov r0, pc
		it, s := start(api.VariantARMv4T, bus, nil)
		require.Equal(t, uint64(1), step(it))
		require.Equal(t, uint32(8), s.R[0])
		require.Equal(t, uint32(12), s.R[cpu.PC])
	})
	t.Run("arm register shift", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe08f011f) // add r0, pc, pc, lsl r1
		it, s := start(api.VariantARMv4T, bus, nil)
		require.Equal(t, uint64(2), step(it))
		require.Equal(t, uint32(24), s.R[0])
	})
	t.Run("thumb", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0x4678) // mov r0, pc
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		step(it)
		require.Equal(t, uint32(4), s.R[0])
		require.Equal(t, uint32(6), s.R[cpu.PC])
	})
	t.Run("thumb pc-relative load", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0x46c0, 0x4800) // nop; ldr r0, [pc, #0]
		bus.LoadWords(4, 0xabcd)
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		step(it)
		require.Equal(t, uint64(3), step(it))
		require.Equal(t, uint32(0xabcd), s.R[0])
	})
}

func TestInterpreter_conditionFalse(t *testing.T) {
	bus := membus.New()
	bus.LoadWords(0, 0x03a00001) // moveq r0, #1
	it, s := start(api.VariantARMv4T, bus, nil)
	require.Equal(t, uint64(cpu.CyclesSkipped), step(it))
	require.Zero(t, s.R[0])
	require.Equal(t, uint32(12), s.R[cpu.PC])
}

func TestInterpreter_neverCondition(t *testing.T) {
	bus := membus.New()
	bus.LoadWords(0, 0xfb000000) // blx #0 on v5, never on v4
	it, s := start(api.VariantARMv4T, bus, nil)
	require.Equal(t, uint64(1), step(it))
	require.Equal(t, uint32(12), s.R[cpu.PC])
	require.False(t, s.Thumb())
}

func TestInterpreter_dataProcessing(t *testing.T) {
	tests := []struct {
		name   string
		word   uint32
		r0, r1 uint32
		exp    uint32
		flags  uint32 // NZCV
	}{
		{name: "adds overflow", word: 0xe0902001, r0: 0x7fffffff, r1: 1, exp: 0x80000000, flags: 0b1001},
		{name: "adds carry", word: 0xe0902001, r0: 0xffffffff, r1: 1, exp: 0, flags: 0b0110},
		{name: "subs equal", word: 0xe0502001, r0: 5, r1: 5, exp: 0, flags: 0b0110},
		{name: "subs borrow", word: 0xe0502001, r0: 3, r1: 5, exp: 0xfffffffe, flags: 0b1000},
		{name: "movs lsr #32", word: 0xe1b02020, r0: 0x80000000, exp: 0, flags: 0b0110},
		{name: "ands", word: 0xe0102001, r0: 0xf0, r1: 0x0f, exp: 0, flags: 0b0100},
		{name: "rsbs", word: 0xe2702000, r0: 1, exp: 0xffffffff, flags: 0b1000},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0, tc.word)
			it, s := start(api.VariantARMv4T, bus, nil)
			s.R[0], s.R[1] = tc.r0, tc.r1
			require.Equal(t, uint64(1), step(it))
			require.Equal(t, tc.exp, s.R[2])
			require.Equal(t, tc.flags, flags(s))
		})
	}
}

func TestInterpreter_exceptionReturn(t *testing.T) {
	bus := membus.New()
	bus.LoadWords(0, 0xe1b0f00e) // movs pc, lr
	it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) {
		s.WriteCPSR(api.ModeIRQ | cpu.FlagI)
		s.SPSR = api.ModeUser
		s.R[cpu.LR] = 0x100
	})
	require.Equal(t, uint64(3), step(it))
	require.Equal(t, api.ModeUser, s.Mode())
	require.Equal(t, uint32(0x108), s.R[cpu.PC])
}

func TestInterpreter_psrTransfer(t *testing.T) {
	t.Run("mrs", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe10f0000) // mrs r0, cpsr
		it, s := start(api.VariantARMv4T, bus, nil)
		step(it)
		require.Equal(t, s.CPSR, s.R[0])
	})
	t.Run("msr control", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe321f03f) // msr cpsr_c, #0x3f
		it, s := start(api.VariantARMv4T, bus, nil)
		require.Equal(t, uint64(1), step(it))
		require.Equal(t, api.ModeSystem, s.Mode())
		require.False(t, s.Thumb())
	})
	t.Run("msr user", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe129f000) // msr cpsr_fc, r0
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.WriteCPSR(api.ModeUser) })
		s.R[0] = 0xf000001f
		step(it)
		require.Equal(t, api.ModeUser, s.Mode())
		require.Equal(t, uint32(0xf), flags(s))
	})
}

func TestInterpreter_multiply(t *testing.T) {
	tests := []struct {
		name       string
		word       uint32
		r1, r2, r3 uint32
		r0, hi     uint32
		flags      uint32
		cycles     uint64
	}{
		{name: "mul", word: 0xe0000291, r1: 6, r2: 7, r0: 42, cycles: 2},
		{name: "mlas zero", word: 0xe0303291, r2: 7, r0: 0, flags: 0b0100, cycles: 3},
		{name: "umull", word: 0xe0810392, r2: 0xffffffff, r3: 2, r0: 0xfffffffe, hi: 1, cycles: 3},
		{name: "smulls", word: 0xe0d10392, r2: 0xffffffff, r3: 2, r0: 0xfffffffe, hi: 0xffffffff, flags: 0b1000, cycles: 3},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0, tc.word)
			it, s := start(api.VariantARMv4T, bus, nil)
			s.R[1], s.R[2], s.R[3] = tc.r1, tc.r2, tc.r3
			require.Equal(t, tc.cycles, step(it))
			require.Equal(t, tc.r0, s.R[0])
			if tc.hi != 0 {
				require.Equal(t, tc.hi, s.R[1])
			}
			require.Equal(t, tc.flags, flags(s))
		})
	}
}

func TestInterpreter_singleTransfer(t *testing.T) {
	t.Run("ldr unaligned rotates", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe5910000) // ldr r0, [r1]
		bus.LoadWords(0x100, 0x11223344)
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[1] = 0x101
		require.Equal(t, uint64(3), step(it))
		require.Equal(t, uint32(0x44112233), s.R[0])
	})
	t.Run("str pre-index writeback", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe5a10004) // str r0, [r1, #4]!
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0], s.R[1] = 0xcafe, 0x200
		require.Equal(t, uint64(2), step(it))
		require.Equal(t, uint32(0xcafe), bus.Read32(0x204))
		require.Equal(t, uint32(0x204), s.R[1])
	})
	t.Run("ldr post-index", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe4910004) // ldr r0, [r1], #4
		bus.LoadWords(0x200, 9)
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[1] = 0x200
		step(it)
		require.Equal(t, uint32(9), s.R[0])
		require.Equal(t, uint32(0x204), s.R[1])
	})
	t.Run("str pc", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe581f000) // str pc, [r1]
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[1] = 0x200
		step(it)
		require.Equal(t, uint32(12), bus.Read32(0x200))
	})
	t.Run("ldr pc", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe591f000) // ldr pc, [r1]
		bus.LoadWords(0x200, 0x301)
		it, s := start(api.VariantARMv5TE, bus, nil)
		s.R[1] = 0x200
		require.Equal(t, uint64(5), step(it))
		require.True(t, s.Thumb())
		require.Equal(t, uint32(0x304), s.R[cpu.PC])
	})
	t.Run("swp", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe1020091) // swp r0, r1, [r2]
		bus.LoadWords(0x100, 7)
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[1], s.R[2] = 9, 0x100
		require.Equal(t, uint64(4), step(it))
		require.Equal(t, uint32(7), s.R[0])
		require.Equal(t, uint32(9), bus.Read32(0x100))
	})
}

func TestInterpreter_halfwordTransfer(t *testing.T) {
	tests := []struct {
		name    string
		variant api.Variant
		word    uint32
		exp     uint32
	}{
		{name: "ldrh v4 rotates", variant: api.VariantARMv4T, word: 0xe1d100b0, exp: 0x34000082},
		{name: "ldrh v5 aligns", variant: api.VariantARMv5TE, word: 0xe1d100b0, exp: 0x8234},
		{name: "ldrsh v4 as ldrsb", variant: api.VariantARMv4T, word: 0xe1d100f0, exp: 0xffffff82},
		{name: "ldrsh v5 aligns", variant: api.VariantARMv5TE, word: 0xe1d100f0, exp: 0xffff8234},
		{name: "ldrsb", variant: api.VariantARMv4T, word: 0xe1d100d0, exp: 0xffffff82},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0, tc.word)
			bus.LoadHalfwords(0x100, 0x8234)
			it, s := start(tc.variant, bus, nil)
			s.R[1] = 0x101
			step(it)
			require.Equal(t, tc.exp, s.R[0])
		})
	}

	t.Run("strh", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe1c100b2) // strh r0, [r1, #2]
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0], s.R[1] = 0x12345678, 0x100
		step(it)
		require.Equal(t, uint32(0x56780000), bus.Read32(0x100))
	})
}

func TestInterpreter_blockTransfer(t *testing.T) {
	t.Run("push and pop", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0,
			0xe92d4003, // stmdb sp!, {r0, r1, lr}
			0xe8bd800c, // ldmia sp!, {r2, r3, pc}
		)
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0], s.R[1], s.R[cpu.SP], s.R[cpu.LR] = 1, 2, 0x1000, 0x40
		require.Equal(t, uint64(4), step(it))
		require.Equal(t, uint32(0xff4), s.R[cpu.SP])
		require.Equal(t, uint32(1), bus.Read32(0xff4))
		require.Equal(t, uint32(0x40), bus.Read32(0xffc))
		require.Equal(t, uint64(7), step(it))
		require.Equal(t, uint32(1), s.R[2])
		require.Equal(t, uint32(2), s.R[3])
		require.Equal(t, uint32(0x1000), s.R[cpu.SP])
		require.Equal(t, uint32(0x48), s.R[cpu.PC])
	})
	t.Run("empty list", func(t *testing.T) {
		for _, tc := range []struct {
			variant api.Variant
			pc      uint32
		}{
			{variant: api.VariantARMv4T, pc: 0x48},
			{variant: api.VariantARMv5TE, pc: 12},
		} {
			bus := membus.New()
			bus.LoadWords(0, 0xe8b00000) // ldmia r0!, {}
			bus.LoadWords(0x100, 0x40)
			it, s := start(tc.variant, bus, nil)
			s.R[0] = 0x100
			step(it)
			require.Equal(t, uint32(0x140), s.R[0], api.VariantName(tc.variant))
			require.Equal(t, tc.pc, s.R[cpu.PC], api.VariantName(tc.variant))
		}
	})
	t.Run("stm base first in list", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe8a00003) // stmia r0!, {r0, r1}
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0], s.R[1] = 0x100, 5
		step(it)
		require.Equal(t, uint32(0x100), bus.Read32(0x100))
		require.Equal(t, uint32(0x108), s.R[0])
	})
	t.Run("stm base not first in list", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe8a10003) // stmia r1!, {r0, r1}
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0], s.R[1] = 5, 0x100
		step(it)
		require.Equal(t, uint32(0x108), bus.Read32(0x104))
	})
	t.Run("user bank", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe8d02000) // ldmia r0, {sp}^
		bus.LoadWords(0x100, 0x1234)
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.WriteCPSR(api.ModeIRQ | cpu.FlagI) })
		s.R[0], s.R[cpu.SP] = 0x100, 0x800
		step(it)
		require.Equal(t, uint32(0x800), s.R[cpu.SP])
		require.Equal(t, uint32(0x1234), s.UserReg(cpu.SP))
	})
}

func TestInterpreter_branches(t *testing.T) {
	t.Run("b", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xea000002)
		it, s := start(api.VariantARMv4T, bus, nil)
		require.Equal(t, uint64(3), step(it))
		require.Equal(t, uint32(24), s.R[cpu.PC])
	})
	t.Run("bl", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xeb000002)
		it, s := start(api.VariantARMv4T, bus, nil)
		step(it)
		require.Equal(t, uint32(4), s.R[cpu.LR])
		require.Equal(t, uint32(24), s.R[cpu.PC])
	})
	t.Run("bx to thumb", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe12fff10) // bx r0
		it, s := start(api.VariantARMv4T, bus, nil)
		s.R[0] = 0x201
		step(it)
		require.True(t, s.Thumb())
		require.Equal(t, uint32(0x204), s.R[cpu.PC])
	})
	t.Run("blx register", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe12fff30) // blx r0
		it, s := start(api.VariantARMv5TE, bus, nil)
		s.R[0] = 0x201
		step(it)
		require.True(t, s.Thumb())
		require.Equal(t, uint32(4), s.R[cpu.LR])
	})
	t.Run("blx immediate", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xfb000000)
		it, s := start(api.VariantARMv5TE, bus, nil)
		step(it)
		require.True(t, s.Thumb())
		require.Equal(t, uint32(4), s.R[cpu.LR])
		require.Equal(t, uint32(14), s.R[cpu.PC])
	})
	t.Run("thumb bl", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0xf000, 0xf802)
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		require.Equal(t, uint64(1), step(it))
		require.Equal(t, uint32(4), s.R[cpu.LR])
		require.Equal(t, uint64(3), step(it))
		require.Equal(t, uint32(5), s.R[cpu.LR])
		require.Equal(t, uint32(12), s.R[cpu.PC])
	})
	t.Run("thumb blx", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0xf000, 0xe802)
		it, s := start(api.VariantARMv5TE, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		step(it)
		step(it)
		require.False(t, s.Thumb())
		require.Equal(t, uint32(5), s.R[cpu.LR])
		require.Equal(t, uint32(16), s.R[cpu.PC])
	})
	t.Run("thumb pop pc", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0xb501, 0xbd00) // push {r0, lr}; pop {pc}
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		s.R[0], s.R[cpu.SP], s.R[cpu.LR] = 1, 0x1000, 0x41
		step(it)
		require.Equal(t, uint32(0xff8), s.R[cpu.SP])
		step(it)
		require.True(t, s.Thumb())
		require.Equal(t, uint32(0x44), s.R[cpu.PC])
		require.Equal(t, uint32(0x1000), s.R[cpu.SP])
	})
}

func TestInterpreter_exceptions(t *testing.T) {
	t.Run("swi from user", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xef000000)
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.WriteCPSR(api.ModeUser) })
		require.Equal(t, uint64(3), step(it))
		require.Equal(t, api.ModeSupervisor, s.Mode())
		require.Equal(t, uint32(4), s.R[cpu.LR])
		require.Equal(t, uint32(api.ModeUser), s.SPSR)
		require.Equal(t, uint32(16), s.R[cpu.PC])
	})
	t.Run("swi from thumb", func(t *testing.T) {
		bus := membus.New()
		bus.LoadHalfwords(0, 0xdf00)
		it, s := start(api.VariantARMv4T, bus, func(s *cpu.State) { s.SetFlag(cpu.T, 1) })
		step(it)
		require.False(t, s.Thumb())
		require.Equal(t, uint32(2), s.R[cpu.LR])
		require.Equal(t, uint32(16), s.R[cpu.PC])
	})
	t.Run("undefined", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe7f000f0)
		it, s := start(api.VariantARMv4T, bus, nil)
		step(it)
		require.Equal(t, api.ModeUndefined, s.Mode())
		require.Equal(t, uint32(4), s.R[cpu.LR])
		require.Equal(t, uint32(12), s.R[cpu.PC])
	})
	t.Run("clz on v4", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe16f0f11)
		it, s := start(api.VariantARMv4T, bus, nil)
		step(it)
		require.Equal(t, api.ModeUndefined, s.Mode())
	})
	t.Run("mrc without coprocessor", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xee111f10)
		it, s := start(api.VariantARMv5TE, bus, nil)
		step(it)
		require.Equal(t, api.ModeUndefined, s.Mode())
	})
	t.Run("mrc on v4", func(t *testing.T) {
		bus := membus.NewCP15()
		bus.LoadWords(0, 0xee111f10)
		it, s := start(api.VariantARMv4T, bus, nil)
		step(it)
		require.Equal(t, api.ModeUndefined, s.Mode())
	})
}

func TestInterpreter_coprocessor(t *testing.T) {
	bus := membus.NewCP15()
	bus.LoadWords(0,
		0xee010f10, // mcr p15, 0, r0, c1, c0, 0
		0xee111f10, // mrc p15, 0, r1, c1, c0, 0
		0xee070f90, // mcr p15, 0, r0, c7, c0, 4
	)
	it, s := start(api.VariantARMv5TE, bus, nil)
	s.R[0] = 0x78
	require.Equal(t, uint64(2), step(it))
	require.Equal(t, []membus.CoprocessorWrite{{Group: 1, Value: 0x78}}, bus.Log)
	require.Equal(t, uint64(3), step(it))
	require.Equal(t, uint32(0x78), s.R[1])
	require.False(t, s.Halted)
	step(it)
	require.True(t, s.Halted)

	t.Run("user mode", func(t *testing.T) {
		bus := membus.NewCP15()
		bus.LoadWords(0, 0xee111f10)
		it, s := start(api.VariantARMv5TE, bus, func(s *cpu.State) { s.WriteCPSR(api.ModeUser) })
		step(it)
		require.Equal(t, api.ModeUndefined, s.Mode())
	})
}

func TestInterpreter_v5Extras(t *testing.T) {
	tests := []struct {
		name       string
		word       uint32
		r1, r2, r3 uint32
		exp        uint32
		q          bool
	}{
		{name: "qadd saturates", word: 0xe1020051, r1: 0x7fffffff, r2: 1, exp: 0x7fffffff, q: true},
		{name: "qadd", word: 0xe1020051, r1: 2, r2: 3, exp: 5},
		{name: "qdsub", word: 0xe1620051, r2: 0x40000000, exp: 0x80000001, q: true},
		{name: "clz", word: 0xe16f0f11, r1: 0x00010000, exp: 15},
		{name: "smulbb", word: 0xe1600281, r1: 0xffff, r2: 3, exp: 0xfffffffd},
		{name: "smultb", word: 0xe16002a1, r1: 0x00050000, r2: 3, exp: 15},
		{name: "smlabb overflow", word: 0xe1003281, r1: 2, r2: 3, r3: 0x7fffffff, exp: 0x80000005, q: true},
		{name: "smulwb", word: 0xe12002a1, r1: 0x10000, r2: 3, exp: 3},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0, tc.word)
			it, s := start(api.VariantARMv5TE, bus, nil)
			s.R[1], s.R[2], s.R[3] = tc.r1, tc.r2, tc.r3
			require.Equal(t, uint64(1), step(it))
			require.Equal(t, tc.exp, s.R[0])
			require.Equal(t, tc.q, s.Flag(cpu.Q) == 1)
		})
	}

	t.Run("smlalbb", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0, 0xe1410382)
		it, s := start(api.VariantARMv5TE, bus, nil)
		s.R[0], s.R[1], s.R[2], s.R[3] = 0xffffffff, 0, 1, 1
		require.Equal(t, uint64(2), step(it))
		require.Equal(t, uint32(0), s.R[0])
		require.Equal(t, uint32(1), s.R[1])
	})
	t.Run("ldrd strd", func(t *testing.T) {
		bus := membus.New()
		bus.LoadWords(0,
			0xe1c020d0, // ldrd r2, [r0]
			0xe1c120f0, // strd r2, [r1]
		)
		bus.LoadWords(0x100, 1, 2)
		it, s := start(api.VariantARMv5TE, bus, nil)
		s.R[0], s.R[1] = 0x100, 0x200
		step(it)
		require.Equal(t, uint32(1), s.R[2])
		require.Equal(t, uint32(2), s.R[3])
		step(it)
		require.Equal(t, uint32(1), bus.Read32(0x200))
		require.Equal(t, uint32(2), bus.Read32(0x204))
	})
}
