package armir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

var svc = AttrOf(api.ModeSupervisor)

// compileARM compiles words placed at programBase.
func compileARM(variant api.Variant, max int, words ...uint32) (*Block, *traceBus) {
	bus := newTraceBus()
	bus.loadARM(programBase, words...)
	c := NewCompiler(isa.NewDecoder(variant), CompilerConfig{Variant: variant, MaxInstructions: max})
	return c.Compile(bus, programBase, svc), bus
}

// live returns the instructions of blk that are not deleted.
func live(blk *Block) (ret []Instr) {
	for _, in := range blk.Instrs {
		if in.Op != OpNop {
			ret = append(ret, in)
		}
	}
	return
}

func count(blk *Block, op Op) (n int) {
	for _, in := range blk.Instrs {
		if in.Op == op {
			n++
		}
	}
	return
}

func TestCompile_blockEnds(t *testing.T) {
	tests := []struct {
		name         string
		words        []uint32
		max          int
		instructions int
		end          uint32
		last         Op
	}{
		{
			name:         "branch",
			words:        []uint32{0xe3a00001, 0xea000000, 0xe3a01002}, // mov r0, #1; b; mov r1, #2
			max:          8,
			instructions: 2,
			end:          programBase + 8,
			last:         OpExit,
		},
		{
			name:         "cap",
			words:        []uint32{0xe3a00001, 0xe3a00001, 0xe3a00001},
			max:          2,
			instructions: 2,
			end:          programBase + 8,
			last:         OpExit,
		},
		{
			name:         "swi",
			words:        []uint32{0xef000000, 0xe3a00001},
			max:          8,
			instructions: 1,
			end:          programBase + 4,
			last:         OpException,
		},
		{
			name:         "msr control",
			words:        []uint32{0xe321f01f, 0xe3a00001}, // msr cpsr_c, #0x1f
			max:          8,
			instructions: 1,
			end:          programBase + 4,
			last:         OpExit,
		},
		{
			name:         "msr flags",
			words:        []uint32{0xe328f000, 0xe3a00001}, // msr cpsr_f, #0
			max:          2,
			instructions: 2,
			end:          programBase + 8,
			last:         OpExit,
		},
		{
			name:         "conditional branch",
			words:        []uint32{0x0a000000, 0xe3a00001}, // beq
			max:          8,
			instructions: 1,
			end:          programBase + 4,
			last:         OpExit,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			blk, _ := compileARM(api.VariantARMv5TE, tc.max, tc.words...)
			require.Equal(t, tc.instructions, blk.Instructions)
			require.Equal(t, uint32(programBase), blk.Addr)
			require.Equal(t, tc.end, blk.End)
			require.Equal(t, tc.last, blk.Instrs[len(blk.Instrs)-1].Op)
		})
	}
}

func TestCompile_topOfAddressSpace(t *testing.T) {
	bus := newTraceBus()
	bus.loadARM(0xfffffff8, 0xe1a00000, 0xe1a00000) // mov r0, r0
	c := NewCompiler(isa.NewDecoder(api.VariantARMv4T), CompilerConfig{Variant: api.VariantARMv4T})
	blk := c.Compile(bus, 0xfffffff8, svc)
	require.Equal(t, 2, blk.Instructions)
	require.Equal(t, uint32(0), blk.End)
	last := blk.Instrs[len(blk.Instrs)-1]
	require.Equal(t, Instr{Op: OpExit, Args: [3]Arg{C(0)}}, Instr{Op: last.Op, Args: last.Args})

	require.True(t, blk.Overlaps(0xfffffffc, 0))
	require.True(t, blk.Overlaps(0xffffffff, 0))
	require.False(t, blk.Overlaps(0, 0xfffffff8))
}

func TestCompile_conditionalTiming(t *testing.T) {
	// addeq r0, r0, #1
	blk, bus := compileARM(api.VariantARMv4T, 1, 0x02800001)
	require.Equal(t, 1, count(blk, OpJumpIfZero))
	for _, z := range []uint32{0, 1} {
		s := cpu.NewState(api.VariantARMv4T, 0)
		s.SetFlag(cpu.Z, z)
		Interpret(blk, Env{State: s, Bus: bus})
		require.Equal(t, z, s.R[0])
		require.Equal(t, uint64(1), s.Cycles)
		require.Equal(t, uint32(programBase+4), s.R[cpu.PC])
	}
}

func TestCompile_multiplyTiming(t *testing.T) {
	// mul r0, r1, r2
	blk, bus := compileARM(api.VariantARMv4T, 1, 0xe0000291)
	for _, tc := range []struct {
		rs     uint32
		cycles uint64
	}{{0x10, 2}, {0x1000, 3}, {0x100000, 4}, {0x10000000, 5}, {0xffffffff, 2}} {
		s := cpu.NewState(api.VariantARMv4T, 0)
		s.R[1], s.R[2] = 3, tc.rs
		Interpret(blk, Env{State: s, Bus: bus})
		require.Equal(t, 3*tc.rs, s.R[0])
		require.Equal(t, tc.cycles, s.Cycles, "rs=%#x", tc.rs)
	}
}

func TestCompile_flagLookahead(t *testing.T) {
	// adds r0, r0, r1; cmp r0, #0
	blk, _ := compileARM(api.VariantARMv4T, 2, 0xe0900001, 0xe3500000)
	require.Equal(t, 1, count(blk, OpCarry))
	require.Equal(t, 1, count(blk, OpOverflow))

	// adcs r0, r0, r1; adcs r0, r0, r1 reads C.
	blk, _ = compileARM(api.VariantARMv4T, 2, 0xe0b00001, 0xe0b00001)
	require.Equal(t, 2, count(blk, OpCarry))
}

func TestCompile_unconditional(t *testing.T) {
	// BLX imm on ARMv5TE, skipped on ARMv4T.
	blk, _ := compileARM(api.VariantARMv4T, 1, 0xfa000000)
	require.Equal(t, 0, count(blk, OpStoreReg))

	blk, bus := compileARM(api.VariantARMv5TE, 1, 0xfb000000)
	s := cpu.NewState(api.VariantARMv5TE, 0)
	Interpret(blk, Env{State: s, Bus: bus})
	require.Equal(t, uint32(programBase+4), s.R[cpu.LR])
	require.Equal(t, uint32(programBase+10), s.R[cpu.PC])
	require.True(t, s.Thumb())
	require.Equal(t, uint64(3), s.Cycles)
}

func TestCompile_coprocessor(t *testing.T) {
	// mcr p15, 0, r0, c7, c0, 4
	const wfi = 0xee070f90
	t.Run("without coprocessor", func(t *testing.T) {
		blk, _ := compileARM(api.VariantARMv5TE, 4, wfi)
		require.Equal(t, OpException, blk.Instrs[len(blk.Instrs)-1].Op)
	})
	t.Run("wait for interrupt", func(t *testing.T) {
		bus := newTraceBus()
		bus.loadARM(programBase, wfi)
		c := NewCompiler(isa.NewDecoder(api.VariantARMv5TE), CompilerConfig{Variant: api.VariantARMv5TE, Coprocessor: true})
		blk := c.Compile(bus, programBase, svc)
		require.Equal(t, OpHalt, blk.Instrs[len(blk.Instrs)-1].Op)

		s := cpu.NewState(api.VariantARMv5TE, 0)
		s.R[0] = 0x55
		Interpret(blk, Env{State: s, Bus: bus, Coprocessor: bus})
		require.True(t, s.Halted)
		require.Equal(t, uint32(programBase+4), s.R[cpu.PC])
		require.Equal(t, []event{{"mcr", CoprocessorAux(7, 0, 4), 0x55}}, bus.events)
	})
	t.Run("user mode", func(t *testing.T) {
		bus := newTraceBus()
		bus.loadARM(programBase, wfi)
		c := NewCompiler(isa.NewDecoder(api.VariantARMv5TE), CompilerConfig{Variant: api.VariantARMv5TE, Coprocessor: true})
		blk := c.Compile(bus, programBase, AttrOf(api.ModeUser))
		in := blk.Instrs[len(blk.Instrs)-1]
		require.Equal(t, OpException, in.Op)
		require.Equal(t, api.VectorUndefined, in.Aux)
	})
}

func TestCompile_thumb(t *testing.T) {
	bus := newTraceBus()
	// bl +4
	bus.loadThumb(programBase, 0xf000, 0xf802)
	c := NewCompiler(isa.NewDecoder(api.VariantARMv4T), CompilerConfig{Variant: api.VariantARMv4T})
	attr := AttrOf(api.ModeSupervisor | cpu.FlagT)
	blk := c.Compile(bus, programBase, attr)
	require.Equal(t, 2, blk.Instructions)
	require.Equal(t, uint32(programBase+4), blk.End)

	s := cpu.NewState(api.VariantARMv4T, 0)
	s.CPSR |= cpu.FlagT
	Interpret(blk, Env{State: s, Bus: bus})
	require.Equal(t, uint32(programBase+8), s.R[cpu.PC])
	require.Equal(t, uint32(programBase+5), s.R[cpu.LR])
	require.Equal(t, uint64(4), s.Cycles)

	Optimize(blk, bus)
	exit := blk.Instrs[len(blk.Instrs)-1]
	require.Equal(t, OpExit, exit.Op)
	require.Equal(t, LinkInfo{Linked: true, Addr: programBase + 8, Attr: attr}, exit.Link)
}
