package jit

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/armir"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/engine/interpreter"
	"github.com/armature-emu/armature/internal/isa"
	"github.com/armature-emu/armature/internal/logging"
	"github.com/armature-emu/armature/internal/testing/membus"
)

var (
	svc       = armir.AttrOf(api.ModeSupervisor)
	stateOpts = cmp.AllowUnexported(cpu.State{})
)

// testBackends returns the backends available on this host by name.
func testBackends(t *testing.T) map[string]func() Backend {
	ret := map[string]func() Backend{"threaded": NewThreadedBackend}
	if _, err := NewNativeBackend(); err == nil {
		ret["native"] = func() Backend {
			b, err := NewNativeBackend()
			require.NoError(t, err)
			return b
		}
	}
	return ret
}

// program is guest code that ends in an idle loop at idle.
type program struct {
	name  string
	entry uint32
	idle  uint32
	code  map[uint32][]uint32
	setup func(s *cpu.State)
}

var programs = []program{
	{
		name:  "loop",
		entry: 0,
		idle:  0x14,
		code: map[uint32][]uint32{0: {
			0xe3a00000, // mov r0, #0
			0xe3a0100a, // mov r1, #10
			0xe0800001, // add r0, r0, r1
			0xe2511001, // subs r1, r1, #1
			0x1afffffc, // bne 0x8
			0xeafffffe, // b .
		}},
	},
	{
		name:  "memory",
		entry: 0,
		idle:  0x14,
		code: map[uint32][]uint32{0: {
			0xe3a00a01, // mov r0, #0x1000
			0xe3a0102a, // mov r1, #42
			0xe5801000, // str r1, [r0]
			0xe5902000, // ldr r2, [r0]
			0xe0823002, // add r3, r2, r2
			0xeafffffe, // b .
		}},
	},
	{
		name:  "swi",
		entry: 0x100,
		idle:  0x8,
		code: map[uint32][]uint32{
			0x8: {0xeafffffe}, // b .
			0x100: {
				0xe3a00005, // mov r0, #5
				0xef000000, // swi 0
			},
		},
		setup: func(s *cpu.State) { s.SwitchMode(api.ModeUser) },
	},
}

func (p program) load() *membus.Bus {
	bus := membus.New()
	for addr, words := range p.code {
		bus.LoadWords(addr, words...)
	}
	return bus
}

func (p program) state(bus api.Bus) *cpu.State {
	s := cpu.NewState(api.VariantARMv5TE, 0)
	if p.setup != nil {
		p.setup(s)
	}
	s.Flush(p.entry, bus)
	return s
}

// interpret runs p on the interpreter up to and including the first
// iteration of the idle loop.
func (p program) interpret(t *testing.T) *cpu.State {
	bus := p.load()
	s := p.state(bus)
	it := interpreter.New(s, bus, isa.NewDecoder(api.VariantARMv5TE))
	for n := 0; s.CurrentAddress() != p.idle; n++ {
		require.Less(t, n, 10000, "%s never reaches its idle loop", p.name)
		it.Step()
	}
	it.Step()
	return s
}

func newEngine(bus api.Bus, s *cpu.State, cfg Config) *Engine {
	return New(s, bus, isa.NewDecoder(api.VariantARMv5TE), cfg)
}

// runToIdle steps e until it reports an idle loop.
func runToIdle(t *testing.T, e *Engine) {
	for n := 0; e.Step(); n++ {
		require.Less(t, n, 10000, "never idle")
	}
}

func TestEngine_matchesInterpreter(t *testing.T) {
	for name, backend := range testBackends(t) {
		for _, optimize := range []bool{false, true} {
			for _, budget := range []uint64{1, DefaultChainBudget} {
				for _, p := range programs {
					p := p
					cfg := Config{Backend: backend(), Optimize: optimize, ChainBudget: budget}
					t.Run(name+"/"+p.name, func(t *testing.T) {
						exp := p.interpret(t)

						bus := p.load()
						s := p.state(bus)
						e := newEngine(bus, s, cfg)
						defer e.Close()
						runToIdle(t, e)
						require.Empty(t, cmp.Diff(exp, s, stateOpts), "optimize=%v budget=%d", optimize, budget)
					})
				}
			}
		}
	}
}

func TestEngine_results(t *testing.T) {
	bus := programs[0].load()
	s := programs[0].state(bus)
	e := newEngine(bus, s, Config{Optimize: true})
	runToIdle(t, e)
	require.Equal(t, uint32(55), s.R[0])
	require.Equal(t, uint32(0), s.R[1])
	require.Equal(t, uint32(0x14), s.CurrentAddress())
	require.Equal(t, "threaded", e.BackendName())
}

func TestEngine_chainBudget(t *testing.T) {
	t.Run("one block per step", func(t *testing.T) {
		bus := programs[0].load()
		s := programs[0].state(bus)
		e := newEngine(bus, s, Config{Optimize: true, ChainBudget: 1})
		require.True(t, e.Step())
		// The first block ends at the loop branch.
		require.Equal(t, uint32(0x8), s.CurrentAddress())
		require.Equal(t, uint32(10), s.R[0])
	})
	t.Run("follows links", func(t *testing.T) {
		bus := programs[0].load()
		s := programs[0].state(bus)
		e := newEngine(bus, s, Config{Optimize: true, ChainBudget: 1 << 20})
		require.False(t, e.Step())
		require.Equal(t, uint32(55), s.R[0])
	})
}

func TestEngine_linking(t *testing.T) {
	bus := programs[0].load()
	s := programs[0].state(bus)
	e := newEngine(bus, s, Config{Optimize: true})
	runToIdle(t, e)

	first, ok := e.cache.lookup(0, svc)
	require.True(t, ok)
	loop, ok := e.cache.lookup(0x8, svc)
	require.True(t, ok)
	idle, ok := e.cache.lookup(0x14, svc)
	require.True(t, ok)
	require.Contains(t, e.cache.blocks[first].links, loop)
	require.Contains(t, e.cache.blocks[loop].links, loop)
	require.Contains(t, e.cache.blocks[loop].links, idle)
	var from []int32
	for _, r := range e.cache.blocks[loop].incoming {
		from = append(from, r.block)
	}
	require.ElementsMatch(t, []int32{first, loop}, from)

	e.InvalidateRange(0x14, 0x18)
	_, ok = e.cache.lookup(0x14, svc)
	require.False(t, ok)
	require.Equal(t, 2, e.Blocks())
	require.NotContains(t, e.cache.blocks[loop].links, idle)
	require.Contains(t, e.cache.blocks[loop].links, loop)

	// The next run relinks to a new block.
	s.Flush(0, bus)
	runToIdle(t, e)
	idle, ok = e.cache.lookup(0x14, svc)
	require.True(t, ok)
	require.Contains(t, e.cache.blocks[loop].links, idle)
}

func TestEngine_invalidateRange(t *testing.T) {
	bus := membus.New()
	bus.LoadWords(0x200,
		0xe3a00001, // mov r0, #1
		0xeafffffe, // b .
	)
	s := cpu.NewState(api.VariantARMv5TE, 0)
	s.Flush(0x200, bus)
	e := newEngine(bus, s, Config{Optimize: true})
	runToIdle(t, e)
	require.Equal(t, uint32(1), s.R[0])
	require.Equal(t, 2, e.Blocks())

	// Writes behind the core's back are only seen after invalidation.
	bus.LoadWords(0x200, 0xe3a00002) // mov r0, #2
	s.Flush(0x200, bus)
	runToIdle(t, e)
	require.Equal(t, uint32(1), s.R[0])

	e.InvalidateRange(0x200, 0x204)
	require.Equal(t, 1, e.Blocks())
	s.Flush(0x200, bus)
	runToIdle(t, e)
	require.Equal(t, uint32(2), s.R[0])

	e.InvalidateAll()
	require.Equal(t, 0, e.Blocks())
}

func TestEngine_selfModifyingCode(t *testing.T) {
	for name, backend := range testBackends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0x200,
				0xe3a00001, // mov r0, #1
				0xeafffffe, // b .
			)
			bus.LoadWords(0x100,
				0xe59f1004, // ldr r1, [pc, #4]
				0xe5821000, // str r1, [r2]
				0xea00003c, // b 0x200
				0xe3a00002, // mov r0, #2 (literal)
			)
			s := cpu.NewState(api.VariantARMv5TE, 0)
			s.Flush(0x200, bus)
			e := newEngine(bus, s, Config{Optimize: true, Backend: backend()})
			defer e.Close()
			runToIdle(t, e)
			require.Equal(t, uint32(1), s.R[0])

			s.R[2] = 0x200
			s.Flush(0x100, bus)
			runToIdle(t, e)
			require.Equal(t, uint32(0xe3a00002), bus.Read32(0x200))
			require.Equal(t, uint32(2), s.R[0])
		})
	}
}

func TestEngine_selfModifyingBlock(t *testing.T) {
	for name, backend := range testBackends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			bus := membus.New()
			bus.LoadWords(0x300,
				0xe58f1004, // str r1, [pc, #4]
				0xe3a00001, // mov r0, #1
				0xe1a00000, // nop
				0xe3a00003, // mov r0, #3
				0xe1a03000, // mov r3, r0
				0xeafffffe, // b .
			)
			s := cpu.NewState(api.VariantARMv5TE, 0)
			s.R[1] = 0xe3a00002 // mov r0, #2
			s.Flush(0x300, bus)
			e := newEngine(bus, s, Config{Optimize: true, Backend: backend()})
			defer e.Close()

			// The running block keeps its translation of the word it replaced.
			runToIdle(t, e)
			require.Equal(t, uint32(0xe3a00002), bus.Read32(0x30c))
			require.Equal(t, uint32(3), s.R[3])
			_, ok := e.cache.lookup(0x300, svc)
			require.False(t, ok)

			s.Flush(0x300, bus)
			runToIdle(t, e)
			require.Equal(t, uint32(2), s.R[3])
		})
	}
}

func TestEngine_log(t *testing.T) {
	bus := programs[2].load()
	s := programs[2].state(bus)
	var buf bytes.Buffer
	e := newEngine(bus, s, Config{Name: "arm9", Optimize: true, Logger: logging.NewLogger(&buf, logging.LogScopeAll)})
	runToIdle(t, e)
	e.InvalidateRange(0x100, 0x104)
	require.Equal(t, `arm9 compile [0x00000100,0x00000108) usr/arm insts=2 backend=threaded
arm9 exception swi lr=0x00000108 pc=0x00000008
arm9 compile [0x00000008,0x0000000c) svc/arm insts=1 backend=threaded
arm9 invalidate [0x00000100,0x00000108) write=[0x00000100,0x00000104)
`, buf.String())
}
