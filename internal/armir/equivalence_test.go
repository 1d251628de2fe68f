package armir

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/engine/interpreter"
	"github.com/armature-emu/armature/internal/isa"
)

const programBase = 0x1000

var modes = []api.Mode{
	api.ModeUser, api.ModeFIQ, api.ModeIRQ, api.ModeSupervisor,
	api.ModeAbort, api.ModeUndefined, api.ModeSystem,
}

// program is a randomly generated run of guest code and the state it starts in.
type program struct {
	Variant api.Variant
	Thumb   bool
	Mode    api.Mode
	// Flags holds CPSR bits 31-27 and the interrupt masks.
	Flags uint32
	// Banks holds, per mode, r0-r15 with r15 replaced by the SPSR.
	Banks [7][16]uint32
	Code  []uint32
}

// randomWord returns an ARM word biased towards the formats with the most
// distinct execution paths.
func randomWord(r *rand.Rand) uint32 {
	w := r.Uint32()
	switch n := r.Intn(100); {
	case n < 15: // multiplies, swaps and halfword transfers
		w = w&^0x0e000090 | 0x90
	case n < 20: // coprocessor register transfers to CP15
		w = w&^0x0f000f10 | 0x0e000f10
	case n < 25: // PSR transfers
		w = w&^0x0d900000 | 0x01000000
		if w&(1<<25) == 0 {
			w &^= 0xff0
		}
	}
	switch n := r.Intn(100); {
	case n < 65:
		w = w&0x0fffffff | isa.CondAL<<28
	case n < 70:
		w |= isa.CondNV << 28
	}
	return w
}

// randomValue returns register contents biased towards small shift amounts
// and boundary values.
func randomValue(r *rand.Rand) uint32 {
	switch r.Intn(6) {
	case 0:
		return uint32(r.Intn(40))
	case 1:
		return []uint32{0, 1, 0x7fffffff, 0x80000000, 0xffffffff}[r.Intn(5)]
	}
	return r.Uint32()
}

// Generate implements quick.Generator.
func (program) Generate(r *rand.Rand, _ int) reflect.Value {
	p := program{
		Variant: api.Variant(r.Intn(2)),
		Thumb:   r.Intn(3) == 0,
		Mode:    modes[r.Intn(len(modes))],
		Flags:   r.Uint32() & 0xf80000c0,
	}
	for i := range p.Banks {
		for j := range p.Banks[i] {
			p.Banks[i][j] = randomValue(r)
		}
	}
	n := 1 + r.Intn(12)
	for i := 0; i < n; i++ {
		if p.Thumb {
			p.Code = append(p.Code, uint32(uint16(r.Uint32())))
		} else {
			p.Code = append(p.Code, randomWord(r))
		}
	}
	if !p.Thumb && n > 1 && r.Intn(4) == 0 {
		i := r.Intn(n - 1)
		p.Code[i], p.Code[i+1] = storeThenLoadLiteral(r)
	}
	return reflect.ValueOf(p)
}

// storeThenLoadLiteral returns a store into the word that the instruction
// after it loads relative to the program counter.
func storeThenLoadLiteral(r *rand.Rand) (store, load uint32) {
	rs, rd := uint32(r.Intn(cpu.PC)), uint32(r.Intn(cpu.PC))
	off := uint32(4 * r.Intn(8))
	store = 0xe58f0004 | rs<<12 | off // str rs, [pc, #off+4]
	if r.Intn(2) == 0 {
		store |= 1<<22 | uint32(r.Intn(4)) // strb
	}
	return store, 0xe59f0000 | rd<<12 | off // ldr rd, [pc, #off]
}

// setup returns the bus and initial state of p with the pipeline filled at
// programBase.
func (p program) setup() (*traceBus, *cpu.State) {
	bus := newTraceBus()
	if p.Thumb {
		hs := make([]uint16, len(p.Code))
		for i, c := range p.Code {
			hs[i] = uint16(c)
		}
		bus.loadThumb(programBase, hs...)
	} else {
		bus.loadARM(programBase, p.Code...)
	}
	s := cpu.NewState(p.Variant, 0)
	for i, m := range modes {
		s.SwitchMode(m)
		copy(s.R[:15], p.Banks[i][:15])
		s.SPSR = p.Banks[i][15]
	}
	s.SwitchMode(p.Mode)
	s.CPSR |= p.Flags
	if p.Variant != api.VariantARMv5TE {
		s.CPSR &^= cpu.FlagQ
	}
	if p.Thumb {
		s.CPSR |= cpu.FlagT
	}
	s.Flush(programBase, bus)
	return bus, s
}

func (p program) compile() (*Block, *traceBus) {
	bus, s := p.setup()
	dec := isa.NewDecoder(p.Variant)
	c := NewCompiler(dec, CompilerConfig{
		Variant:         p.Variant,
		MaxInstructions: len(p.Code),
		Coprocessor:     p.Variant == api.VariantARMv5TE,
	})
	return c.Compile(bus, programBase, AttrOf(s.CPSR)), bus
}

// interpret steps the interpreter through the instructions blk covers.
func (p program) interpret(dec *isa.Decoder, blk *Block) (*cpu.State, []event) {
	bus, s := p.setup()
	it := interpreter.New(s, bus, dec)
	w := s.Width()
	for k := 0; k < blk.Instructions; k++ {
		if s.Thumb() != p.Thumb || s.CurrentAddress() != programBase+uint32(k)*w {
			break
		}
		it.Step()
	}
	return s, bus.events
}

// run executes blk the way the engine does.
func (p program) run(blk *Block) (*cpu.State, []event) {
	bus, s := p.setup()
	env := Env{State: s, Bus: bus}
	if p.Variant == api.VariantARMv5TE {
		env.Coprocessor = bus
	}
	Interpret(blk, env)
	s.Flush(s.R[cpu.PC], bus)
	return s, bus.events
}

var stateOpts = cmp.AllowUnexported(cpu.State{})

// withoutLiterals drops the reads of the literal words folded into blk.
func withoutLiterals(events []event, blk *Block) (ret []event) {
	for _, e := range events {
		if strings.HasPrefix(e.Kind, "read") && containsWord(blk.Literals, e.Addr&^3) {
			continue
		}
		ret = append(ret, e)
	}
	return
}

func TestCompile_matchesInterpreter(t *testing.T) {
	decoders := map[api.Variant]*isa.Decoder{
		api.VariantARMv4T:  isa.NewDecoder(api.VariantARMv4T),
		api.VariantARMv5TE: isa.NewDecoder(api.VariantARMv5TE),
	}
	check := func(p program) bool {
		blk, _ := p.compile()
		expState, expEvents := p.interpret(decoders[p.Variant], blk)

		gotState, gotEvents := p.run(blk)
		if d := cmp.Diff(expState, gotState, stateOpts); d != "" {
			t.Logf("unoptimized state mismatch (-interpreter +ir):\n%s\n%s", d, blk)
			return false
		}
		if d := cmp.Diff(expEvents, gotEvents); d != "" {
			t.Logf("unoptimized trace mismatch (-interpreter +ir):\n%s\n%s", d, blk)
			return false
		}

		bus, _ := p.setup()
		Optimize(blk, bus)
		gotState, gotEvents = p.run(blk)
		if d := cmp.Diff(expState, gotState, stateOpts); d != "" {
			t.Logf("optimized state mismatch (-interpreter +ir):\n%s\n%s", d, blk)
			return false
		}
		if d := cmp.Diff(withoutLiterals(expEvents, blk), withoutLiterals(gotEvents, blk)); d != "" {
			t.Logf("optimized trace mismatch (-interpreter +ir):\n%s\n%s", d, blk)
			return false
		}
		return true
	}
	require.NoError(t, quick.Check(check, &quick.Config{MaxCount: 3000, Rand: rand.New(rand.NewSource(1))}))
}

func TestOptimize_storeThenLoadLiteral(t *testing.T) {
	p := program{
		Variant: api.VariantARMv4T,
		Mode:    api.ModeSupervisor,
		Code:    []uint32{0xe58f0004, 0xe59f1000, 0xeafffffe, 0xdeadbeef},
	}
	p.Banks[3][0] = 0x12345678 // svc r0
	blk, bus := p.compile()
	expState, expEvents := p.interpret(isa.NewDecoder(p.Variant), blk)
	require.Equal(t, uint32(0x12345678), expState.R[1])

	Optimize(blk, bus)
	gotState, gotEvents := p.run(blk)
	require.Empty(t, cmp.Diff(expState, gotState, stateOpts))
	require.Equal(t, []event{
		{"write32", programBase + 12, 0x12345678},
		{"read32", programBase + 12, 0x12345678},
	}, gotEvents)
	require.Equal(t, expEvents, gotEvents)
}

func TestOptimize_passesIdempotent(t *testing.T) {
	passes := map[string]func(*Block, CodeReader){
		"forward":  func(b *Block, _ CodeReader) { Forward(b) },
		"fold":     func(b *Block, _ CodeReader) { Fold(b) },
		"collapse": func(b *Block, _ CodeReader) { Collapse(b) },
		"literals": FoldLiterals,
		"dce":      func(b *Block, _ CodeReader) { EliminateDeadCode(b) },
		"idle":     func(b *Block, _ CodeReader) { DetectIdle(b) },
		"link":     func(b *Block, _ CodeReader) { Link(b) },
	}
	clone := func(b *Block) *Block {
		c := *b
		c.Instrs = append([]Instr(nil), b.Instrs...)
		c.Literals = append([]uint32(nil), b.Literals...)
		return &c
	}
	check := func(p program) bool {
		blk, bus := p.compile()
		for name, pass := range passes {
			once := clone(blk)
			pass(once, bus)
			twice := clone(once)
			pass(twice, bus)
			if d := cmp.Diff(once, twice); d != "" {
				t.Logf("%s is not idempotent on\n%s\n%s", name, blk, d)
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(check, &quick.Config{MaxCount: 500, Rand: rand.New(rand.NewSource(2))}))
}
