package jit

import (
	"fmt"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/armir"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
	"github.com/armature-emu/armature/internal/logging"
	"github.com/armature-emu/armature/internal/regalloc"
)

// DefaultChainBudget is the number of cycles Step follows links for when
// Config.ChainBudget is zero.
const DefaultChainBudget = 256

// Config configures an Engine.
type Config struct {
	// Name identifies the core in logs.
	Name string
	// MaxInstructions caps the guest instructions of one block.
	MaxInstructions int
	// Optimize runs every optimizer pass over each block. Without it only idle
	// loop detection and link analysis run.
	Optimize bool
	// ChainBudget is the number of cycles one Step may run linked blocks for.
	ChainBudget uint64
	// Backend compiles blocks. Nil selects the threaded backend.
	Backend Backend
	Logger  *logging.Logger
}

// Engine runs a core by compiling and executing blocks.
//
// Guest writes to code invalidate the blocks they overlap, but a block that
// overwrites its own instructions still runs their old translation until it
// exits. The new code is compiled when execution next reaches it. Guest code
// that modifies itself sees the change once control leaves the block, as if
// after an instruction cache flush and a branch.
type Engine struct {
	name     string
	state    *cpu.State
	bus      api.Bus
	compiler *armir.Compiler
	optimize bool
	budget   uint64

	backend Backend
	// fallback compiles the blocks backend fails on, nil if backend is threaded.
	fallback Backend
	cache    *cache
	ctx      Context

	// running is set while an executable runs. Blocks removed meanwhile are
	// released when it returns.
	running bool
	dead    []int32
	log     *logging.Logger
}

// New returns an Engine executing state. Data accesses of generated code go
// through bus, which also serves as the coprocessor when the decoder's variant
// has one and bus implements it.
func New(state *cpu.State, bus api.Bus, dec *isa.Decoder, cfg Config) *Engine {
	e := &Engine{
		name:     cfg.Name,
		state:    state,
		bus:      bus,
		optimize: cfg.Optimize,
		budget:   cfg.ChainBudget,
		backend:  cfg.Backend,
		cache:    newCache(),
		log:      cfg.Logger,
	}
	if e.budget == 0 {
		e.budget = DefaultChainBudget
	}
	if e.backend == nil {
		e.backend = NewThreadedBackend()
	}
	if _, ok := e.backend.(threadedBackend); !ok {
		e.fallback = NewThreadedBackend()
	}

	var cp api.Coprocessor
	if c, ok := bus.(api.Coprocessor); ok && dec.Variant == api.VariantARMv5TE {
		cp = c
	}
	e.compiler = armir.NewCompiler(dec, armir.CompilerConfig{
		Variant:         dec.Variant,
		MaxInstructions: cfg.MaxInstructions,
		Coprocessor:     cp != nil,
	})
	e.ctx.Env = armir.Env{State: state, Bus: &coherentBus{Bus: bus, e: e}, Coprocessor: cp}
	return e
}

// BackendName returns the name of the backend blocks are compiled with.
func (e *Engine) BackendName() string { return e.backend.Name() }

// Blocks returns the number of compiled blocks in the cache.
func (e *Engine) Blocks() int { return e.cache.live }

// Step runs the block at the current address, then the blocks linked from it
// until the chain budget is spent, and refills the pipeline. It returns false
// if the last block was an idle loop.
func (e *Engine) Step() bool {
	s := e.state
	e.ctx.Budget = s.Cycles + e.budget
	id := e.block(s.CurrentAddress(), armir.AttrOf(s.CPSR))

	advanced := true
	e.running = true
	for {
		e.ctx.Current = id
		exit := e.cache.blocks[id].exec.Run(&e.ctx)
		id = e.ctx.Current
		if exit.Kind == ExitIdle {
			advanced = false
		}
		if exit.Kind == ExitHalt {
			e.log.Halt(e.name, s.R[cpu.PC], s.Cycles)
		} else if exit.Kind == ExitException && e.log.IsEnabled(logging.LogScopeException) {
			in := e.exitInstr(id)
			e.log.Exception(e.name, api.VectorName(in.Aux), s.R[cpu.LR], s.R[cpu.PC])
		}
		if exit.Kind != ExitLinked || s.Cycles >= e.ctx.Budget || !e.cache.blocks[id].live {
			break
		}
		link := e.cache.blocks[id].blk.Instrs[e.cache.blocks[id].sites[exit.Site]].Link
		next := e.block(link.Addr, link.Attr)
		e.cache.link(id, exit.Site, next)
		id = next
	}
	e.running = false
	e.releaseDead()
	s.Flush(s.R[cpu.PC], e.bus)
	return advanced
}

// exitInstr returns the terminator the block id stopped at. Only exceptions
// use it, and a block holds one exception at most.
func (e *Engine) exitInstr(id int32) *armir.Instr {
	blk := e.cache.blocks[id].blk
	for i := len(blk.Instrs) - 1; i >= 0; i-- {
		if blk.Instrs[i].Op == armir.OpException {
			return &blk.Instrs[i]
		}
	}
	panic("BUG: exception exit without exception")
}

// block returns the id of the block at addr in the state attr, compiling it
// if needed.
func (e *Engine) block(addr uint32, attr armir.Attr) int32 {
	if id, ok := e.cache.lookup(addr, attr); ok {
		return id
	}
	blk := e.compiler.Compile(e.bus, addr, attr)
	if e.optimize {
		armir.Optimize(blk, e.bus)
	} else {
		armir.DetectIdle(blk)
		armir.Link(blk)
	}

	id := e.cache.insert(blk)
	ent := &e.cache.blocks[id]
	backend := e.backend
	exec, err := compileWith(backend, id, blk, ent.links)
	if err != nil {
		if e.fallback == nil {
			panic(fmt.Sprintf("BUG: %s backend failed: %v", backend.Name(), err))
		}
		backend = e.fallback
		if exec, err = compileWith(backend, id, blk, ent.links); err != nil {
			panic(fmt.Sprintf("BUG: %s backend failed: %v", backend.Name(), err))
		}
	}
	e.cache.setExec(id, exec, backend.Name())
	if e.log.IsEnabled(logging.LogScopeCompile) {
		e.log.BlockCompiled(e.name, blk.Addr, blk.End, attrName(attr), blk.Instructions, backend.Name())
	}
	return id
}

func compileWith(b Backend, id int32, blk *armir.Block, links []int32) (Executable, error) {
	alloc, err := regalloc.Allocate(blk, b.Limits())
	if err != nil {
		return nil, fmt.Errorf("allocating block at %#x: %w", blk.Addr, err)
	}
	return b.Compile(id, blk, alloc, links)
}

func attrName(attr armir.Attr) string {
	set := "arm"
	if attr.Thumb() {
		set = "thumb"
	}
	return api.ModeName(attr.Mode()) + "/" + set
}

// InvalidateRange drops every block whose code or literals overlap [start, end).
// An end of zero is the top of the address space.
func (e *Engine) InvalidateRange(start, end uint32) {
	for _, id := range e.cache.overlapping(start, end) {
		if e.log.IsEnabled(logging.LogScopeInvalidate) {
			blk := e.cache.blocks[id].blk
			e.log.BlockInvalidated(e.name, blk.Addr, blk.End, start, end)
		}
		e.drop(id)
	}
}

// InvalidateAll drops every block.
func (e *Engine) InvalidateAll() {
	for _, id := range e.cache.all() {
		e.drop(id)
	}
}

func (e *Engine) drop(id int32) {
	e.cache.remove(id)
	if e.running {
		e.dead = append(e.dead, id)
		return
	}
	if err := e.cache.release(id); err != nil {
		panic(fmt.Sprintf("BUG: releasing block %d: %v", id, err))
	}
}

func (e *Engine) releaseDead() {
	for _, id := range e.dead {
		if err := e.cache.release(id); err != nil {
			panic(fmt.Sprintf("BUG: releasing block %d: %v", id, err))
		}
	}
	e.dead = e.dead[:0]
}

// Close releases every block.
func (e *Engine) Close() error {
	e.InvalidateAll()
	return nil
}

// coherentBus invalidates the blocks overlapping every write to a code page
// before the write is visible to the next fetch. The block doing the write is
// only removed from the cache: it runs to its exit and is released after.
type coherentBus struct {
	api.Bus
	e *Engine
}

func (b *coherentBus) Write8(addr uint32, v uint8) {
	b.Bus.Write8(addr, v)
	if b.e.cache.isCode(addr) {
		b.e.InvalidateRange(addr, addr+1)
	}
}

func (b *coherentBus) Write16(addr uint32, v uint16) {
	b.Bus.Write16(addr, v)
	if b.e.cache.isCode(addr) {
		b.e.InvalidateRange(addr, addr+2)
	}
}

func (b *coherentBus) Write32(addr uint32, v uint32) {
	b.Bus.Write32(addr, v)
	if b.e.cache.isCode(addr) {
		b.e.InvalidateRange(addr, addr+4)
	}
}
