package armature

import (
	"errors"
	"fmt"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/engine/interpreter"
	"github.com/armature-emu/armature/internal/engine/jit"
	"github.com/armature-emu/armature/internal/isa"
	"github.com/armature-emu/armature/internal/logging"
)

// Core is one emulated processor attached to its memory bus.
//
// A Core is not safe for concurrent use. Two cores of one machine are stepped
// in turn by the same goroutine.
type Core struct {
	name  string
	state *cpu.State
	bus   api.Bus
	dec   *isa.Decoder

	// Exactly one of interp and engine is set.
	interp *interpreter.Interpreter
	engine *jit.Engine

	log *logging.Logger
}

// NewCore returns a core configured by c that has just been reset: the
// pipeline is filled from the reset vector.
//
// The bus is also used as the system control coprocessor when the core is
// ARMv5TE and bus implements api.Coprocessor.
func NewCore(c *Config, bus api.Bus) (*Core, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	if bus == nil {
		return nil, errors.New("nil bus")
	}
	if c.vectorBase != 0 && c.vectorBase != HighVectorBase {
		return nil, fmt.Errorf("invalid exception base %#x: must be 0 or %#x", c.vectorBase, HighVectorBase)
	}
	if c.maxInstructions < 0 {
		return nil, fmt.Errorf("invalid max block instructions %d", c.maxInstructions)
	}

	core := &Core{
		name:  c.name,
		state: cpu.NewState(c.variant, c.vectorBase),
		bus:   bus,
		dec:   isa.NewDecoder(c.variant),
		log:   logging.NewLogger(c.logWriter, c.logScopes),
	}
	if c.jit {
		var backend jit.Backend
		if c.native {
			b, err := jit.NewNativeBackend()
			if err != nil {
				return nil, fmt.Errorf("native backend: %w", err)
			}
			backend = b
		}
		core.engine = jit.New(core.state, bus, core.dec, jit.Config{
			Name:            c.name,
			MaxInstructions: c.maxInstructions,
			Optimize:        c.optimize,
			ChainBudget:     c.chainBudget,
			Backend:         backend,
			Logger:          core.log,
		})
	} else {
		core.interp = interpreter.New(core.state, bus, core.dec)
	}
	core.FlushPipeline()
	return core, nil
}

// Name returns the name of the core in logs.
func (c *Core) Name() string { return c.name }

// Backend returns how guest code runs: "interpreter", or the name of the JIT
// backend.
func (c *Core) Backend() string {
	if c.engine == nil {
		return "interpreter"
	}
	return c.engine.BackendName()
}

// Step executes one guest instruction, or one JIT block and the blocks linked
// from it. It returns false when no progress was made: the core is halted, or
// the JIT ran an idle loop.
func (c *Core) Step() bool {
	s := c.state
	if s.Halted {
		return false
	}
	if c.engine != nil {
		return c.engine.Step()
	}
	c.interp.Step()
	if s.Halted {
		c.log.Halt(c.name, s.CurrentAddress(), s.Cycles)
	}
	return true
}

// FlushPipeline refills the prefetch stages from the address in R15. Call it
// after writing R15 or the T bit from outside the core.
func (c *Core) FlushPipeline() {
	c.state.Flush(c.state.R[cpu.PC], c.bus)
}

// HandleException enters the exception at vector v before the instruction
// that would execute next. Interrupt masks are not checked: see RaiseIRQ and
// RaiseFIQ.
func (c *Core) HandleException(v api.Vector) {
	s := c.state
	s.Raise(v, c.bus)
	c.log.Exception(c.name, api.VectorName(v), s.R[cpu.LR], s.CurrentAddress())
}

// RaiseIRQ enters the IRQ exception unless the CPSR I bit masks it, and returns
// true if it did. A masked interrupt still wakes a halted core.
func (c *Core) RaiseIRQ() bool {
	return c.raise(api.VectorIRQ)
}

// RaiseFIQ enters the FIQ exception unless the CPSR F bit masks it, and returns
// true if it did. A masked interrupt still wakes a halted core.
func (c *Core) RaiseFIQ() bool {
	return c.raise(api.VectorFIQ)
}

func (c *Core) raise(v api.Vector) bool {
	if c.state.InterruptMasked(v) {
		c.state.Halted = false
		return false
	}
	c.HandleException(v)
	return true
}

// DumpRegisters returns the register file, status registers and cycle count
// as a table.
func (c *Core) DumpRegisters() string {
	return c.state.String()
}

// DisassembleCurrent returns the address, encoding and assembly of the
// instruction that executes next, ex. "02000000: e3a00001  mov r0, #0x1".
func (c *Core) DisassembleCurrent() string {
	s := c.state
	addr := s.CurrentAddress()
	if s.Thumb() {
		e := c.dec.Thumb(uint16(s.Pipe[0]))
		return fmt.Sprintf("%08x: %04x      %s", addr, s.Pipe[0], isa.Disassemble(e.Word, e.Format, addr, true))
	}
	w := isa.Word(s.Pipe[0])
	return fmt.Sprintf("%08x: %08x  %s", addr, s.Pipe[0], isa.Disassemble(w, c.dec.ARM(w), addr, false))
}

// Reg returns register i of the current mode. R15 reads two instructions
// ahead of the one that executes next.
func (c *Core) Reg(i int) uint32 { return c.state.R[i] }

// SetReg sets register i of the current mode. Writing R15 takes effect at the
// next FlushPipeline.
func (c *Core) SetReg(i int, v uint32) { c.state.R[i] = v }

// CPSR returns the current program status register.
func (c *Core) CPSR() uint32 { return c.state.CPSR }

// SetCPSR replaces the current program status register, switching register
// banks when the mode changes. Call FlushPipeline after changing the T bit.
func (c *Core) SetCPSR(v uint32) { c.state.WriteCPSR(v) }

// Cycles returns the guest cycles executed since the core was created.
func (c *Core) Cycles() uint64 { return c.state.Cycles }

// Halted returns true while the core waits for an interrupt.
func (c *Core) Halted() bool { return c.state.Halted }

// Reset puts the core into its reset state and refills the pipeline from the
// reset vector. The cycle count restarts at zero. Compiled blocks are kept, as
// memory is unchanged.
func (c *Core) Reset() {
	c.state.Reset()
	c.FlushPipeline()
}

// InvalidateRange drops the compiled code covering guest addresses
// [start, end). Call it after the platform writes guest code behind the core's
// back, ex. by DMA. Writes by the core itself are tracked. An end of zero is the
// top of the address space.
func (c *Core) InvalidateRange(start, end uint32) {
	if c.engine != nil {
		c.engine.InvalidateRange(start, end)
	}
}

// InvalidateAll drops all compiled code.
func (c *Core) InvalidateAll() {
	if c.engine != nil {
		c.engine.InvalidateAll()
	}
}

// Close releases the compiled code of the core. The core must not be used
// afterwards.
func (c *Core) Close() error {
	if c.engine != nil {
		return c.engine.Close()
	}
	return nil
}
