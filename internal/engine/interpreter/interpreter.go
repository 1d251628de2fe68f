// Package interpreter executes ARM and Thumb instructions one at a time
// against a cpu.State. It is the reference semantics of the core: the JIT
// compiler mirrors every routine here.
package interpreter

import (
	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// Interpreter executes the instruction at the head of the pipeline.
type Interpreter struct {
	state *cpu.State
	bus   api.Bus
	// cp is nil on cores without a system control coprocessor.
	cp  api.Coprocessor
	dec *isa.Decoder

	// addr is the address of the executing instruction.
	addr uint32
	// branched is set when the executing instruction wrote R[PC] or entered an
	// exception, so the pipeline is refilled instead of advanced.
	branched bool
}

// New returns an Interpreter of the given state. The bus is also used as the
// coprocessor when the decoder's variant has one and the bus implements it.
func New(state *cpu.State, bus api.Bus, dec *isa.Decoder) *Interpreter {
	it := &Interpreter{state: state, bus: bus, dec: dec}
	if cp, ok := bus.(api.Coprocessor); ok && dec.Variant == api.VariantARMv5TE {
		it.cp = cp
	}
	return it
}

// Current returns the expanded instruction in Pipe[0] and its format.
func (it *Interpreter) Current() (isa.Word, isa.Format) {
	s := it.state
	if s.Thumb() {
		e := it.dec.Thumb(uint16(s.Pipe[0]))
		return e.Word, e.Format
	}
	w := isa.Word(s.Pipe[0])
	return w, it.dec.ARM(w)
}

// Step executes the instruction in Pipe[0], then advances or refills the pipeline.
func (it *Interpreter) Step() {
	s := it.state
	w, f := it.Current()
	it.addr = s.CurrentAddress()
	it.branched = false

	switch cond := w.Cond(); {
	case cond == isa.CondAL:
		it.execute(f, w)
	case cond == isa.CondNV:
		it.unconditional(f, w)
	case s.Condition(cond):
		it.execute(f, w)
	default:
		s.Cycles += cpu.CyclesSkipped
	}

	if it.branched {
		s.Flush(s.R[cpu.PC], it.bus)
	} else {
		s.Advance(it.bus)
	}
}

func (it *Interpreter) execute(f isa.Format, w isa.Word) {
	switch f {
	case isa.FormatDataProcessing:
		it.dataProcessing(w)
	case isa.FormatPSRTransfer:
		it.psrTransfer(w)
	case isa.FormatMultiply:
		it.multiply(w)
	case isa.FormatMultiplyLong:
		it.multiplyLong(w)
	case isa.FormatSwap:
		it.swap(w)
	case isa.FormatBranchExchange:
		it.branchExchange(w)
	case isa.FormatHalfwordTransfer:
		it.halfwordTransfer(w)
	case isa.FormatSingleDataTransfer:
		it.singleDataTransfer(w)
	case isa.FormatBlockTransfer:
		it.blockTransfer(w)
	case isa.FormatBranch:
		it.branch(w)
	case isa.FormatCoprocessorRegisterTransfer:
		it.coprocessorRegisterTransfer(w)
	case isa.FormatSoftwareInterrupt:
		it.exception(api.VectorSoftwareInterrupt)
	case isa.FormatCountLeadingZeros:
		it.countLeadingZeros(w)
	case isa.FormatSaturatingArithmetic:
		it.saturatingArithmetic(w)
	case isa.FormatSignedMultiplyHalfword:
		it.signedMultiplyHalfword(w)
	case isa.FormatThumbLongBranchPrefix:
		it.thumbLongBranchPrefix(w)
	case isa.FormatThumbLongBranchSuffix:
		it.thumbLongBranchSuffix(w)
	default:
		// Undefined, and the coprocessor data operations and transfers no
		// coprocessor of either core accepts.
		it.exception(api.VectorUndefined)
	}
}

// unconditional executes an ARM instruction with the condition field 0xf:
// never on ARMv4T; BLX or PLD on ARMv5TE, every other encoding is undefined.
func (it *Interpreter) unconditional(f isa.Format, w isa.Word) {
	s := it.state
	switch {
	case it.dec.Variant != api.VariantARMv5TE:
		s.Cycles += cpu.CyclesSkipped
	case f == isa.FormatBranch:
		it.branch(w)
	case f == isa.FormatSingleDataTransfer:
		s.Cycles += cpu.CyclesDataProcess
	default:
		it.exception(api.VectorUndefined)
	}
}

// writePC branches to v. The pipeline realigns it to the current state.
func (it *Interpreter) writePC(v uint32) {
	it.state.R[cpu.PC] = v
	it.branched = true
}

// exception enters the exception at v, returning to the next instruction.
func (it *Interpreter) exception(v api.Vector) {
	s := it.state
	s.EnterException(v, cpu.ReturnAddress(v, it.addr+s.Width()))
	s.Cycles += cpu.CyclesException
	it.branched = true
}

// setThumb sets the T bit from the low bit of an interworking branch target.
func (it *Interpreter) setThumb(target uint32) {
	it.state.SetFlag(cpu.T, target&1)
}
