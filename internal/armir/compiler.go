package armir

import (
	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/isa"
)

// CodeReader is the instruction fetch half of the bus.
type CodeReader = cpu.Fetcher

// CompilerConfig configures a Compiler.
type CompilerConfig struct {
	Variant api.Variant
	// MaxInstructions caps the number of guest instructions of one block.
	MaxInstructions int
	// Coprocessor is true when the core has a system control coprocessor.
	// Without one, MRC and MCR compile to the undefined instruction exception.
	Coprocessor bool
}

// DefaultMaxInstructions is the block length cap used when
// CompilerConfig.MaxInstructions is not positive.
const DefaultMaxInstructions = 64

// Compiler translates runs of guest instructions to IR blocks.
type Compiler struct {
	dec *isa.Decoder
	cfg CompilerConfig
}

// NewCompiler returns a Compiler decoding with dec, which must be built for
// cfg.Variant.
func NewCompiler(dec *isa.Decoder, cfg CompilerConfig) *Compiler {
	if cfg.MaxInstructions <= 0 {
		cfg.MaxInstructions = DefaultMaxInstructions
	}
	return &Compiler{dec: dec, cfg: cfg}
}

// Compile translates the guest code at addr, executing in the state attr, to
// a block. The block ends at the first instruction that may write the program
// counter, change the mode or T bit, enter an exception, halt or write the
// coprocessor, after MaxInstructions instructions, or at the top of the address
// space, where End is zero. The last instruction of the returned block is
// always a terminator.
func (c *Compiler) Compile(code CodeReader, addr uint32, attr Attr) *Block {
	b := &builder{c: c, code: code, attr: attr, thumb: attr.Thumb(), width: 4}
	if b.thumb {
		b.width = 2
		addr &^= 1
	} else {
		addr &^= 3
	}
	b.blk = &Block{Addr: addr, Attr: attr}
	b.addr = addr
	for !b.stop {
		w, f := b.fetch(b.addr)
		b.instruction(w, f)
		b.blk.Instructions++
		b.addr += b.width
		// A block never wraps past the top of the address space.
		if b.blk.Instructions >= c.cfg.MaxInstructions || b.addr == 0 {
			break
		}
	}
	b.blk.End = b.addr
	if !b.closed {
		b.chargePending()
		b.emit(Instr{Op: OpExit, Args: [3]Arg{C(b.addr)}})
	}
	return b.blk
}

// builder holds the state of one Compile call.
type builder struct {
	c     *Compiler
	code  CodeReader
	blk   *Block
	attr  Attr
	thumb bool
	width uint32

	// addr is the address of the instruction being compiled.
	addr uint32
	// pending is the cycle count of the instructions compiled so far that has
	// not been charged yet. It is charged before every terminator.
	pending int
	// body is the constant cycle cost of the current instruction on its
	// executed path, minus the skip cost already in pending for conditional
	// instructions.
	body int
	// closed is set when the current control path ended in a terminator.
	closed bool
	// stop is set when the block ends after the current instruction.
	stop bool
}

func (b *builder) fetch(addr uint32) (isa.Word, isa.Format) {
	if b.thumb {
		e := b.c.dec.Thumb(b.code.Fetch16(addr))
		return e.Word, e.Format
	}
	w := isa.Word(b.code.Fetch32(addr))
	return w, b.c.dec.ARM(w)
}

func (b *builder) emit(in Instr) Arg {
	b.blk.Instrs = append(b.blk.Instrs, in)
	return V(len(b.blk.Instrs) - 1)
}

func (b *builder) op(o Op, args ...Arg) Arg {
	in := Instr{Op: o}
	copy(in.Args[:], args)
	return b.emit(in)
}

func (b *builder) opAux(o Op, aux uint32, args ...Arg) Arg {
	in := Instr{Op: o, Aux: aux}
	copy(in.Args[:], args)
	return b.emit(in)
}

// here returns the index of the next instruction emitted.
func (b *builder) here() int { return len(b.blk.Instrs) }

func (b *builder) jump(o Op, cond Arg) int {
	b.emit(Instr{Op: o, Args: [3]Arg{cond}})
	return b.here() - 1
}

func (b *builder) patch(j int) { b.blk.Instrs[j].Target = b.here() }

// pc is the value the current instruction reads for R15.
func (b *builder) pc() uint32 { return b.addr + 2*b.width }

// storedPC is the value stores of R15 write.
func (b *builder) storedPC() uint32 { return b.addr + 12 }

func (b *builder) reg(r int) Arg {
	if r == cpu.PC {
		return C(b.pc())
	}
	return b.opAux(OpLoadReg, uint32(r))
}

func (b *builder) setReg(r int, v Arg) { b.opAux(OpStoreReg, uint32(r), v) }

func (b *builder) flag(f cpu.Flag) Arg { return b.opAux(OpLoadFlag, f) }

func (b *builder) setFlag(f cpu.Flag, v Arg) { b.opAux(OpStoreFlag, f, v) }

func (b *builder) setNZ(res Arg) {
	b.setFlag(cpu.N, b.op(OpLsr, res, C(31)))
	b.setFlag(cpu.Z, b.op(OpEqz, res))
}

// setQ sets the sticky Q flag when q is nonzero.
func (b *builder) setQ(q Arg) {
	b.setFlag(cpu.Q, b.op(OpOr, b.flag(cpu.Q), q))
}

func (b *builder) hasSPSR() bool {
	m := b.attr.Mode()
	return m != api.ModeUser && m != api.ModeSystem
}

func (b *builder) privileged() bool { return b.attr.Mode() != api.ModeUser }

func (b *builder) v5() bool { return b.c.cfg.Variant == api.VariantARMv5TE }

func (b *builder) chargePending() {
	if b.pending != 0 {
		b.op(OpCycles, C(uint32(b.pending)))
	}
}

// terminate charges the cycles of the path and ends it with the terminator
// in. The block ends after the current instruction.
func (b *builder) terminate(in Instr) {
	if n := b.pending + b.body; n != 0 {
		b.op(OpCycles, C(uint32(n)))
	}
	b.emit(in)
	b.closed = true
	b.stop = true
}

func (b *builder) exit(target Arg) {
	b.terminate(Instr{Op: OpExit, Args: [3]Arg{target}})
}

// writePC ends the block continuing at v.
func (b *builder) writePC(v Arg) { b.exit(v) }

// next ends the block continuing at the following instruction.
func (b *builder) next() { b.exit(C(b.addr + b.width)) }

func (b *builder) exception(v api.Vector) {
	b.body += cpu.CyclesException
	b.terminate(Instr{Op: OpException, Aux: v, Args: [3]Arg{C(cpu.ReturnAddress(v, b.addr+b.width))}})
}

// ifElse emits then and els on the two sides of a test of cond. Each side
// must either fall through or terminate.
func (b *builder) ifElse(cond Arg, then, els func()) {
	body := b.body
	j := b.jump(OpJumpIfZero, cond)
	then()
	thenClosed := b.closed
	k := -1
	if !thenClosed {
		k = b.jump(OpJump, Arg{})
	}
	b.patch(j)
	b.closed = false
	thenBody := b.body
	b.body = body
	els()
	if k >= 0 {
		b.patch(k)
		b.body = thenBody
	}
	b.closed = thenClosed && b.closed
}

func (b *builder) instruction(w isa.Word, f isa.Format) {
	b.closed = false
	switch cond := w.Cond(); cond {
	case isa.CondAL:
		b.body = 0
		b.execute(f, w)
	case isa.CondNV:
		b.body = 0
		b.unconditional(f, w)
	default:
		b.pending += cpu.CyclesSkipped
		b.body = -cpu.CyclesSkipped
		v, negate := b.condition(cond)
		skip := OpJumpIfZero
		if negate {
			skip = OpJumpIf
		}
		j := b.jump(skip, v)
		b.execute(f, w)
		if !b.closed && b.body != 0 {
			b.op(OpCycles, C(uint32(b.body)))
		}
		b.patch(j)
		// The skipped path continues with the next instruction.
		b.closed = false
		return
	}
	if !b.closed {
		b.pending += b.body
	}
}

func (b *builder) execute(f isa.Format, w isa.Word) {
	switch f {
	case isa.FormatDataProcessing:
		b.dataProcessing(w)
	case isa.FormatPSRTransfer:
		b.psrTransfer(w)
	case isa.FormatMultiply:
		b.multiply(w)
	case isa.FormatMultiplyLong:
		b.multiplyLong(w)
	case isa.FormatSwap:
		b.swap(w)
	case isa.FormatBranchExchange:
		b.branchExchange(w)
	case isa.FormatHalfwordTransfer:
		b.halfwordTransfer(w)
	case isa.FormatSingleDataTransfer:
		b.singleDataTransfer(w)
	case isa.FormatBlockTransfer:
		b.blockTransfer(w)
	case isa.FormatBranch:
		b.branch(w)
	case isa.FormatCoprocessorRegisterTransfer:
		b.coprocessorRegisterTransfer(w)
	case isa.FormatSoftwareInterrupt:
		b.exception(api.VectorSoftwareInterrupt)
	case isa.FormatCountLeadingZeros:
		b.countLeadingZeros(w)
	case isa.FormatSaturatingArithmetic:
		b.saturatingArithmetic(w)
	case isa.FormatSignedMultiplyHalfword:
		b.signedMultiplyHalfword(w)
	case isa.FormatThumbLongBranchPrefix:
		b.thumbLongBranchPrefix(w)
	case isa.FormatThumbLongBranchSuffix:
		b.thumbLongBranchSuffix(w)
	default:
		b.exception(api.VectorUndefined)
	}
}

func (b *builder) unconditional(f isa.Format, w isa.Word) {
	switch {
	case !b.v5():
		b.body += cpu.CyclesSkipped
	case f == isa.FormatBranch:
		b.branch(w)
	case f == isa.FormatSingleDataTransfer: // PLD
		b.body += cpu.CyclesDataProcess
	default:
		b.exception(api.VectorUndefined)
	}
}

// condition returns a value that is nonzero when cond holds, or when negate
// is true, a value that is zero when cond holds.
func (b *builder) condition(cond uint32) (v Arg, negate bool) {
	negate = cond&1 != 0
	switch cond &^ 1 {
	case 0x0: // EQ, NE
		v = b.flag(cpu.Z)
	case 0x2: // CS, CC
		v = b.flag(cpu.C)
	case 0x4: // MI, PL
		v = b.flag(cpu.N)
	case 0x6: // VS, VC
		v = b.flag(cpu.V)
	case 0x8: // HI, LS
		v = b.op(OpAnd, b.flag(cpu.C), b.op(OpEqz, b.flag(cpu.Z)))
	case 0xa: // GE, LT
		v = b.op(OpEqz, b.op(OpXor, b.flag(cpu.N), b.flag(cpu.V)))
	case 0xc: // GT, LE
		nv := b.op(OpEqz, b.op(OpXor, b.flag(cpu.N), b.flag(cpu.V)))
		v = b.op(OpAnd, b.op(OpEqz, b.flag(cpu.Z)), nv)
	}
	return
}
