package jit

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/armature-emu/armature/internal/armir"
	"github.com/armature-emu/armature/internal/asm"
	"github.com/armature-emu/armature/internal/asm/amd64"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/platform"
	"github.com/armature-emu/armature/internal/regalloc"
)

// jitcall jumps to the generated code at code with R12 holding frame and R13
// the *cpu.State of the frame. The generated code returns to the caller of
// jitcall.
func jitcall(code, frame uintptr)

// Native code never changes these registers:
//
//	SP, BP: Go stack
//	R14: the current goroutine
//	R15: GOT reference temporary register for dynamic linking
var (
	// regFrame holds the *nativeFrame.
	regFrame = amd64.REG_R12
	// regState holds the *cpu.State.
	regState = amd64.REG_R13
	// tempRegs hold the temp slots.
	tempRegs = [...]asm.Register{amd64.REG_BX, amd64.REG_SI, amd64.REG_DI}
	// savedRegs hold the saved slots. Values only survive call-outs in the
	// frame, so saved differs from temp in that it is written back.
	savedRegs = [...]asm.Register{amd64.REG_R8, amd64.REG_R9, amd64.REG_R10, amd64.REG_R11}
)

// AX, CX and DX are scratch registers of every lowering.
const (
	scratch0 = amd64.REG_AX
	scratch1 = amd64.REG_CX
)

const nativeSpillSlots = 256

// nativeFrame is shared by the Go side and the generated code.
//
// Note: the generated code reads and writes the fields at the offsets below,
// so changing the layout requires changing them too.
type nativeFrame struct {
	// state is the *cpu.State generated code runs against.
	state uintptr
	// entries points at the first entry of nativeBackend.entries.
	entries uintptr
	// budget is Context.Budget.
	budget uint64
	// current is the id of the running block.
	current int32
	// status is why generated code returned.
	status uint32
	// site is the instruction index generated code returned at.
	site uint32
	// result is the value of a call-out, read on resume.
	result uint32
	// args holds the operands of a call-out or terminator.
	args [3]uint32
	// regs holds register slots live across a call-out: temps, then saved.
	regs   [len(tempRegs) + len(savedRegs)]uint32
	spills [nativeSpillSlots]uint32
}

const (
	frameStateOffset   = 0
	frameEntriesOffset = 8
	frameBudgetOffset  = 16
	frameCurrentOffset = 24
	frameStatusOffset  = 28
	frameSiteOffset    = 32
	frameResultOffset  = 36
	frameArgsOffset    = 40
	frameRegsOffset    = 52
	frameSpillsOffset  = 80
)

const (
	stateROffset      = 0
	stateCPSROffset   = 64
	stateSPSROffset   = 68
	stateCyclesOffset = 72
)

const (
	// statusTerminated is a return at the terminator at site.
	statusTerminated uint32 = iota
	// statusCallOut is a request to perform the op at site and resume after it.
	statusCallOut
)

// nativeBackend compiles blocks to amd64 machine code. Linked exits of its
// blocks jump straight into the linked block while the cycle budget lasts.
type nativeBackend struct {
	frame *nativeFrame
	// entries holds the code address of every native block by id, 0 for ids
	// without one. Generated code indexes it.
	entries []uintptr
	execs   []*nativeExec
}

// NewNativeBackend returns the amd64 backend, or an error if the host cannot
// run generated code.
func NewNativeBackend() (Backend, error) {
	if !platform.CompilerSupported() {
		return nil, errors.New("native backend is not supported on this host")
	}
	return &nativeBackend{frame: &nativeFrame{}, entries: make([]uintptr, 1)}, nil
}

// Name implements Backend.Name
func (b *nativeBackend) Name() string { return "native" }

// Limits implements Backend.Limits
func (b *nativeBackend) Limits() regalloc.Limits {
	return regalloc.Limits{Temp: len(tempRegs), Saved: len(savedRegs), Spill: nativeSpillSlots}
}

// Compile implements Backend.Compile
func (b *nativeBackend) Compile(id int32, blk *armir.Block, alloc *regalloc.Allocation, links []int32) (Executable, error) {
	a, err := amd64.NewAssembler()
	if err != nil {
		return nil, err
	}
	c := &nativeCompiler{
		a:       a,
		blk:     blk,
		alloc:   alloc,
		links:   links,
		site:    map[int]int{},
		pending: make([][]asm.Node, len(blk.Instrs)),
		resume:  map[int]asm.Node{},
	}
	for k, i := range LinkSites(blk) {
		c.site[i] = k
	}
	c.compile(id)
	code, err := a.Assemble()
	if err != nil {
		return nil, fmt.Errorf("assembling block at %#x: %w", blk.Addr, err)
	}
	mem, err := platform.MmapCodeSegment(code)
	if err != nil {
		return nil, fmt.Errorf("mapping block at %#x: %w", blk.Addr, err)
	}

	x := &nativeExec{
		b:      b,
		id:     id,
		blk:    blk,
		code:   mem,
		entry:  uintptr(unsafe.Pointer(&mem[0])),
		resume: make(map[int]uintptr, len(c.resume)),
		site:   c.site,
	}
	for i, n := range c.resume {
		x.resume[i] = uintptr(n.OffsetInBinary())
	}
	for int(id) >= len(b.entries) {
		b.entries = append(b.entries, 0)
	}
	for int(id) >= len(b.execs) {
		b.execs = append(b.execs, nil)
	}
	b.entries[id], b.execs[id] = x.entry, x
	return x, nil
}

// nativeExec is a block in executable memory.
type nativeExec struct {
	b     *nativeBackend
	id    int32
	blk   *armir.Block
	code  []byte
	entry uintptr
	// resume holds the code offset to continue at after the call-out at each
	// instruction index.
	resume map[int]uintptr
	site   map[int]int
}

// Run implements Executable.Run
func (x *nativeExec) Run(ctx *Context) Exit {
	b := x.b
	f := b.frame
	f.state = uintptr(unsafe.Pointer(ctx.State))
	f.entries = uintptr(unsafe.Pointer(&b.entries[0]))
	f.budget = ctx.Budget
	code := x.entry
	for {
		jitcall(code, uintptr(unsafe.Pointer(f)))
		cur := b.execs[f.current]
		i := int(f.site)
		switch f.status {
		case statusCallOut:
			f.result = cur.callOut(ctx, i, f.args)
			code = cur.entry + cur.resume[i]
		case statusTerminated:
			ctx.Current = f.current
			return terminate(ctx, cur.blk, i, f.args[0], cur.site[i])
		default:
			panic(fmt.Sprintf("BUG: invalid native status %d", f.status))
		}
	}
}

// callOut performs the op at instruction i, which generated code leaves to Go.
func (x *nativeExec) callOut(ctx *Context, i int, args [3]uint32) uint32 {
	in := &x.blk.Instrs[i]
	s := ctx.State
	switch op := in.Op; {
	case op.IsPure():
		return armir.Eval(op, in.Aux, args[0], args[1], args[2])
	case op.IsRead():
		return read(ctx, op, args[0])
	case op.IsWrite():
		write(ctx, op, args[0], args[1])
	case op == armir.OpStoreCPSR:
		s.WriteCPSR(args[0])
	case op == armir.OpLoadUserReg:
		return s.UserReg(int(in.Aux))
	case op == armir.OpStoreUserReg:
		s.SetUserReg(int(in.Aux), args[0])
	case op == armir.OpCoprocRead:
		g, n, o := armir.SplitCoprocessorAux(in.Aux)
		return ctx.Coprocessor.CoprocessorRead(g, n, o)
	case op == armir.OpCoprocWrite:
		g, n, o := armir.SplitCoprocessorAux(in.Aux)
		ctx.Coprocessor.CoprocessorWrite(g, n, o, args[0])
	default:
		panic(fmt.Sprintf("BUG: %s does not call out", op))
	}
	return 0
}

// Release implements Executable.Release
func (x *nativeExec) Release() error {
	b := x.b
	if b.execs[x.id] == x {
		b.entries[x.id], b.execs[x.id] = 0, nil
	}
	code := x.code
	x.code = nil
	return platform.MunmapCodeSegment(code)
}

type nativeCompiler struct {
	a     amd64.Assembler
	blk   *armir.Block
	alloc *regalloc.Allocation
	links []int32
	site  map[int]int
	// pending holds the jumps to each instruction index not emitted yet.
	pending [][]asm.Node
	// resume holds the first node after the call-out of each instruction index.
	resume map[int]asm.Node
}

func (c *nativeCompiler) compile(id int32) {
	c.a.CompileConstToMemory(amd64.MOVL, int64(id), regFrame, frameCurrentOffset)
	for i := range c.blk.Instrs {
		if len(c.pending[i]) > 0 {
			c.a.SetJumpTargetOnNext(c.pending[i]...)
			c.pending[i] = nil
		}
		if c.blk.Instrs[i].Op != armir.OpNop {
			c.instr(i)
		}
	}
}

// callsOut returns true if the op at i is evaluated by Go.
func (c *nativeCompiler) callsOut(in *armir.Instr) bool {
	switch in.Op {
	case armir.OpLsl, armir.OpLsr, armir.OpAsr, armir.OpRor:
		return !in.Args[1].Const
	case armir.OpLslCarry, armir.OpLsrCarry, armir.OpAsrCarry, armir.OpRorCarry, armir.OpRrx,
		armir.OpMulCycles, armir.OpClz, armir.OpQAdd, armir.OpQSub, armir.OpQAddSat, armir.OpQSubSat:
		return true
	case armir.OpException, armir.OpHalt:
		return false
	}
	return in.Op.CallsOut()
}

func (c *nativeCompiler) instr(i int) {
	in := &c.blk.Instrs[i]
	if c.callsOut(in) {
		c.callOut(i, in)
		return
	}
	d := c.alloc.Slots[i]
	if in.Op.HasResult() && d < 0 {
		// The optimizer keeps unused results only for ops with side effects,
		// none of which is lowered natively.
		return
	}

	a := c.a
	switch in.Op {
	case armir.OpLoadReg:
		a.CompileMemoryToRegister(amd64.MOVL, regState, stateROffset+4*int64(in.Aux), scratch0)
		c.store(i, scratch0)
	case armir.OpStoreReg:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToMemory(amd64.MOVL, scratch0, regState, stateROffset+4*int64(in.Aux))
	case armir.OpLoadFlag:
		a.CompileMemoryToRegister(amd64.MOVL, regState, stateCPSROffset, scratch0)
		a.CompileConstToRegister(amd64.SHRL, int64(in.Aux), scratch0)
		a.CompileConstToRegister(amd64.ANDL, 1, scratch0)
		c.store(i, scratch0)
	case armir.OpStoreFlag:
		c.load(in.Args[0], scratch0)
		a.CompileConstToRegister(amd64.ANDL, 1, scratch0)
		a.CompileConstToRegister(amd64.SHLL, int64(in.Aux), scratch0)
		a.CompileMemoryToRegister(amd64.MOVL, regState, stateCPSROffset, scratch1)
		a.CompileConstToRegister(amd64.ANDL, imm32(^(uint32(1) << in.Aux)), scratch1)
		a.CompileRegisterToRegister(amd64.ORL, scratch0, scratch1)
		a.CompileRegisterToMemory(amd64.MOVL, scratch1, regState, stateCPSROffset)
	case armir.OpLoadCPSR:
		a.CompileMemoryToRegister(amd64.MOVL, regState, stateCPSROffset, scratch0)
		c.store(i, scratch0)
	case armir.OpLoadSPSR:
		a.CompileMemoryToRegister(amd64.MOVL, regState, stateSPSROffset, scratch0)
		c.store(i, scratch0)
	case armir.OpStoreSPSR:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToMemory(amd64.MOVL, scratch0, regState, stateSPSROffset)
	case armir.OpCycles:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToMemory(amd64.ADDQ, scratch0, regState, stateCyclesOffset)
	case armir.OpJump:
		c.jumpTo(in.Target, a.CompileJump(amd64.JMP))
	case armir.OpJumpIf, armir.OpJumpIfZero, armir.OpBranch:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.TESTL, scratch0, scratch0)
		switch in.Op {
		case armir.OpJumpIf:
			c.jumpTo(in.Target, a.CompileJump(amd64.JNE))
		case armir.OpJumpIfZero:
			c.jumpTo(in.Target, a.CompileJump(amd64.JEQ))
		default:
			c.jumpTo(in.Target, a.CompileJump(amd64.JNE))
			c.jumpTo(in.Target2, a.CompileJump(amd64.JMP))
		}
	case armir.OpExit, armir.OpIdle, armir.OpException, armir.OpHalt:
		c.terminator(i, in)
	default:
		if !in.Op.IsPure() {
			panic(fmt.Sprintf("BUG: no native lowering for %s", in.Op))
		}
		c.pure(i, in)
	}
}

func (c *nativeCompiler) pure(i int, in *armir.Instr) {
	a := c.a
	binary := func(inst asm.Instruction) {
		c.load(in.Args[0], scratch0)
		c.load(in.Args[1], scratch1)
		a.CompileRegisterToRegister(inst, scratch1, scratch0)
	}
	switch in.Op {
	case armir.OpMov:
		c.load(in.Args[0], scratch0)
	case armir.OpAdd:
		binary(amd64.ADDL)
	case armir.OpSub:
		binary(amd64.SUBL)
	case armir.OpAnd:
		binary(amd64.ANDL)
	case armir.OpOr:
		binary(amd64.ORL)
	case armir.OpXor:
		binary(amd64.XORL)
	case armir.OpMul:
		binary(amd64.IMULL)
	case armir.OpAdc:
		binary(amd64.ADDL)
		c.load(in.Args[2], scratch1)
		a.CompileRegisterToRegister(amd64.ADDL, scratch1, scratch0)
	case armir.OpBic:
		c.load(in.Args[1], scratch1)
		a.CompileNoneToRegister(amd64.NOTL, scratch1)
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.ANDL, scratch1, scratch0)
	case armir.OpNot:
		c.load(in.Args[0], scratch0)
		a.CompileNoneToRegister(amd64.NOTL, scratch0)
	case armir.OpCarry:
		// The 64-bit sum of the zero-extended operands carries into bit 32.
		binary(amd64.ADDQ)
		c.load(in.Args[2], scratch1)
		a.CompileRegisterToRegister(amd64.ADDQ, scratch1, scratch0)
		a.CompileConstToRegister(amd64.SHRQ, 32, scratch0)
	case armir.OpOverflow:
		// The 64-bit sum of the sign-extended operands differs from the
		// sign-extended 32-bit sum on overflow.
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.MOVLQSX, scratch0, scratch0)
		c.load(in.Args[1], scratch1)
		a.CompileRegisterToRegister(amd64.MOVLQSX, scratch1, scratch1)
		a.CompileRegisterToRegister(amd64.ADDQ, scratch1, scratch0)
		c.load(in.Args[2], scratch1)
		a.CompileRegisterToRegister(amd64.ADDQ, scratch1, scratch0)
		a.CompileRegisterToRegister(amd64.MOVLQSX, scratch0, scratch1)
		a.CompileRegisterToRegister(amd64.CMPQ, scratch0, scratch1)
		a.CompileNoneToRegister(amd64.SETNE, scratch0)
		a.CompileRegisterToRegister(amd64.MOVBLZX, scratch0, scratch0)
	case armir.OpMulHiU:
		binary(amd64.IMULQ)
		a.CompileConstToRegister(amd64.SHRQ, 32, scratch0)
	case armir.OpMulHiS:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.MOVLQSX, scratch0, scratch0)
		c.load(in.Args[1], scratch1)
		a.CompileRegisterToRegister(amd64.MOVLQSX, scratch1, scratch1)
		a.CompileRegisterToRegister(amd64.IMULQ, scratch1, scratch0)
		a.CompileConstToRegister(amd64.SHRQ, 32, scratch0)
	case armir.OpEqz:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.TESTL, scratch0, scratch0)
		a.CompileNoneToRegister(amd64.SETEQ, scratch0)
		a.CompileRegisterToRegister(amd64.MOVBLZX, scratch0, scratch0)
	case armir.OpSext8:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.MOVBLSX, scratch0, scratch0)
	case armir.OpSext16:
		c.load(in.Args[0], scratch0)
		a.CompileRegisterToRegister(amd64.MOVWLSX, scratch0, scratch0)
	case armir.OpLsl, armir.OpLsr, armir.OpAsr, armir.OpRor:
		c.load(in.Args[0], scratch0)
		c.shift(in.Op, in.Args[1].Value&0xff)
	default:
		panic(fmt.Sprintf("BUG: no native lowering for %s", in.Op))
	}
	c.store(i, scratch0)
}

// shift shifts scratch0 by the constant amount n the way cpu.Shift does.
func (c *nativeCompiler) shift(op armir.Op, n uint32) {
	a := c.a
	switch {
	case n == 0:
	case op == armir.OpLsl && n < 32:
		a.CompileConstToRegister(amd64.SHLL, int64(n), scratch0)
	case op == armir.OpLsr && n < 32:
		a.CompileConstToRegister(amd64.SHRL, int64(n), scratch0)
	case op == armir.OpLsl, op == armir.OpLsr:
		a.CompileRegisterToRegister(amd64.XORL, scratch0, scratch0)
	case op == armir.OpAsr:
		if n > 31 {
			n = 31
		}
		a.CompileConstToRegister(amd64.SARL, int64(n), scratch0)
	case n&31 != 0:
		a.CompileConstToRegister(amd64.RORL, int64(n&31), scratch0)
	}
}

// callOut returns to Go to perform the op at i, then resumes after it.
func (c *nativeCompiler) callOut(i int, in *armir.Instr) {
	a := c.a
	for k := 0; k < in.Op.NumArgs(); k++ {
		c.load(in.Args[k], scratch0)
		a.CompileRegisterToMemory(amd64.MOVL, scratch0, regFrame, frameArgsOffset+4*int64(k))
	}
	live := c.alloc.LiveAcross(i)
	for _, s := range live {
		if reg, off, ok := c.register(s); ok {
			a.CompileRegisterToMemory(amd64.MOVL, reg, regFrame, off)
		}
	}
	a.CompileConstToMemory(amd64.MOVL, int64(i), regFrame, frameSiteOffset)
	a.CompileConstToMemory(amd64.MOVL, int64(statusCallOut), regFrame, frameStatusOffset)
	a.CompileStandAlone(amd64.RET)

	c.resume[i] = a.CompileStandAlone(amd64.NOP)
	for _, s := range live {
		if reg, off, ok := c.register(s); ok {
			a.CompileMemoryToRegister(amd64.MOVL, regFrame, off, reg)
		}
	}
	if c.alloc.Slots[i] >= 0 {
		a.CompileMemoryToRegister(amd64.MOVL, regFrame, frameResultOffset, scratch0)
		c.store(i, scratch0)
	}
}

// terminator returns to Go with the operand of the terminator at i, or jumps
// to the linked block when there is one and the budget allows.
func (c *nativeCompiler) terminator(i int, in *armir.Instr) {
	a := c.a
	c.load(in.Args[0], scratch0)
	a.CompileRegisterToMemory(amd64.MOVL, scratch0, regFrame, frameArgsOffset)
	a.CompileConstToMemory(amd64.MOVL, int64(i), regFrame, frameSiteOffset)
	a.CompileConstToMemory(amd64.MOVL, int64(statusTerminated), regFrame, frameStatusOffset)

	if k, ok := c.site[i]; ok && in.Op == armir.OpExit {
		// The linked block does not read R[PC], but the state stays exact.
		a.CompileRegisterToMemory(amd64.MOVL, scratch0, regState, stateROffset+4*cpu.PC)

		a.CompileMemoryToRegister(amd64.MOVQ, regFrame, frameBudgetOffset, scratch0)
		a.CompileMemoryToRegister(amd64.SUBQ, regState, stateCyclesOffset, scratch0)
		spent := a.CompileJump(amd64.JLE)

		a.CompileConstToRegister(amd64.MOVQ, int64(uintptr(unsafe.Pointer(&c.links[k]))), scratch0)
		a.CompileMemoryToRegister(amd64.MOVL, scratch0, 0, scratch0)
		a.CompileRegisterToRegister(amd64.TESTL, scratch0, scratch0)
		unlinked := a.CompileJump(amd64.JMI)

		a.CompileMemoryToRegister(amd64.MOVQ, regFrame, frameEntriesOffset, scratch1)
		a.CompileMemoryWithIndexToRegister(amd64.MOVQ, scratch1, 0, scratch0, 8, scratch1)
		a.CompileRegisterToRegister(amd64.TESTQ, scratch1, scratch1)
		notNative := a.CompileJump(amd64.JEQ)
		a.CompileJumpToRegister(amd64.JMP, scratch1)

		a.SetJumpTargetOnNext(spent, unlinked, notNative)
	}
	a.CompileStandAlone(amd64.RET)
}

// jumpTo makes node jump to the instruction index target.
func (c *nativeCompiler) jumpTo(target int, node asm.Node) {
	c.pending[target] = append(c.pending[target], node)
}

// register returns the register of slot s and its save area in the frame, or
// false for spill slots.
func (c *nativeCompiler) register(s int) (reg asm.Register, off int64, ok bool) {
	idx := c.alloc.Index[s]
	switch c.alloc.Kinds[s] {
	case regalloc.SlotTemp:
		return tempRegs[idx], frameRegsOffset + 4*int64(idx), true
	case regalloc.SlotSaved:
		return savedRegs[idx], frameRegsOffset + 4*int64(len(tempRegs)+idx), true
	}
	return asm.NilRegister, 0, false
}

func (c *nativeCompiler) spillOffset(s int) int64 {
	return frameSpillsOffset + 4*int64(c.alloc.Index[s])
}

// load moves the operand arg to dst.
func (c *nativeCompiler) load(arg armir.Arg, dst asm.Register) {
	if arg.Const {
		c.a.CompileConstToRegister(amd64.MOVL, imm32(arg.Value), dst)
		return
	}
	s := c.alloc.Slot(arg)
	if reg, _, ok := c.register(s); ok {
		c.a.CompileRegisterToRegister(amd64.MOVL, reg, dst)
	} else {
		c.a.CompileMemoryToRegister(amd64.MOVL, regFrame, c.spillOffset(s), dst)
	}
}

// store moves src to the slot of the result of instruction i.
func (c *nativeCompiler) store(i int, src asm.Register) {
	s := c.alloc.Slots[i]
	if s < 0 {
		return
	}
	if reg, _, ok := c.register(s); ok {
		c.a.CompileRegisterToRegister(amd64.MOVL, src, reg)
	} else {
		c.a.CompileRegisterToMemory(amd64.MOVL, src, regFrame, c.spillOffset(s))
	}
}

// imm32 is v as the sign-extended immediate of an L-sized instruction.
func imm32(v uint32) int64 { return int64(int32(v)) }
