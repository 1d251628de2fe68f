package jit

import (
	"fmt"

	"github.com/armature-emu/armature/internal/armir"
	"github.com/armature-emu/armature/internal/regalloc"
)

// threadedBackend is the portable backend: every IR instruction becomes a
// closure returning the index of the next one, and slots are words of a
// per-block frame.
type threadedBackend struct{}

// NewThreadedBackend returns the closure-threaded backend. It runs on every host.
func NewThreadedBackend() Backend { return threadedBackend{} }

// Name implements Backend.Name
func (threadedBackend) Name() string { return "threaded" }

// Limits implements Backend.Limits
//
// Slot kinds mean nothing to closures, so every kind is plentiful.
func (threadedBackend) Limits() regalloc.Limits {
	return regalloc.Limits{Temp: 1 << 16, Saved: 1 << 16, Spill: 1 << 16}
}

// Compile implements Backend.Compile
func (threadedBackend) Compile(_ int32, blk *armir.Block, alloc *regalloc.Allocation, _ []int32) (Executable, error) {
	c := threadedCompiler{blk: blk, alloc: alloc, pos: make([]int, len(blk.Instrs)), site: map[int]int{}}
	for k, i := range LinkSites(blk) {
		c.site[i] = k
	}
	n := 0
	for i := range blk.Instrs {
		if blk.Instrs[i].Op != armir.OpNop {
			c.pos[i] = n
			n++
		}
	}
	// A deleted instruction continues at the next live one.
	for i := len(blk.Instrs) - 1; i >= 0; i-- {
		if blk.Instrs[i].Op == armir.OpNop {
			if i+1 < len(blk.Instrs) {
				c.pos[i] = c.pos[i+1]
			} else {
				c.pos[i] = n
			}
		}
	}

	x := &threadedExec{blk: blk, ops: make([]threadedOp, 0, n)}
	x.frame.regs = make([]uint32, len(alloc.Kinds))
	for i := range blk.Instrs {
		if blk.Instrs[i].Op != armir.OpNop {
			x.ops = append(x.ops, c.compile(i))
		}
	}
	return x, nil
}

type threadedOp func(f *threadedFrame) int

type threadedFrame struct {
	ctx  *Context
	regs []uint32
	exit Exit
}

type threadedExec struct {
	blk   *armir.Block
	ops   []threadedOp
	frame threadedFrame
}

// Run implements Executable.Run
func (x *threadedExec) Run(ctx *Context) Exit {
	f := &x.frame
	f.ctx = ctx
	for pc := 0; pc >= 0; {
		pc = x.ops[pc](f)
	}
	f.ctx = nil
	return f.exit
}

// Release implements Executable.Release
func (x *threadedExec) Release() error {
	x.ops = nil
	return nil
}

// operand is a constant, or the frame word of a slot.
type operand struct {
	konst bool
	v     uint32
}

func (o operand) get(regs []uint32) uint32 {
	if o.konst {
		return o.v
	}
	return regs[o.v]
}

type threadedCompiler struct {
	blk   *armir.Block
	alloc *regalloc.Allocation
	// pos maps instruction indices to op indices.
	pos  []int
	site map[int]int
}

func (c *threadedCompiler) operands(in *armir.Instr) (ops [3]operand) {
	for k := 0; k < in.Op.NumArgs(); k++ {
		if a := in.Args[k]; a.Const {
			ops[k] = operand{konst: true, v: a.Value}
		} else {
			ops[k] = operand{v: uint32(c.alloc.Slot(a))}
		}
	}
	return
}

func (c *threadedCompiler) compile(i int) threadedOp {
	in := &c.blk.Instrs[i]
	ops := c.operands(in)
	a, b, x := ops[0], ops[1], ops[2]
	d := c.alloc.Slots[i]
	next := c.pos[i] + 1
	aux := in.Aux

	if in.Op.IsPure() {
		return c.pure(in, d, next, a, b, x)
	}

	switch in.Op {
	case armir.OpLoadReg:
		return func(f *threadedFrame) int {
			if d >= 0 {
				f.regs[d] = f.ctx.State.R[aux]
			}
			return next
		}
	case armir.OpStoreReg:
		return func(f *threadedFrame) int {
			f.ctx.State.R[aux] = a.get(f.regs)
			return next
		}
	case armir.OpLoadUserReg:
		return func(f *threadedFrame) int {
			v := f.ctx.State.UserReg(int(aux))
			if d >= 0 {
				f.regs[d] = v
			}
			return next
		}
	case armir.OpStoreUserReg:
		return func(f *threadedFrame) int {
			f.ctx.State.SetUserReg(int(aux), a.get(f.regs))
			return next
		}
	case armir.OpLoadFlag:
		return func(f *threadedFrame) int {
			if d >= 0 {
				f.regs[d] = f.ctx.State.Flag(aux)
			}
			return next
		}
	case armir.OpStoreFlag:
		return func(f *threadedFrame) int {
			f.ctx.State.SetFlag(aux, a.get(f.regs))
			return next
		}
	case armir.OpLoadCPSR:
		return func(f *threadedFrame) int {
			if d >= 0 {
				f.regs[d] = f.ctx.State.CPSR
			}
			return next
		}
	case armir.OpStoreCPSR:
		return func(f *threadedFrame) int {
			f.ctx.State.WriteCPSR(a.get(f.regs))
			return next
		}
	case armir.OpLoadSPSR:
		return func(f *threadedFrame) int {
			if d >= 0 {
				f.regs[d] = f.ctx.State.SPSR
			}
			return next
		}
	case armir.OpStoreSPSR:
		return func(f *threadedFrame) int {
			f.ctx.State.SPSR = a.get(f.regs)
			return next
		}
	case armir.OpRead8, armir.OpRead8S, armir.OpRead16, armir.OpRead16S, armir.OpRead32:
		op := in.Op
		return func(f *threadedFrame) int {
			v := read(f.ctx, op, a.get(f.regs))
			if d >= 0 {
				f.regs[d] = v
			}
			return next
		}
	case armir.OpWrite8, armir.OpWrite16, armir.OpWrite32:
		op := in.Op
		return func(f *threadedFrame) int {
			write(f.ctx, op, a.get(f.regs), b.get(f.regs))
			return next
		}
	case armir.OpCoprocRead:
		g, n, o := armir.SplitCoprocessorAux(aux)
		return func(f *threadedFrame) int {
			v := f.ctx.Coprocessor.CoprocessorRead(g, n, o)
			if d >= 0 {
				f.regs[d] = v
			}
			return next
		}
	case armir.OpCoprocWrite:
		g, n, o := armir.SplitCoprocessorAux(aux)
		return func(f *threadedFrame) int {
			f.ctx.Coprocessor.CoprocessorWrite(g, n, o, a.get(f.regs))
			return next
		}
	case armir.OpCycles:
		return func(f *threadedFrame) int {
			f.ctx.State.Cycles += uint64(a.get(f.regs))
			return next
		}
	case armir.OpJump:
		t := c.pos[in.Target]
		return func(*threadedFrame) int { return t }
	case armir.OpJumpIf:
		t := c.pos[in.Target]
		return func(f *threadedFrame) int {
			if a.get(f.regs) != 0 {
				return t
			}
			return next
		}
	case armir.OpJumpIfZero:
		t := c.pos[in.Target]
		return func(f *threadedFrame) int {
			if a.get(f.regs) == 0 {
				return t
			}
			return next
		}
	case armir.OpBranch:
		t, t2 := c.pos[in.Target], c.pos[in.Target2]
		return func(f *threadedFrame) int {
			if a.get(f.regs) != 0 {
				return t
			}
			return t2
		}
	case armir.OpExit, armir.OpIdle, armir.OpException, armir.OpHalt:
		blk, site := c.blk, c.site[i]
		return func(f *threadedFrame) int {
			f.exit = terminate(f.ctx, blk, i, a.get(f.regs), site)
			return -1
		}
	}
	panic(fmt.Sprintf("BUG: no threaded lowering for %s", in.Op))
}

func (c *threadedCompiler) pure(in *armir.Instr, d, next int, a, b, x operand) threadedOp {
	if d < 0 {
		return func(*threadedFrame) int { return next }
	}
	switch in.Op {
	case armir.OpMov:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs)
			return next
		}
	case armir.OpAdd:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) + b.get(f.regs)
			return next
		}
	case armir.OpSub:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) - b.get(f.regs)
			return next
		}
	case armir.OpAnd:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) & b.get(f.regs)
			return next
		}
	case armir.OpOr:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) | b.get(f.regs)
			return next
		}
	case armir.OpXor:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) ^ b.get(f.regs)
			return next
		}
	case armir.OpBic:
		return func(f *threadedFrame) int {
			f.regs[d] = a.get(f.regs) &^ b.get(f.regs)
			return next
		}
	case armir.OpEqz:
		return func(f *threadedFrame) int {
			if a.get(f.regs) == 0 {
				f.regs[d] = 1
			} else {
				f.regs[d] = 0
			}
			return next
		}
	}
	op, aux := in.Op, in.Aux
	return func(f *threadedFrame) int {
		r := f.regs
		r[d] = armir.Eval(op, aux, a.get(r), b.get(r), x.get(r))
		return next
	}
}

// read performs a bus read op the way armir.Interpret does.
func read(ctx *Context, op armir.Op, addr uint32) uint32 {
	bus := ctx.Bus
	switch op {
	case armir.OpRead8:
		return uint32(bus.Read8(addr))
	case armir.OpRead8S:
		return uint32(int8(bus.Read8(addr)))
	case armir.OpRead16:
		return uint32(bus.Read16(addr))
	case armir.OpRead16S:
		return uint32(int16(bus.Read16(addr)))
	case armir.OpRead32:
		return bus.Read32(addr)
	}
	panic(fmt.Sprintf("BUG: %s is not a read", op))
}

// write performs a bus write op.
func write(ctx *Context, op armir.Op, addr, v uint32) {
	bus := ctx.Bus
	switch op {
	case armir.OpWrite8:
		bus.Write8(addr, uint8(v))
	case armir.OpWrite16:
		bus.Write16(addr, uint16(v))
	case armir.OpWrite32:
		bus.Write32(addr, v)
	default:
		panic(fmt.Sprintf("BUG: %s is not a write", op))
	}
}
