package armir

import (
	"fmt"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/cpu"
)

// Env is what Interpret executes a block against.
type Env struct {
	State *cpu.State
	Bus   api.Bus
	// Coprocessor is nil on cores without one. Blocks compiled without a
	// coprocessor never contain coprocessor ops.
	Coprocessor api.Coprocessor
}

// Interpret executes blk and returns the index of the terminator it stopped
// at. The pipeline is not refilled: callers Flush with R[PC].
func Interpret(blk *Block, env Env) int {
	s, bus := env.State, env.Bus
	vals := make([]uint32, len(blk.Instrs))
	arg := func(a Arg) uint32 {
		if a.Const {
			return a.Value
		}
		return vals[a.Value]
	}
	for i := 0; i < len(blk.Instrs); {
		in := &blk.Instrs[i]
		var a, b, c uint32
		switch in.Op.NumArgs() {
		case 3:
			c = arg(in.Args[2])
			fallthrough
		case 2:
			b = arg(in.Args[1])
			fallthrough
		case 1:
			a = arg(in.Args[0])
		}

		switch op := in.Op; {
		case op == OpNop:
		case op.IsPure():
			vals[i] = Eval(op, in.Aux, a, b, c)
		case op == OpLoadReg:
			vals[i] = s.R[in.Aux]
		case op == OpStoreReg:
			s.R[in.Aux] = a
		case op == OpLoadUserReg:
			vals[i] = s.UserReg(int(in.Aux))
		case op == OpStoreUserReg:
			s.SetUserReg(int(in.Aux), a)
		case op == OpLoadFlag:
			vals[i] = s.Flag(in.Aux)
		case op == OpStoreFlag:
			s.SetFlag(in.Aux, a)
		case op == OpLoadCPSR:
			vals[i] = s.CPSR
		case op == OpStoreCPSR:
			s.WriteCPSR(a)
		case op == OpLoadSPSR:
			vals[i] = s.SPSR
		case op == OpStoreSPSR:
			s.SPSR = a
		case op == OpRead8:
			vals[i] = uint32(bus.Read8(a))
		case op == OpRead8S:
			vals[i] = uint32(int8(bus.Read8(a)))
		case op == OpRead16:
			vals[i] = uint32(bus.Read16(a))
		case op == OpRead16S:
			vals[i] = uint32(int16(bus.Read16(a)))
		case op == OpRead32:
			vals[i] = bus.Read32(a)
		case op == OpWrite8:
			bus.Write8(a, uint8(b))
		case op == OpWrite16:
			bus.Write16(a, uint16(b))
		case op == OpWrite32:
			bus.Write32(a, b)
		case op == OpCoprocRead:
			g, x, o := SplitCoprocessorAux(in.Aux)
			vals[i] = env.Coprocessor.CoprocessorRead(g, x, o)
		case op == OpCoprocWrite:
			g, x, o := SplitCoprocessorAux(in.Aux)
			env.Coprocessor.CoprocessorWrite(g, x, o, a)
		case op == OpCycles:
			s.Cycles += uint64(a)
		case op == OpJump:
			i = in.Target
			continue
		case op == OpJumpIf:
			if a != 0 {
				i = in.Target
				continue
			}
		case op == OpJumpIfZero:
			if a == 0 {
				i = in.Target
				continue
			}
		case op == OpBranch:
			if a != 0 {
				i = in.Target
			} else {
				i = in.Target2
			}
			continue
		case op == OpExit, op == OpIdle:
			s.R[cpu.PC] = a
			return i
		case op == OpException:
			s.EnterException(in.Aux, a)
			return i
		case op == OpHalt:
			s.Halted = true
			s.R[cpu.PC] = a
			return i
		default:
			panic(fmt.Sprintf("BUG: invalid op %s", op))
		}
		i++
	}
	panic("BUG: block without terminator")
}
