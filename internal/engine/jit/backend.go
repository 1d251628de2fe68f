// Package jit runs guest code as compiled blocks: it owns the block cache,
// links blocks to each other, keeps the cache coherent with guest writes and
// dispatches into one of the code generation backends.
package jit

import (
	"fmt"

	"github.com/armature-emu/armature/internal/armir"
	"github.com/armature-emu/armature/internal/cpu"
	"github.com/armature-emu/armature/internal/regalloc"
)

// Backend turns optimized IR blocks into executable code.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Limits bounds the register allocation of the blocks passed to Compile.
	Limits() regalloc.Limits
	// Compile returns the executable of blk, which the cache knows as id.
	// links is the link table of the block: entry k holds the id of the block
	// linked at the k-th linked exit, or -1. The slice is owned by the cache
	// and stays at the same address until the executable is released.
	Compile(id int32, blk *armir.Block, alloc *regalloc.Allocation, links []int32) (Executable, error)
}

// Executable is one compiled block.
type Executable interface {
	// Run executes the block, and the blocks it is linked to if the backend
	// follows links itself, until one of them terminates. ctx.Current holds the
	// id of the terminating block when Run returns.
	Run(ctx *Context) Exit
	// Release frees the resources of the executable. It is never called while
	// the executable runs.
	Release() error
}

// Context is what executables run against.
type Context struct {
	armir.Env
	// Budget is the cycle count at which linked exits stop being followed.
	Budget uint64
	// Current is the id of the running block.
	Current int32
}

// ExitKind is how a block terminated.
type ExitKind byte

const (
	// ExitDispatch is an exit to an address the dispatcher looks up.
	ExitDispatch ExitKind = iota
	// ExitLinked is an exit through a link site that was not followed, either
	// because nothing is linked there yet or because the budget ran out.
	ExitLinked
	// ExitIdle is an exit from a block that spins on itself.
	ExitIdle
	// ExitException is the entry into an exception vector.
	ExitException
	// ExitHalt halted the core.
	ExitHalt
)

// String implements fmt.Stringer.
func (k ExitKind) String() string {
	switch k {
	case ExitDispatch:
		return "dispatch"
	case ExitLinked:
		return "linked"
	case ExitIdle:
		return "idle"
	case ExitException:
		return "exception"
	case ExitHalt:
		return "halt"
	}
	return fmt.Sprintf("exitkind(%d)", byte(k))
}

// Exit is the result of Executable.Run.
type Exit struct {
	Kind ExitKind
	// Site is the link site of an ExitLinked.
	Site int
}

// LinkSites returns the instruction indices of the linked exits of blk, in
// order. The position of an index is the number of its link site.
func LinkSites(blk *armir.Block) (sites []int) {
	for i := range blk.Instrs {
		if in := &blk.Instrs[i]; in.Op == armir.OpExit && in.Link.Linked {
			sites = append(sites, i)
		}
	}
	return
}

// terminate applies the effect of the terminator at blk.Instrs[i], whose
// operand is a, the way armir.Interpret does, and classifies it.
func terminate(ctx *Context, blk *armir.Block, i int, a uint32, site int) Exit {
	s := ctx.State
	in := &blk.Instrs[i]
	switch in.Op {
	case armir.OpExit:
		s.R[cpu.PC] = a
		if in.Link.Linked {
			return Exit{Kind: ExitLinked, Site: site}
		}
		return Exit{Kind: ExitDispatch}
	case armir.OpIdle:
		s.R[cpu.PC] = a
		return Exit{Kind: ExitIdle}
	case armir.OpException:
		s.EnterException(in.Aux, a)
		return Exit{Kind: ExitException}
	case armir.OpHalt:
		s.Halted = true
		s.R[cpu.PC] = a
		return Exit{Kind: ExitHalt}
	}
	panic(fmt.Sprintf("BUG: %s is not a terminator", in.Op))
}
