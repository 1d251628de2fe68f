package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armature-emu/armature/internal/armir"
)

var (
	c = armir.C
	v = armir.V
)

func block(instrs ...armir.Instr) *armir.Block {
	return &armir.Block{Addr: 0x100, Instrs: instrs}
}

func TestAllocate_reuse(t *testing.T) {
	blk := block(
		armir.Instr{Op: armir.OpLoadReg, Aux: 0},                     // 0
		armir.Instr{Op: armir.OpAdd, Args: [3]armir.Arg{v(0), c(1)}}, // 1: v0 dies here
		armir.Instr{Op: armir.OpAdd, Args: [3]armir.Arg{v(1), c(1)}}, // 2: v1 dies here
		armir.Instr{Op: armir.OpStoreReg, Aux: 0, Args: [3]armir.Arg{v(2)}},
		armir.Instr{Op: armir.OpExit, Args: [3]armir.Arg{c(0)}},
	)
	a, err := Allocate(blk, Limits{Temp: 3, Saved: 2, Spill: 2})
	require.NoError(t, err)
	// The result of an instruction never shares the slot of its operands.
	require.Equal(t, []int{0, 1, 0, -1, -1}, a.Slots)
	require.Equal(t, []SlotKind{SlotTemp, SlotTemp}, a.Kinds)
	require.Equal(t, []int{0, 1}, a.Index)
	require.Equal(t, 2, a.Temps)
	require.Equal(t, []int{1, 2, 3, -1, -1}, a.LastUse)
}

func TestAllocate_unusedResult(t *testing.T) {
	blk := block(
		armir.Instr{Op: armir.OpRead32, Args: [3]armir.Arg{c(0)}},
		armir.Instr{Op: armir.OpExit, Args: [3]armir.Arg{c(0)}},
	)
	a, err := Allocate(blk, Limits{Temp: 1})
	require.NoError(t, err)
	require.Equal(t, []int{-1, -1}, a.Slots)
	require.Empty(t, a.Kinds)
}

func TestAllocate_callOutPromotion(t *testing.T) {
	blk := block(
		armir.Instr{Op: armir.OpLoadReg, Aux: 0},                            // 0: live across 2
		armir.Instr{Op: armir.OpLoadReg, Aux: 1},                            // 1: read by 2 only
		armir.Instr{Op: armir.OpWrite32, Args: [3]armir.Arg{v(1), c(0)}},    // 2: calls out
		armir.Instr{Op: armir.OpStoreReg, Aux: 2, Args: [3]armir.Arg{v(0)}}, // 3
		armir.Instr{Op: armir.OpExit, Args: [3]armir.Arg{c(0)}},
	)
	a, err := Allocate(blk, Limits{Temp: 2, Saved: 1, Spill: 1})
	require.NoError(t, err)
	require.Equal(t, []SlotKind{SlotSaved, SlotTemp}, a.Kinds)
	require.Equal(t, []int{0}, a.LiveAcross(2))
	require.Equal(t, 1, a.Saved)
	require.Equal(t, 1, a.Temps)

	a, err = Allocate(blk, Limits{Temp: 2, Saved: 0, Spill: 1})
	require.NoError(t, err)
	require.Equal(t, []SlotKind{SlotSpill, SlotTemp}, a.Kinds)

	_, err = Allocate(blk, Limits{Temp: 2})
	require.EqualError(t, err, "block at 0x100 needs more than 0 spill slots")
}

func TestAllocate_overflow(t *testing.T) {
	var instrs []armir.Instr
	for i := 0; i < 6; i++ {
		instrs = append(instrs, armir.Instr{Op: armir.OpLoadReg, Aux: uint32(i)})
	}
	for i := 0; i < 6; i++ {
		instrs = append(instrs, armir.Instr{Op: armir.OpStoreReg, Aux: uint32(i), Args: [3]armir.Arg{v(i)}})
	}
	instrs = append(instrs, armir.Instr{Op: armir.OpExit, Args: [3]armir.Arg{c(0)}})

	a, err := Allocate(block(instrs...), Limits{Temp: 2, Saved: 2, Spill: 2})
	require.NoError(t, err)
	require.Equal(t, []SlotKind{SlotTemp, SlotTemp, SlotSaved, SlotSaved, SlotSpill, SlotSpill}, a.Kinds)
	require.Equal(t, []int{0, 1, 0, 1, 0, 1}, a.Index)

	_, err = Allocate(block(instrs...), Limits{Temp: 2, Saved: 2, Spill: 1})
	require.Error(t, err)
}

func TestSlotKind_String(t *testing.T) {
	require.Equal(t, "temp", SlotTemp.String())
	require.Equal(t, "saved", SlotSaved.String())
	require.Equal(t, "spill", SlotSpill.String())
	require.Equal(t, "slotkind(9)", SlotKind(9).String())
}
