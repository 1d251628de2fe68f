// Package regalloc assigns the values of an IR block to a bounded number of
// slots with a single linear scan. Jumps in a block only go forward, so the
// live range of a value is the index range from its definition to its last
// use, which covers every path between them.
package regalloc

import (
	"fmt"

	"github.com/armature-emu/armature/internal/armir"
)

// SlotKind is where a slot lives in generated code.
type SlotKind byte

const (
	// SlotTemp is a register that does not survive ops calling out of
	// generated code.
	SlotTemp SlotKind = iota
	// SlotSaved is a register preserved across call-outs.
	SlotSaved
	// SlotSpill is a word of backend context memory.
	SlotSpill
)

// String implements fmt.Stringer.
func (k SlotKind) String() string {
	switch k {
	case SlotTemp:
		return "temp"
	case SlotSaved:
		return "saved"
	case SlotSpill:
		return "spill"
	}
	return fmt.Sprintf("slotkind(%d)", byte(k))
}

// Limits bounds the number of slots of each kind.
type Limits struct {
	Temp, Saved, Spill int
}

// Allocation is the result of Allocate.
type Allocation struct {
	// Slots holds the slot of each instruction's result, or -1 for instructions
	// without a used result.
	Slots []int
	// Kinds holds the kind of each slot.
	Kinds []SlotKind
	// Index holds the number of each slot among the slots of its kind.
	Index []int
	// Temps, Saved and Spills count the slots of each kind.
	Temps, Saved, Spills int
	// LastUse holds the index of the last instruction reading each value, or -1.
	LastUse []int
}

// Slot returns the slot of a non-constant operand.
func (a *Allocation) Slot(arg armir.Arg) int { return a.Slots[arg.Index()] }

// LiveAcross returns the slots of the values defined before i and read after i.
func (a *Allocation) LiveAcross(i int) (slots []int) {
	for v := 0; v < i; v++ {
		if a.Slots[v] >= 0 && a.LastUse[v] > i {
			slots = append(slots, a.Slots[v])
		}
	}
	return
}

// Allocate assigns a slot to every used result of blk.
func Allocate(blk *armir.Block, limits Limits) (*Allocation, error) {
	n := len(blk.Instrs)
	a := &Allocation{Slots: make([]int, n), LastUse: make([]int, n)}
	for i := range a.LastUse {
		a.LastUse[i] = -1
		a.Slots[i] = -1
	}
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		for j := 0; j < in.Op.NumArgs(); j++ {
			if arg := in.Args[j]; !arg.Const {
				a.LastUse[arg.Index()] = i
			}
		}
	}

	// holder is the value currently held by each slot, -1 when free.
	var holder []int
	count := func(k SlotKind) int {
		switch k {
		case SlotTemp:
			return a.Temps
		case SlotSaved:
			return a.Saved
		}
		return a.Spills
	}
	adjust := func(k SlotKind, d int) {
		switch k {
		case SlotTemp:
			a.Temps += d
		case SlotSaved:
			a.Saved += d
		default:
			a.Spills += d
		}
	}
	// durable returns the first kind surviving call-outs with room left.
	durable := func() (SlotKind, error) {
		switch {
		case a.Saved < limits.Saved:
			return SlotSaved, nil
		case a.Spills < limits.Spill:
			return SlotSpill, nil
		}
		return 0, fmt.Errorf("block at %#x needs more than %d spill slots", blk.Addr, limits.Spill)
	}

	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		for s, v := range holder {
			if v >= 0 && a.LastUse[v] < i {
				holder[s] = -1
			}
		}

		if in.Op.CallsOut() {
			for s, v := range holder {
				if v < 0 || a.LastUse[v] <= i || a.Kinds[s] != SlotTemp {
					continue
				}
				k, err := durable()
				if err != nil {
					return nil, err
				}
				adjust(SlotTemp, -1)
				adjust(k, 1)
				a.Kinds[s] = k
			}
		}

		if !in.Op.HasResult() || a.LastUse[i] < 0 {
			continue
		}
		slot := -1
		for s, v := range holder {
			if v < 0 {
				slot = s
				break
			}
		}
		if slot < 0 {
			var k SlotKind
			if a.Temps < limits.Temp {
				k = SlotTemp
			} else {
				var err error
				if k, err = durable(); err != nil {
					return nil, err
				}
			}
			adjust(k, 1)
			slot = len(holder)
			holder = append(holder, -1)
			a.Kinds = append(a.Kinds, k)
		}
		holder[slot] = i
		a.Slots[i] = slot
	}

	a.Index = make([]int, len(a.Kinds))
	var next [3]int
	for s, k := range a.Kinds {
		a.Index[s] = next[k]
		next[k]++
	}
	for k := SlotTemp; k <= SlotSpill; k++ {
		if next[k] != count(k) {
			panic(fmt.Sprintf("BUG: %s slot count %d != %d", k, next[k], count(k)))
		}
	}
	return a, nil
}
