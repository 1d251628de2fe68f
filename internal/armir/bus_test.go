package armir

import (
	"github.com/armature-emu/armature/api"
)

// event is one externally visible bus or coprocessor access.
type event struct {
	Kind        string
	Addr, Value uint32
}

// traceBus records data accesses over memory that reads as a hash of the
// address until written.
//
// Instruction fetches see the code as loaded and ignore later writes, like an
// instruction cache that was never cleaned: compiled code keeps running what
// it was compiled from.
type traceBus struct {
	code   map[uint32]uint32
	data   map[uint32]uint32
	events []event
}

var (
	_ api.Bus         = (*traceBus)(nil)
	_ api.Coprocessor = (*traceBus)(nil)
)

func newTraceBus() *traceBus {
	return &traceBus{code: map[uint32]uint32{}, data: map[uint32]uint32{}}
}

func hash(addr uint32) uint32 {
	h := addr*0x9e3779b1 + 0x7f4a7c15
	return h ^ h>>15
}

func (t *traceBus) fetch(addr uint32) uint32 {
	addr &^= 3
	if w, ok := t.code[addr]; ok {
		return w
	}
	return hash(addr)
}

func (t *traceBus) word(addr uint32) uint32 {
	if w, ok := t.data[addr&^3]; ok {
		return w
	}
	return t.fetch(addr)
}

// merge replaces the size bytes of the word at addr starting at addr&3.
func (t *traceBus) merge(addr uint32, size uint32, v uint32) {
	shift := 8 * (addr & 3)
	mask := uint32(1)<<(8*size) - 1
	if size == 4 {
		mask = ^uint32(0)
	}
	t.data[addr&^3] = t.word(addr)&^(mask<<shift) | (v&mask)<<shift
}

// loadARM places words at addr.
func (t *traceBus) loadARM(addr uint32, words ...uint32) {
	for i, w := range words {
		t.code[addr+uint32(4*i)] = w
	}
}

// loadThumb places halfwords at addr, which must be word aligned.
func (t *traceBus) loadThumb(addr uint32, hs ...uint16) {
	for i, h := range hs {
		a := addr + uint32(2*i)
		w := t.fetch(a)
		shift := 8 * (a & 2)
		t.code[a&^3] = w&^(0xffff<<shift) | uint32(h)<<shift
	}
}

func (t *traceBus) record(kind string, addr, v uint32) uint32 {
	t.events = append(t.events, event{kind, addr, v})
	return v
}

func (t *traceBus) Read8(addr uint32) uint8 {
	return uint8(t.record("read8", addr, uint32(uint8(t.word(addr)>>(8*(addr&3))))))
}

func (t *traceBus) Read16(addr uint32) uint16 {
	return uint16(t.record("read16", addr, uint32(uint16(t.word(addr)>>(8*(addr&2))))))
}

func (t *traceBus) Read32(addr uint32) uint32 { return t.record("read32", addr, t.word(addr)) }

func (t *traceBus) Fetch16(addr uint32) uint16 { return uint16(t.fetch(addr) >> (8 * (addr & 2))) }
func (t *traceBus) Fetch32(addr uint32) uint32 { return t.fetch(addr) }

func (t *traceBus) Write8(addr uint32, v uint8) {
	t.record("write8", addr, uint32(v))
	t.merge(addr, 1, uint32(v))
}

func (t *traceBus) Write16(addr uint32, v uint16) {
	t.record("write16", addr, uint32(v))
	t.merge(addr&^1, 2, uint32(v))
}

func (t *traceBus) Write32(addr uint32, v uint32) {
	t.record("write32", addr, v)
	t.merge(addr&^3, 4, v)
}

func (t *traceBus) CoprocessorRead(group, index, opcode uint32) uint32 {
	return hash(CoprocessorAux(group, index, opcode))
}

func (t *traceBus) CoprocessorWrite(group, index, opcode, value uint32) {
	t.record("mcr", CoprocessorAux(group, index, opcode), value)
}
