// Package membus is a sparse memory bus for tests of the core.
package membus

import (
	"encoding/binary"

	"github.com/armature-emu/armature/api"
)

const pageBits = 12

// Bus is a little-endian api.Bus over sparse pages. Unwritten memory reads as zero.
type Bus struct {
	pages map[uint32]*[1 << pageBits]byte
	// Writes counts data writes.
	Writes int
}

var _ api.Bus = (*Bus)(nil)

// New returns an empty Bus.
func New() *Bus {
	return &Bus{pages: map[uint32]*[1 << pageBits]byte{}}
}

func (b *Bus) page(addr uint32) *[1 << pageBits]byte {
	p, ok := b.pages[addr>>pageBits]
	if !ok {
		p = new([1 << pageBits]byte)
		b.pages[addr>>pageBits] = p
	}
	return p
}

func (b *Bus) byteAt(addr uint32) byte {
	if p, ok := b.pages[addr>>pageBits]; ok {
		return p[addr&(1<<pageBits-1)]
	}
	return 0
}

func (b *Bus) setByte(addr uint32, v byte) {
	b.page(addr)[addr&(1<<pageBits-1)] = v
}

func (b *Bus) read(addr uint32, n int) uint64 {
	var buf [8]byte
	for i := 0; i < n; i++ {
		buf[i] = b.byteAt(addr + uint32(i))
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (b *Bus) write(addr uint32, n int, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	for i := 0; i < n; i++ {
		b.setByte(addr+uint32(i), buf[i])
	}
}

// LoadWords stores consecutive words starting at addr without counting writes.
func (b *Bus) LoadWords(addr uint32, words ...uint32) {
	for i, w := range words {
		b.write(addr+uint32(4*i), 4, uint64(w))
	}
}

// LoadHalfwords stores consecutive halfwords starting at addr without counting writes.
func (b *Bus) LoadHalfwords(addr uint32, hs ...uint16) {
	for i, h := range hs {
		b.write(addr+uint32(2*i), 2, uint64(h))
	}
}

func (b *Bus) Read8(addr uint32) uint8   { return uint8(b.read(addr, 1)) }
func (b *Bus) Read16(addr uint32) uint16 { return uint16(b.read(addr, 2)) }
func (b *Bus) Read32(addr uint32) uint32 { return uint32(b.read(addr, 4)) }

func (b *Bus) Write8(addr uint32, v uint8) {
	b.Writes++
	b.write(addr, 1, uint64(v))
}

func (b *Bus) Write16(addr uint32, v uint16) {
	b.Writes++
	b.write(addr, 2, uint64(v))
}

func (b *Bus) Write32(addr uint32, v uint32) {
	b.Writes++
	b.write(addr, 4, uint64(v))
}

func (b *Bus) Fetch16(addr uint32) uint16 { return b.Read16(addr) }
func (b *Bus) Fetch32(addr uint32) uint32 { return b.Read32(addr) }

// CoprocessorWrite is one recorded MCR.
type CoprocessorWrite struct {
	Group, Index, Opcode, Value uint32
}

// CP15Bus is a Bus that also implements api.Coprocessor. Reads return the last
// value written to the same register.
type CP15Bus struct {
	*Bus
	Registers map[[3]uint32]uint32
	Log       []CoprocessorWrite
}

var _ api.Coprocessor = (*CP15Bus)(nil)

// NewCP15 returns an empty CP15Bus.
func NewCP15() *CP15Bus {
	return &CP15Bus{Bus: New(), Registers: map[[3]uint32]uint32{}}
}

func (b *CP15Bus) CoprocessorRead(group, index, opcode uint32) uint32 {
	return b.Registers[[3]uint32{group, index, opcode}]
}

func (b *CP15Bus) CoprocessorWrite(group, index, opcode, value uint32) {
	b.Registers[[3]uint32{group, index, opcode}] = value
	b.Log = append(b.Log, CoprocessorWrite{group, index, opcode, value})
}
