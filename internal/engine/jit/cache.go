package jit

import (
	"fmt"

	"github.com/armature-emu/armature/internal/armir"
)

const (
	pageShift = 12
	// pageSlots is the number of halfword-aligned block starts in a page.
	pageSlots = 1 << (pageShift - 1)
	// attrLevels covers every armir.Attr: five mode bits and the T bit.
	attrLevels = 64
	// codePageWords is the size of the code page bitmap, one bit per page of
	// the 32-bit address space.
	codePageWords = 1 << (32 - pageShift) / 64
)

// page maps the block starts of one guest page to block ids plus one, so the
// zero value is empty.
type page [pageSlots]int32

// linkRef names the link site site of the block block.
type linkRef struct {
	block, site int32
}

// entry is a block of the cache arena.
type entry struct {
	blk  *armir.Block
	exec Executable
	// backend is the name of the backend that compiled exec.
	backend string
	// sites holds the instruction indices of the link sites.
	sites []int
	// links holds the block id linked at each site, or -1.
	links []int32
	// incoming holds the link sites pointing at this block.
	incoming []linkRef
	// pages holds the guest pages of the code and literals of the block.
	pages []uint32
	live  bool
}

// cache maps (attr, address) to compiled blocks and tracks the links between
// them. Blocks are identified by their index in blocks, which stays valid
// until the block is released.
type cache struct {
	levels [attrLevels]map[uint32]*page
	blocks []entry
	free   []int32
	// codePages has a bit set for every guest page holding code or literals
	// of a live block.
	codePages [codePageWords]uint64
	byPage    map[uint32][]int32
	live      int
}

func newCache() *cache {
	return &cache{byPage: map[uint32][]int32{}}
}

func slotOf(addr uint32) uint32 { return (addr >> 1) & (pageSlots - 1) }

// lookup returns the id of the live block starting at addr in the state attr.
func (c *cache) lookup(addr uint32, attr armir.Attr) (int32, bool) {
	pages := c.levels[attr]
	if pages == nil {
		return 0, false
	}
	p, ok := pages[addr>>pageShift]
	if !ok {
		return 0, false
	}
	if id := p[slotOf(addr)]; id != 0 {
		return id - 1, true
	}
	return 0, false
}

// insert adds blk and returns its id. The executable is set with setExec.
func (c *cache) insert(blk *armir.Block) int32 {
	if old, ok := c.lookup(blk.Addr, blk.Attr); ok {
		c.remove(old)
	}
	var id int32
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		id = int32(len(c.blocks))
		c.blocks = append(c.blocks, entry{})
	}

	e := &c.blocks[id]
	*e = entry{blk: blk, sites: LinkSites(blk), live: true}
	if len(e.sites) > 0 {
		e.links = make([]int32, len(e.sites))
		for k := range e.links {
			e.links[k] = -1
		}
	}

	pages := c.levels[blk.Attr]
	if pages == nil {
		pages = map[uint32]*page{}
		c.levels[blk.Attr] = pages
	}
	p, ok := pages[blk.Addr>>pageShift]
	if !ok {
		p = new(page)
		pages[blk.Addr>>pageShift] = p
	}
	p[slotOf(blk.Addr)] = id + 1

	e.pages = blockPages(blk)
	for _, pg := range e.pages {
		c.byPage[pg] = append(c.byPage[pg], id)
		c.codePages[pg/64] |= 1 << (pg % 64)
	}
	c.live++
	return id
}

// blockPages returns the distinct pages of the code and literals of blk.
func blockPages(blk *armir.Block) (pages []uint32) {
	add := func(pg uint32) {
		for _, p := range pages {
			if p == pg {
				return
			}
		}
		pages = append(pages, pg)
	}
	last := blk.End - 1
	if blk.End == blk.Addr {
		last = blk.Addr
	}
	for pg := blk.Addr >> pageShift; ; pg++ {
		add(pg)
		if pg == last>>pageShift {
			break
		}
	}
	for _, l := range blk.Literals {
		add(l >> pageShift)
		add((l + 3) >> pageShift)
	}
	return
}

func (c *cache) setExec(id int32, exec Executable, backend string) {
	e := &c.blocks[id]
	e.exec, e.backend = exec, backend
}

// link points the link site site of from at to.
func (c *cache) link(from int32, site int, to int32) {
	f := &c.blocks[from]
	if !f.live || !c.blocks[to].live {
		panic(fmt.Sprintf("BUG: linking dead block %d -> %d", from, to))
	}
	if f.links[site] == to {
		return
	}
	if old := f.links[site]; old >= 0 {
		c.dropIncoming(old, linkRef{block: from, site: int32(site)})
	}
	f.links[site] = to
	t := &c.blocks[to]
	t.incoming = append(t.incoming, linkRef{block: from, site: int32(site)})
}

func (c *cache) dropIncoming(id int32, ref linkRef) {
	in := c.blocks[id].incoming
	for k, r := range in {
		if r == ref {
			in[k] = in[len(in)-1]
			c.blocks[id].incoming = in[:len(in)-1]
			return
		}
	}
}

// isCode returns true if addr is in a page with code or literals of a live block.
func (c *cache) isCode(addr uint32) bool {
	pg := addr >> pageShift
	return c.codePages[pg/64]&(1<<(pg%64)) != 0
}

// remove unlinks the block id and drops it from every index. The entry stays
// allocated until release, so a running executable is not freed under itself.
func (c *cache) remove(id int32) {
	e := &c.blocks[id]
	if !e.live {
		return
	}
	blk := e.blk
	if p := c.levels[blk.Attr][blk.Addr>>pageShift]; p != nil && p[slotOf(blk.Addr)] == id+1 {
		p[slotOf(blk.Addr)] = 0
	}

	for _, r := range e.incoming {
		if c.blocks[r.block].links[r.site] == id {
			c.blocks[r.block].links[r.site] = -1
		}
	}
	e.incoming = nil
	for k, to := range e.links {
		if to >= 0 {
			c.dropIncoming(to, linkRef{block: id, site: int32(k)})
			e.links[k] = -1
		}
	}

	for _, pg := range e.pages {
		ids := c.byPage[pg]
		for k, other := range ids {
			if other == id {
				ids[k] = ids[len(ids)-1]
				ids = ids[:len(ids)-1]
				break
			}
		}
		if len(ids) == 0 {
			delete(c.byPage, pg)
			c.codePages[pg/64] &^= 1 << (pg % 64)
		} else {
			c.byPage[pg] = ids
		}
	}
	e.live = false
	c.live--
}

// release frees the executable of the removed block id and recycles the id.
func (c *cache) release(id int32) error {
	e := &c.blocks[id]
	if e.live {
		panic(fmt.Sprintf("BUG: releasing live block %d", id))
	}
	var err error
	if e.exec != nil {
		err = e.exec.Release()
	}
	*e = entry{}
	c.free = append(c.free, id)
	return err
}

// overlapping returns the live blocks whose code or literals overlap
// [start, end), with an end of zero at the top of the address space.
func (c *cache) overlapping(start, end uint32) (ids []int32) {
	hi := armir.RangeEnd(end)
	if uint64(start) >= hi {
		return nil
	}
	first, last := start>>pageShift, uint32((hi-1)>>pageShift)
	seen := map[int32]struct{}{}
	check := func(pg uint32) {
		for _, id := range c.byPage[pg] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if c.blocks[id].blk.Overlaps(start, end) {
				ids = append(ids, id)
			}
		}
	}
	if uint64(last-first) < uint64(len(c.byPage)) {
		for pg := first; ; pg++ {
			check(pg)
			if pg == last {
				break
			}
		}
	} else {
		for pg := range c.byPage {
			if pg >= first && pg <= last {
				check(pg)
			}
		}
	}
	return
}

// all returns the ids of every live block.
func (c *cache) all() (ids []int32) {
	for id := range c.blocks {
		if c.blocks[id].live {
			ids = append(ids, int32(id))
		}
	}
	return
}
