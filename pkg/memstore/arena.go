package memstore

import (
	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
)

// block is a span of the address space.
type block struct {
	addr uint64
	size uint64
}

func blockLess(a, b block) bool { return a.addr < b.addr }

// arena hands out addresses for chunk memory. Addresses start at base so the
// null address is never produced. Freed spans go to an address-ordered free
// list and are reused first-fit, coalescing with their neighbours.
type arena struct {
	eof   uint64
	base  uint64
	limit uint64 // 0 means unbounded
	free  *btree.BTreeG[block]
	stats Stats
}

// Stats contains allocation statistics.
type Stats struct {
	Chunks           int    // Live chunks
	Reserved         int    // Reserved but not yet created ids
	TotalAllocations uint64 // Number of allocations made
	TotalBytesAlloc  uint64 // Total bytes allocated
	FreeBytes        uint64 // Bytes currently on the free list
	LiveBytes        uint64 // Bytes held by live chunks
	FreeBlocks       int    // Spans on the free list
	LargestAlloc     uint64 // Largest single allocation
}

func newArena(base, limit uint64) *arena {
	return &arena{
		eof:   base,
		base:  base,
		limit: limit,
		free:  btree.NewG(8, blockLess),
	}
}

func (a *arena) alloc(size uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.New("zero sized allocation")
	}
	var hit block
	found := false
	a.free.Ascend(func(b block) bool {
		if b.size >= size {
			hit, found = b, true
			return false
		}
		return true
	})
	var addr uint64
	if found {
		a.free.Delete(hit)
		addr = hit.addr
		if hit.size > size {
			a.free.ReplaceOrInsert(block{addr: hit.addr + size, size: hit.size - size})
		}
		a.stats.FreeBytes -= size
	} else {
		if a.limit != 0 && a.eof+size-a.base > a.limit {
			return 0, common.ErrOutOfMemory
		}
		if a.eof+size > cid.MaxLID {
			return 0, common.ErrOutOfMemory
		}
		addr = a.eof
		a.eof += size
	}

	a.stats.TotalAllocations++
	a.stats.TotalBytesAlloc += size
	a.stats.LiveBytes += size
	if size > a.stats.LargestAlloc {
		a.stats.LargestAlloc = size
	}
	return addr, nil
}

func (a *arena) release(addr, size uint64) {
	a.stats.LiveBytes -= size
	a.stats.FreeBytes += size
	b := block{addr: addr, size: size}

	// merge with the span ending at addr
	var prev block
	hasPrev := false
	a.free.DescendLessOrEqual(block{addr: addr}, func(p block) bool {
		prev, hasPrev = p, p.addr+p.size == addr
		return false
	})
	if hasPrev {
		a.free.Delete(prev)
		b = block{addr: prev.addr, size: prev.size + b.size}
	}
	// merge with the span starting right after
	if next, ok := a.free.Get(block{addr: addr + size}); ok {
		a.free.Delete(next)
		b.size += next.size
	}
	// a span touching eof shrinks the arena instead
	if b.addr+b.size == a.eof {
		a.eof = b.addr
		a.stats.FreeBytes -= b.size
		return
	}
	a.free.ReplaceOrInsert(b)
}

// rebuild recomputes eof and free spans from the live chunks, given in
// ascending address order.
func (a *arena) rebuild(live []block) error {
	a.free.Clear(false)
	a.stats = Stats{}
	cursor := a.base
	for _, b := range live {
		if b.addr < cursor {
			return errors.Errorf("chunk at 0x%x overlaps previous chunk or base 0x%x", b.addr, cursor)
		}
		if gap := b.addr - cursor; gap > 0 {
			a.free.ReplaceOrInsert(block{addr: cursor, size: gap})
			a.stats.FreeBytes += gap
		}
		cursor = b.addr + b.size
		a.stats.TotalAllocations++
		a.stats.TotalBytesAlloc += b.size
		a.stats.LiveBytes += b.size
		if b.size > a.stats.LargestAlloc {
			a.stats.LargestAlloc = b.size
		}
	}
	a.eof = cursor
	return nil
}
