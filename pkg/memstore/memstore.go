// Package memstore is a single-node in-memory chunk store.
//
// Chunk memory is addressed through a virtual address space: each chunk owns
// its byte slice and an address range handed out by an arena allocator, and
// an address-ordered index maps any address back to its chunk. Spans handed
// to callers are bounds-checked against that chunk.
package memstore

import (
	"sync"

	"github.com/golang/glog"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
)

var (
	ErrBadAddress  = errors.New("address outside any live chunk")
	ErrInvalidSize = errors.New("chunk size must be positive")
)

type chunk struct {
	id   cid.ID
	addr cid.Address
	data []byte
	pins int
}

func chunkLess(a, b *chunk) bool { return a.addr < b.addr }

// Store is safe for concurrent use; each call is atomic on its own.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	nid      uint16
	nextLID  uint64
	chunks   map[cid.ID]*chunk
	reserved map[cid.ID]struct{}
	byAddr   *btree.BTreeG[*chunk]
	arena    *arena
}

// New builds an empty store.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		nid:      cfg.Store.NodeID,
		nextLID:  1,
		chunks:   make(map[cid.ID]*chunk),
		reserved: make(map[cid.ID]struct{}),
		byAddr:   btree.NewG(16, chunkLess),
		arena:    newArena(cfg.Store.BaseAddress, cfg.Store.MaxBytes),
	}, nil
}

// NewDefault builds a store from DefaultConfig.
func NewDefault() *Store {
	cfg, err := ParseConfig("")
	if err != nil {
		panic(err)
	}
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store) NodeID() uint16 { return s.nid }

func (s *Store) nextIDLocked() (cid.ID, error) {
	if s.nextLID > cid.MaxLID {
		return cid.Invalid, errors.Wrap(common.ErrOutOfMemory, "local id space exhausted")
	}
	id := cid.New(s.nid, s.nextLID)
	s.nextLID++
	return id, nil
}

func (s *Store) putLocked(id cid.ID, size int) error {
	if size <= 0 {
		return errors.Wrapf(ErrInvalidSize, "%s: %d", id, size)
	}
	addr, err := s.arena.alloc(uint64(size))
	if err != nil {
		return errors.Wrapf(err, "allocate %d bytes for %s", size, id)
	}
	c := &chunk{id: id, addr: cid.Address(addr), data: make([]byte, size)}
	s.chunks[id] = c
	s.byAddr.ReplaceOrInsert(c)
	if glog.V(2) {
		glog.Infof("memstore: created %s size=%d addr=0x%x", id, size, addr)
	}
	return nil
}

// Create allocates count zeroed chunks of size bytes each. Chunks created
// before a failure are kept.
func (s *Store) Create(count, size int) ([]cid.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]cid.ID, 0, count)
	for i := 0; i < count; i++ {
		id, err := s.nextIDLocked()
		if err != nil {
			return ids, err
		}
		if err := s.putLocked(id, size); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateReserved allocates chunks for ids previously handed out by Reserve.
func (s *Store) CreateReserved(ids []cid.ID, sizes []int) error {
	if len(ids) != len(sizes) {
		return errors.Errorf("create reserved: %d ids but %d sizes", len(ids), len(sizes))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range ids {
		if _, ok := s.reserved[id]; !ok {
			return errors.Wrapf(common.ErrInvalidIdentifier, "%s is not reserved", id)
		}
		if err := s.putLocked(id, sizes[i]); err != nil {
			return err
		}
		delete(s.reserved, id)
	}
	return nil
}

// Reserve hands out count ids without allocating memory for them.
func (s *Store) Reserve(count int) ([]cid.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]cid.ID, 0, count)
	for i := 0; i < count; i++ {
		id, err := s.nextIDLocked()
		if err != nil {
			return ids, err
		}
		s.reserved[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes a chunk regardless of its pin count. Removing cid.Invalid
// is a no-op, as is removing a reserved id that was never created.
func (s *Store) Remove(id cid.ID) error {
	if id == cid.Invalid {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		if _, ok := s.reserved[id]; ok {
			delete(s.reserved, id)
			return nil
		}
		return errors.Wrapf(common.ErrInvalidIdentifier, "remove %s", id)
	}
	delete(s.chunks, id)
	s.byAddr.Delete(c)
	s.arena.release(uint64(c.addr), uint64(len(c.data)))
	if glog.V(2) {
		glog.Infof("memstore: removed %s addr=0x%x pins=%d", id, c.addr, c.pins)
	}
	return nil
}

// Pin takes a pin on a chunk and returns its address.
func (s *Store) Pin(id cid.ID) (cid.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return cid.NullAddress, errors.Wrapf(common.ErrInvalidIdentifier, "pin %s", id)
	}
	c.pins++
	return c.addr, nil
}

// Translate resolves a chunk id to its address.
func (s *Store) Translate(id cid.ID) (cid.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return cid.NullAddress, errors.Wrapf(common.ErrInvalidIdentifier, "translate %s", id)
	}
	return c.addr, nil
}

// Unpin drops one pin. Unpinning cid.Invalid is a no-op.
func (s *Store) Unpin(id cid.ID) error {
	if id == cid.Invalid {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return errors.Wrapf(common.ErrInvalidIdentifier, "unpin %s", id)
	}
	if c.pins > 0 {
		c.pins--
	}
	return nil
}

// PinCount reports the number of pins held on a chunk.
func (s *Store) PinCount(id cid.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return 0, errors.Wrapf(common.ErrInvalidIdentifier, "pin count %s", id)
	}
	return c.pins, nil
}

// Span returns n bytes of chunk memory starting at addr. The span must lie
// within a single live chunk.
func (s *Store) Span(addr cid.Address, n int) ([]byte, error) {
	if addr == cid.NullAddress {
		return nil, errors.Wrap(ErrBadAddress, "null address")
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrBadAddress, "negative span %d", n)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hit *chunk
	s.byAddr.DescendLessOrEqual(&chunk{addr: addr}, func(c *chunk) bool {
		hit = c
		return false
	})
	if hit == nil {
		return nil, errors.Wrapf(ErrBadAddress, "0x%x", addr)
	}
	off := int(addr - hit.addr)
	if off+n > len(hit.data) {
		return nil, errors.Wrapf(ErrBadAddress, "0x%x+%d past end of %s (size %d)", addr, n, hit.id, len(hit.data))
	}
	return hit.data[off : off+n : off+n], nil
}

// Len is the number of live chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Stats returns a copy of the allocation statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.arena.stats
	st.Chunks = len(s.chunks)
	st.Reserved = len(s.reserved)
	st.FreeBlocks = s.arena.free.Len()
	return st
}
