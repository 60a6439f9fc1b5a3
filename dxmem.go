// Package dxmem reads and writes schema structs in place inside chunk store
// memory.
//
// A Context is bound once to a store. Types are bound to planned layouts
// and hand out field accessors that go straight to the fixed offsets of a
// pinned chunk, either by chunk id (translated on every call) or by an
// address resolved ahead of time.
package dxmem

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

var (
	ErrNotInitialized     = common.ErrNotInitialized
	ErrAlreadyInitialized = common.ErrAlreadyInitialized
	ErrInvalidIdentifier  = common.ErrInvalidIdentifier
	ErrIndexOutOfRange    = common.ErrIndexOutOfRange
	ErrNullArgument       = common.ErrNullArgument
	ErrInvalidEnum        = common.ErrInvalidEnum
	ErrKindMismatch       = common.ErrKindMismatch
	ErrUntypedStruct      = common.ErrUntypedStruct
	ErrTypeMismatch       = common.ErrTypeMismatch
	ErrOutOfMemory        = common.ErrOutOfMemory
	ErrDuplicateTag       = errors.New("type tag already bound")
)

// Store is the chunk store consumed by this package.
type Store interface {
	NodeID() uint16
	Create(count, size int) ([]cid.ID, error)
	CreateReserved(ids []cid.ID, sizes []int) error
	Reserve(count int) ([]cid.ID, error)
	Remove(id cid.ID) error
	// Pin takes a pin and returns the chunk address.
	Pin(id cid.ID) (cid.Address, error)
	// Translate resolves a pinned chunk to its address without a new pin.
	Translate(id cid.ID) (cid.Address, error)
	Unpin(id cid.ID) error
}

// Memory gives bounds-checked access to pinned chunk memory.
type Memory interface {
	Span(addr cid.Address, n int) ([]byte, error)
}

// Backend is a store that also serves its own memory.
type Backend interface {
	Store
	Memory
}

type Config struct {
	// CheckTypes verifies the type tag of typed structs on every by-id access.
	CheckTypes bool
}

// Context carries the store dependencies shared by every bound type.
type Context struct {
	cfg   Config
	store Store
	mem   Memory
	nid   uint16
	ready atomic.Bool

	mu      sync.Mutex
	nextTag uint16
	tags    map[uint16]string
	types   map[*layout.Layout]*Type
}

// NewContext returns a context that must be initialized before use.
func NewContext(cfg Config) *Context {
	return &Context{
		cfg:     cfg,
		nextTag: 1,
		tags:    make(map[uint16]string),
		types:   make(map[*layout.Layout]*Type),
	}
}

// Open returns a context initialized with b for both store and memory.
func Open(b Backend, cfg Config) (*Context, error) {
	c := NewContext(cfg)
	if err := c.Init(b, b); err != nil {
		return nil, err
	}
	return c, nil
}

// Init injects the store. It can be called once.
func (c *Context) Init(store Store, mem Memory) error {
	if store == nil || mem == nil {
		return errors.Wrap(ErrNullArgument, "init")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready.Load() {
		return ErrAlreadyInitialized
	}
	c.store = store
	c.mem = mem
	c.nid = store.NodeID()
	c.ready.Store(true)
	return nil
}

func (c *Context) check() error {
	if c == nil || !c.ready.Load() {
		return ErrNotInitialized
	}
	return nil
}

// NodeID is the local node tag.
func (c *Context) NodeID() (uint16, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.nid, nil
}

// Type binds a planned layout. Binding the same layout again returns the
// same Type. Typed layouts get their declared tag, or the next free one when
// none is declared.
func (c *Context) Type(l *layout.Layout) (*Type, error) {
	if c == nil {
		return nil, ErrNotInitialized
	}
	if l == nil {
		return nil, errors.Wrap(ErrNullArgument, "layout")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.types[l]; ok {
		return t, nil
	}
	t := &Type{ctx: c, l: l}
	if !l.Tagged {
		c.types[l] = t
		return t, nil
	}
	tag := l.Tag
	if tag == 0 {
		for c.tags[c.nextTag] != "" {
			c.nextTag++
		}
		tag = c.nextTag
		c.nextTag++
	}
	if owner, ok := c.tags[tag]; ok {
		return nil, errors.Wrapf(ErrDuplicateTag, "tag %d held by %s, wanted by %s", tag, owner, l.Name)
	}
	c.tags[tag] = l.Name
	t.tag = tag
	c.types[l] = t
	return t, nil
}
