package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// Create allocates and initializes one struct. Typed structs are returned in
// direct form, plain structs by their chunk id.
func (t *Type) Create() (cid.ID, error) {
	ids, err := t.CreateN(1)
	if err != nil {
		return cid.Invalid, err
	}
	return ids[0], nil
}

// CreateN allocates and initializes n structs. When the store runs out part
// way, the structs created so far are initialized and returned with the error.
func (t *Type) CreateN(n int) ([]cid.ID, error) {
	if err := t.ctx.check(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "count %d", n)
	}
	if n == 0 {
		return []cid.ID{}, nil
	}
	ids, err := t.ctx.store.Create(n, t.l.Size)
	if err != nil {
		out, ierr := t.initChunks(ids)
		if ierr != nil {
			return out, ierr
		}
		return out, errors.Wrapf(err, "create %s %d of %d", t.l.Name, len(ids)+1, n)
	}
	return t.initChunks(ids)
}

// Reserve hands out ids for a later CreateReserved.
func (t *Type) Reserve(n int) ([]cid.ID, error) {
	if err := t.ctx.check(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "count %d", n)
	}
	return t.ctx.store.Reserve(n)
}

// CreateReserved allocates and initializes structs under reserved ids.
func (t *Type) CreateReserved(ids []cid.ID) ([]cid.ID, error) {
	if err := t.ctx.check(); err != nil {
		return nil, err
	}
	sizes := make([]int, len(ids))
	for i := range sizes {
		sizes[i] = t.l.Size
	}
	if err := t.ctx.store.CreateReserved(ids, sizes); err != nil {
		return nil, errors.Wrapf(err, "create reserved %s", t.l.Name)
	}
	return t.initChunks(ids)
}

// initChunks returns the handles of the chunks initialized before a failure
// along with the error.
func (t *Type) initChunks(ids []cid.ID) ([]cid.ID, error) {
	out := make([]cid.ID, len(ids))
	for i, id := range ids {
		h, err := t.initChunk(id)
		if err != nil {
			return out[:i], err
		}
		out[i] = h
	}
	return out, nil
}

func (t *Type) initChunk(id cid.ID) (cid.ID, error) {
	c := t.ctx
	addr, err := c.store.Pin(id)
	if err != nil {
		return cid.Invalid, errors.Wrapf(err, "pin %s", id)
	}
	b, err := c.span(addr, 0, t.l.Size)
	if err != nil {
		return cid.Invalid, err
	}
	clear(b)
	if t.l.Tagged {
		if err := c.writeWord(addr, 0, cid.Header(t.tag, id)); err != nil {
			return cid.Invalid, err
		}
	}
	if err := c.initFields(addr, 0, t.l); err != nil {
		return cid.Invalid, err
	}
	if t.l.Tagged {
		return cid.Direct(addr), nil
	}
	return id, nil
}

// initFields writes the absent encoding into every header of l placed at
// addr+base.
func (c *Context) initFields(addr cid.Address, base int, l *layout.Layout) error {
	for _, f := range l.Fields {
		off := base + f.Offset
		var err error
		switch f.Class {
		case layout.String:
			h := noBacking
			h.length = -1
			err = c.writeHeader(addr, off, h)
		case layout.Array, layout.RefArray, layout.IDArray:
			err = c.writeHeader(addr, off, noBacking)
		case layout.Ref:
			if err = c.writeID(addr, off+layout.RefIDOffset, cid.Invalid); err == nil {
				err = c.writeAddr(addr, off+layout.RefAddrOffset, cid.NullAddress)
			}
		case layout.ID:
			err = c.writeID(addr, off, cid.Invalid)
		case layout.Nested:
			err = c.initFields(addr, off, f.Nested)
		}
		if err != nil {
			return errors.Wrapf(err, "init %s.%s", l.Name, f.Name)
		}
	}
	return nil
}

// locate resolves id to its address and the chunk id the store knows it by.
func (t *Type) locate(id cid.ID) (cid.Address, cid.ID, error) {
	c := t.ctx
	if id.Form() != cid.FormDirect {
		addr, err := t.addrOf(id)
		return addr, id, err
	}
	if !t.l.Tagged {
		return cid.NullAddress, cid.Invalid, errors.Wrapf(ErrUntypedStruct, "%s has no header to recover the id of %s", t.l.Name, id)
	}
	addr := id.Address()
	if c.cfg.CheckTypes {
		if err := t.checkTag(addr); err != nil {
			return cid.NullAddress, cid.Invalid, err
		}
	}
	key, err := t.cidOf(id)
	return addr, key, err
}

// Remove releases every owned backing chunk of the struct, then the struct
// chunk itself. Chunks named by reference fields are left alone.
func (t *Type) Remove(id cid.ID) error {
	c := t.ctx
	if err := c.check(); err != nil {
		return err
	}
	addr, key, err := t.locate(id)
	if err != nil {
		return err
	}
	if err := c.releaseOwned(addr, 0, t.l); err != nil {
		return err
	}
	if err := c.store.Unpin(key); err != nil {
		return errors.Wrapf(err, "unpin %s", key)
	}
	if err := c.store.Remove(key); err != nil {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}

// RemoveAll removes each struct in turn and stops at the first failure.
func (t *Type) RemoveAll(ids []cid.ID) error {
	for i, id := range ids {
		if err := t.Remove(id); err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
	}
	return nil
}

func (c *Context) releaseOwned(addr cid.Address, base int, l *layout.Layout) error {
	for _, f := range l.Fields {
		off := base + f.Offset
		switch f.Class.Ownership() {
		case layout.OwnedArrayChunk:
			h, err := c.readHeader(addr, off)
			if err != nil {
				return err
			}
			// the store treats cid.Invalid as a no-op
			if err := c.store.Unpin(h.id); err != nil {
				return errors.Wrapf(err, "unpin %s.%s backing", l.Name, f.Name)
			}
			if err := c.store.Remove(h.id); err != nil {
				return errors.Wrapf(err, "remove %s.%s backing", l.Name, f.Name)
			}
		case layout.OwnedNestedStruct:
			if err := c.releaseOwned(addr, off, f.Nested); err != nil {
				return err
			}
		case layout.Inline, layout.NonOwningReference:
		}
	}
	return nil
}
