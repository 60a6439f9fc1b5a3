package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
)

// Translate resolves id to the address of its pinned chunk. Direct ids carry
// their address; distributed ids must belong to the local node.
func (c *Context) Translate(id cid.ID) (cid.Address, error) {
	if err := c.check(); err != nil {
		return cid.NullAddress, err
	}
	return c.resolve(id)
}

// TranslateAll resolves every id, stopping at the first failure.
func (c *Context) TranslateAll(ids []cid.ID) ([]cid.Address, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	out := make([]cid.Address, len(ids))
	for i, id := range ids {
		a, err := c.resolve(id)
		if err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
		out[i] = a
	}
	return out, nil
}

func (c *Context) resolve(id cid.ID) (cid.Address, error) {
	switch id.Form() {
	case cid.FormInvalid:
		return cid.NullAddress, errors.Wrap(ErrInvalidIdentifier, "invalid id")
	case cid.FormDirect:
		return id.Address(), nil
	}
	if id.NID() != c.nid {
		return cid.NullAddress, errors.Wrapf(ErrInvalidIdentifier, "%s is not local to node %d", id, c.nid)
	}
	return c.store.Translate(id)
}

// encodeID is the stored form of a graph id: local distributed ids become
// direct ids, everything else is kept as given.
func (c *Context) encodeID(id cid.ID) (cid.ID, error) {
	if id.Form() != cid.FormDistributed || id.NID() != c.nid {
		return id, nil
	}
	a, err := c.store.Translate(id)
	if err != nil {
		return cid.Invalid, err
	}
	return cid.Direct(a), nil
}
