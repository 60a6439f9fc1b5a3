package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

func (t *Type) requireTagged() error {
	if err := t.ctx.check(); err != nil {
		return err
	}
	if !t.l.Tagged {
		return errors.Wrap(ErrUntypedStruct, t.l.Name)
	}
	return nil
}

// IsValidType reports whether the chunk named by id carries this type's tag.
// Chunks too short for a header are not of the type. Only an id that cannot
// be resolved is an error.
func (t *Type) IsValidType(id cid.ID) (bool, error) {
	if err := t.requireTagged(); err != nil {
		return false, err
	}
	addr, err := t.ctx.resolve(id)
	if err != nil {
		return false, err
	}
	if addr == cid.NullAddress {
		return false, nil
	}
	b, err := t.ctx.span(addr, layout.TypeTagOffset, 2)
	if err != nil {
		// too short to hold a header
		return false, nil
	}
	return getFixed[uint16](b) == t.tag, nil
}

// DirectID returns the direct form of id. Direct and invalid ids are returned
// unchanged.
func (t *Type) DirectID(id cid.ID) (cid.ID, error) {
	if err := t.requireTagged(); err != nil {
		return cid.Invalid, err
	}
	return t.directID(id)
}

func (t *Type) directID(id cid.ID) (cid.ID, error) {
	if id.Form() != cid.FormDistributed {
		return id, nil
	}
	addr, err := t.ctx.resolve(id)
	if err != nil {
		return cid.Invalid, err
	}
	return cid.Direct(addr), nil
}

func (t *Type) DirectIDs(ids []cid.ID) ([]cid.ID, error) {
	if err := t.requireTagged(); err != nil {
		return nil, err
	}
	out := make([]cid.ID, len(ids))
	for i, id := range ids {
		d, err := t.directID(id)
		if err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
		out[i] = d
	}
	return out, nil
}

// CID returns the distributed id of a typed struct. A direct id is mapped
// back through the lid stored in the struct header; other ids are returned
// unchanged.
func (t *Type) CID(id cid.ID) (cid.ID, error) {
	if err := t.requireTagged(); err != nil {
		return cid.Invalid, err
	}
	return t.cidOf(id)
}

func (t *Type) cidOf(id cid.ID) (cid.ID, error) {
	if id.Form() != cid.FormDirect {
		return id, nil
	}
	w, err := t.ctx.readWord(id.Address(), 0)
	if err != nil {
		return cid.Invalid, err
	}
	return cid.New(t.ctx.nid, cid.HeaderLID(w)), nil
}

func (t *Type) CIDs(ids []cid.ID) ([]cid.ID, error) {
	if err := t.requireTagged(); err != nil {
		return nil, err
	}
	out := make([]cid.ID, len(ids))
	for i, id := range ids {
		d, err := t.cidOf(id)
		if err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
		out[i] = d
	}
	return out, nil
}
