package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// RefField is a reference to another chunk stored with its address.
type RefField struct {
	accessor
}

func RefOf(t *Type, path string) (*RefField, error) {
	f, err := t.field(path, layout.Ref)
	if err != nil {
		return nil, err
	}
	return &RefField{accessor{t: t, f: f}}, nil
}

func (r *RefField) ID(id cid.ID) (cid.ID, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return cid.Invalid, err
	}
	return r.IDAt(addr)
}

func (r *RefField) IDAt(addr cid.Address) (cid.ID, error) {
	return r.t.ctx.readID(addr, r.f.Offset+layout.RefIDOffset)
}

// Address is the target address cached when the reference was set.
func (r *RefField) Address(id cid.ID) (cid.Address, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return cid.NullAddress, err
	}
	return r.AddressAt(addr)
}

func (r *RefField) AddressAt(addr cid.Address) (cid.Address, error) {
	return r.t.ctx.readAddr(addr, r.f.Offset+layout.RefAddrOffset)
}

// Set points the reference at target.
func (r *RefField) Set(id, target cid.ID) error {
	if target == cid.Invalid {
		return errors.Wrapf(ErrNullArgument, "%s.%s target", r.t.l.Name, r.f.Name)
	}
	addr, err := r.t.addrOf(id)
	if err != nil {
		return err
	}
	return r.SetAt(addr, target)
}

func (r *RefField) SetAt(addr cid.Address, target cid.ID) error {
	if target == cid.Invalid {
		return errors.Wrapf(ErrNullArgument, "%s.%s target", r.t.l.Name, r.f.Name)
	}
	ta, err := r.t.ctx.resolve(target)
	if err != nil {
		return errors.Wrapf(err, "%s.%s target", r.t.l.Name, r.f.Name)
	}
	return r.write(addr, target, ta)
}

// Clear unsets the reference. The target is left alone.
func (r *RefField) Clear(id cid.ID) error {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return err
	}
	return r.ClearAt(addr)
}

func (r *RefField) ClearAt(addr cid.Address) error {
	return r.write(addr, cid.Invalid, cid.NullAddress)
}

func (r *RefField) write(addr cid.Address, target cid.ID, ta cid.Address) error {
	b, err := r.span(addr, layout.RefSize)
	if err != nil {
		return err
	}
	common.PutUint64(b, layout.RefIDOffset, uint64(target))
	common.PutUint64(b, layout.RefAddrOffset, uint64(ta))
	return nil
}

// RefArrayField is an array of references. The backing chunk holds every
// id followed by every cached address.
type RefArrayField struct {
	accessor
}

func RefArrayOf(t *Type, path string) (*RefArrayField, error) {
	f, err := t.field(path, layout.RefArray)
	if err != nil {
		return nil, err
	}
	return &RefArrayField{accessor{t: t, f: f}}, nil
}

func (r *RefArrayField) Len(id cid.ID) (int, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return 0, err
	}
	return r.LenAt(addr)
}

func (r *RefArrayField) LenAt(addr cid.Address) (int, error) {
	n, err := r.t.ctx.readInt32(addr, r.f.Offset+layout.ArrayLenOffset)
	return int(n), err
}

// slot returns the id and address words of element i.
func (r *RefArrayField) slot(addr cid.Address, i int) (idw, aw []byte, err error) {
	c := r.t.ctx
	h, err := c.readHeader(addr, r.f.Offset)
	if err != nil {
		return nil, nil, err
	}
	n := int(h.length)
	if i < 0 || i >= n {
		return nil, nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, n)
	}
	b, err := c.span(h.addr, 0, n*layout.RefSize)
	if err != nil {
		return nil, nil, err
	}
	return b[i*8 : i*8+8], b[(n+i)*8 : (n+i)*8+8], nil
}

func (r *RefArrayField) ID(id cid.ID, i int) (cid.ID, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return cid.Invalid, err
	}
	return r.IDAt(addr, i)
}

func (r *RefArrayField) IDAt(addr cid.Address, i int) (cid.ID, error) {
	idw, _, err := r.slot(addr, i)
	if err != nil {
		return cid.Invalid, err
	}
	return cid.ID(common.Uint64(idw, 0)), nil
}

func (r *RefArrayField) Address(id cid.ID, i int) (cid.Address, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return cid.NullAddress, err
	}
	return r.AddressAt(addr, i)
}

func (r *RefArrayField) AddressAt(addr cid.Address, i int) (cid.Address, error) {
	_, aw, err := r.slot(addr, i)
	if err != nil {
		return cid.NullAddress, err
	}
	return cid.Address(common.Uint64(aw, 0)), nil
}

func (r *RefArrayField) IDs(id cid.ID) ([]cid.ID, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return r.IDsAt(addr)
}

func (r *RefArrayField) IDsAt(addr cid.Address) ([]cid.ID, error) {
	b, n, err := r.all(addr)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]cid.ID, n)
	for i := range out {
		out[i] = cid.ID(common.Uint64(b, i*8))
	}
	return out, nil
}

func (r *RefArrayField) Addresses(id cid.ID) ([]cid.Address, error) {
	addr, err := r.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return r.AddressesAt(addr)
}

func (r *RefArrayField) AddressesAt(addr cid.Address) ([]cid.Address, error) {
	b, n, err := r.all(addr)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]cid.Address, n)
	for i := range out {
		out[i] = cid.Address(common.Uint64(b, (n+i)*8))
	}
	return out, nil
}

func (r *RefArrayField) all(addr cid.Address) ([]byte, int, error) {
	h, err := r.t.ctx.readHeader(addr, r.f.Offset)
	if err != nil {
		return nil, 0, err
	}
	b, err := r.t.ctx.backing(h, layout.RefSize)
	if err != nil || b == nil {
		return nil, 0, err
	}
	return b, int(h.length), nil
}

// Set points element i at target.
func (r *RefArrayField) Set(id cid.ID, i int, target cid.ID) error {
	if target == cid.Invalid {
		return errors.Wrapf(ErrNullArgument, "%s.%s[%d] target", r.t.l.Name, r.f.Name, i)
	}
	addr, err := r.t.addrOf(id)
	if err != nil {
		return err
	}
	return r.SetAt(addr, i, target)
}

func (r *RefArrayField) SetAt(addr cid.Address, i int, target cid.ID) error {
	if target == cid.Invalid {
		return errors.Wrapf(ErrNullArgument, "%s.%s[%d] target", r.t.l.Name, r.f.Name, i)
	}
	idw, aw, err := r.slot(addr, i)
	if err != nil {
		return err
	}
	ta, err := r.t.ctx.resolve(target)
	if err != nil {
		return err
	}
	common.PutUint64(idw, 0, uint64(target))
	common.PutUint64(aw, 0, uint64(ta))
	return nil
}

// SetAll replaces the array. Every target is resolved before the old
// backing chunk is released.
func (r *RefArrayField) SetAll(id cid.ID, targets []cid.ID) error {
	if err := r.checkTargets(targets); err != nil {
		return err
	}
	addr, err := r.t.addrOf(id)
	if err != nil {
		return err
	}
	return r.SetAllAt(addr, targets)
}

func (r *RefArrayField) SetAllAt(addr cid.Address, targets []cid.ID) error {
	if err := r.checkTargets(targets); err != nil {
		return err
	}
	addrs, err := r.t.ctx.TranslateAll(targets)
	if err != nil {
		return err
	}
	n := len(targets)
	return r.t.ctx.rewriteBacking(addr, r.f.Offset, layout.RefSize, n, 0, func(b []byte) {
		for i, id := range targets {
			common.PutUint64(b, i*8, uint64(id))
			common.PutUint64(b, (n+i)*8, uint64(addrs[i]))
		}
	})
}

func (r *RefArrayField) checkTargets(targets []cid.ID) error {
	for i, id := range targets {
		if id == cid.Invalid {
			return errors.Wrapf(ErrNullArgument, "%s.%s[%d] target", r.t.l.Name, r.f.Name, i)
		}
	}
	return nil
}

// IDField is a graph id. Ids local to this node are stored in direct form so
// they can be followed without a translation.
type IDField struct {
	accessor
}

func IDOf(t *Type, path string) (*IDField, error) {
	f, err := t.field(path, layout.ID)
	if err != nil {
		return nil, err
	}
	return &IDField{accessor{t: t, f: f}}, nil
}

// Get returns the stored id: direct for local targets, distributed for
// remote ones.
func (g *IDField) Get(id cid.ID) (cid.ID, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return cid.Invalid, err
	}
	return g.GetAt(addr)
}

func (g *IDField) GetAt(addr cid.Address) (cid.ID, error) {
	return g.t.ctx.readID(addr, g.f.Offset)
}

// IsLocal reports whether the stored id is in direct form.
func (g *IDField) IsLocal(id cid.ID) (bool, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return false, err
	}
	return g.IsLocalAt(addr)
}

func (g *IDField) IsLocalAt(addr cid.Address) (bool, error) {
	v, err := g.GetAt(addr)
	return v.Form() == cid.FormDirect, err
}

func (g *IDField) Set(id, v cid.ID) error {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return err
	}
	return g.SetAt(addr, v)
}

func (g *IDField) SetAt(addr cid.Address, v cid.ID) error {
	enc, err := g.t.ctx.encodeID(v)
	if err != nil {
		return err
	}
	return g.t.ctx.writeID(addr, g.f.Offset, enc)
}

// IDArrayField is an array of graph ids stored the way IDField stores one.
type IDArrayField struct {
	accessor
}

func IDArrayOf(t *Type, path string) (*IDArrayField, error) {
	f, err := t.field(path, layout.IDArray)
	if err != nil {
		return nil, err
	}
	return &IDArrayField{accessor{t: t, f: f}}, nil
}

func (g *IDArrayField) Len(id cid.ID) (int, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return 0, err
	}
	return g.LenAt(addr)
}

func (g *IDArrayField) LenAt(addr cid.Address) (int, error) {
	n, err := g.t.ctx.readInt32(addr, g.f.Offset+layout.ArrayLenOffset)
	return int(n), err
}

func (g *IDArrayField) Get(id cid.ID, i int) (cid.ID, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return cid.Invalid, err
	}
	return g.GetAt(addr, i)
}

func (g *IDArrayField) GetAt(addr cid.Address, i int) (cid.ID, error) {
	b, err := g.t.ctx.element(addr, g.f.Offset, i, layout.IDSize)
	if err != nil {
		return cid.Invalid, err
	}
	return cid.ID(common.Uint64(b, 0)), nil
}

func (g *IDArrayField) Set(id cid.ID, i int, v cid.ID) error {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return err
	}
	return g.SetAt(addr, i, v)
}

func (g *IDArrayField) SetAt(addr cid.Address, i int, v cid.ID) error {
	b, err := g.t.ctx.element(addr, g.f.Offset, i, layout.IDSize)
	if err != nil {
		return err
	}
	enc, err := g.t.ctx.encodeID(v)
	if err != nil {
		return err
	}
	common.PutUint64(b, 0, uint64(enc))
	return nil
}

func (g *IDArrayField) All(id cid.ID) ([]cid.ID, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return g.AllAt(addr)
}

func (g *IDArrayField) AllAt(addr cid.Address) ([]cid.ID, error) {
	return g.filter(addr, func(cid.ID) bool { return true })
}

// LocalIDs returns the stored ids in direct form.
func (g *IDArrayField) LocalIDs(id cid.ID) ([]cid.ID, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return g.LocalIDsAt(addr)
}

func (g *IDArrayField) LocalIDsAt(addr cid.Address) ([]cid.ID, error) {
	return g.filter(addr, func(v cid.ID) bool { return v.Form() == cid.FormDirect })
}

// RemoteIDs returns the stored distributed ids.
func (g *IDArrayField) RemoteIDs(id cid.ID) ([]cid.ID, error) {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return g.RemoteIDsAt(addr)
}

func (g *IDArrayField) RemoteIDsAt(addr cid.Address) ([]cid.ID, error) {
	return g.filter(addr, func(v cid.ID) bool { return v.Form() == cid.FormDistributed })
}

func (g *IDArrayField) filter(addr cid.Address, keep func(cid.ID) bool) ([]cid.ID, error) {
	h, err := g.t.ctx.readHeader(addr, g.f.Offset)
	if err != nil {
		return nil, err
	}
	b, err := g.t.ctx.backing(h, layout.IDSize)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]cid.ID, 0, h.length)
	for i := 0; i < int(h.length); i++ {
		if v := cid.ID(common.Uint64(b, i*8)); keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// SetAll replaces the array, encoding every id at write time.
func (g *IDArrayField) SetAll(id cid.ID, vs []cid.ID) error {
	addr, err := g.t.addrOf(id)
	if err != nil {
		return err
	}
	return g.SetAllAt(addr, vs)
}

func (g *IDArrayField) SetAllAt(addr cid.Address, vs []cid.ID) error {
	enc := make([]cid.ID, len(vs))
	for i, v := range vs {
		e, err := g.t.ctx.encodeID(v)
		if err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
		enc[i] = e
	}
	return g.t.ctx.rewriteBacking(addr, g.f.Offset, layout.IDSize, len(enc), 0, func(b []byte) {
		for i, v := range enc {
			common.PutUint64(b, i*8, uint64(v))
		}
	})
}
