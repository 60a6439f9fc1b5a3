package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// Type is a layout bound to a context. Field accessors are obtained from it
// once and reused for every chunk of the type.
type Type struct {
	ctx *Context
	l   *layout.Layout
	tag uint16
}

func (t *Type) Context() *Context      { return t.ctx }
func (t *Type) Layout() *layout.Layout { return t.l }
func (t *Type) Name() string           { return t.l.Name }
func (t *Type) Size() int              { return t.l.Size }
func (t *Type) Tagged() bool           { return t.l.Tagged }

// Tag is the type tag written into the header of typed structs, 0 otherwise.
func (t *Type) Tag() uint16 { return t.tag }

// addrOf resolves id for by-id access. With CheckTypes set, typed structs
// must carry this type's tag.
func (t *Type) addrOf(id cid.ID) (cid.Address, error) {
	c := t.ctx
	if err := c.check(); err != nil {
		return cid.NullAddress, err
	}
	addr, err := c.resolve(id)
	if err != nil {
		return cid.NullAddress, err
	}
	if c.cfg.CheckTypes && t.l.Tagged {
		if err := t.checkTag(addr); err != nil {
			return cid.NullAddress, err
		}
	}
	return addr, nil
}

func (t *Type) checkTag(addr cid.Address) error {
	b, err := t.ctx.span(addr, layout.TypeTagOffset, 2)
	if err != nil {
		return err
	}
	if got := getFixed[uint16](b); got != t.tag {
		return errors.Wrapf(ErrTypeMismatch, "%s wants tag %d, chunk at 0x%x has %d", t.l.Name, t.tag, addr, got)
	}
	return nil
}

// field looks up a dotted path and checks its class.
func (t *Type) field(path string, want layout.Class) (layout.Field, error) {
	f, err := t.l.Lookup(path)
	if err != nil {
		return layout.Field{}, err
	}
	if f.Class != want {
		return layout.Field{}, errors.Wrapf(ErrKindMismatch, "%s.%s is %s, not %s", t.l.Name, path, f.Class, want)
	}
	return f, nil
}

// accessor is the shared part of every field handle.
type accessor struct {
	t *Type
	f layout.Field
}

func (a accessor) Field() layout.Field { return a.f }

func (a accessor) span(addr cid.Address, n int) ([]byte, error) {
	return a.t.ctx.span(addr, a.f.Offset, n)
}
