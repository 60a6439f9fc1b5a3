package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// ArrayField is a scalar array whose elements live in a backing chunk.
type ArrayField[T Fixed] struct {
	accessor
	elem int
}

// ArrayOf binds an array field. T must have the planned element kind.
func ArrayOf[T Fixed](t *Type, path string) (*ArrayField[T], error) {
	f, err := t.field(path, layout.Array)
	if err != nil {
		return nil, err
	}
	if k := kindOf[T](); k != f.Kind {
		return nil, errors.Wrapf(ErrKindMismatch, "%s.%s holds %s, accessor is %s", t.l.Name, path, f.Kind, k)
	}
	return &ArrayField[T]{accessor: accessor{t: t, f: f}, elem: widthOf[T]()}, nil
}

func (a *ArrayField[T]) Len(id cid.ID) (int, error) {
	addr, err := a.t.addrOf(id)
	if err != nil {
		return 0, err
	}
	return a.LenAt(addr)
}

func (a *ArrayField[T]) LenAt(addr cid.Address) (int, error) {
	n, err := a.t.ctx.readInt32(addr, a.f.Offset+layout.ArrayLenOffset)
	return int(n), err
}

func (a *ArrayField[T]) Get(id cid.ID, i int) (T, error) {
	addr, err := a.t.addrOf(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return a.GetAt(addr, i)
}

func (a *ArrayField[T]) GetAt(addr cid.Address, i int) (T, error) {
	b, err := a.t.ctx.element(addr, a.f.Offset, i, a.elem)
	if err != nil {
		var zero T
		return zero, err
	}
	return getFixed[T](b), nil
}

func (a *ArrayField[T]) Set(id cid.ID, i int, v T) error {
	addr, err := a.t.addrOf(id)
	if err != nil {
		return err
	}
	return a.SetAt(addr, i, v)
}

func (a *ArrayField[T]) SetAt(addr cid.Address, i int, v T) error {
	b, err := a.t.ctx.element(addr, a.f.Offset, i, a.elem)
	if err != nil {
		return err
	}
	putFixed(b, v)
	return nil
}

// All copies the elements out. Absent and empty arrays give nil.
func (a *ArrayField[T]) All(id cid.ID) ([]T, error) {
	addr, err := a.t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return a.AllAt(addr)
}

func (a *ArrayField[T]) AllAt(addr cid.Address) ([]T, error) {
	h, err := a.t.ctx.readHeader(addr, a.f.Offset)
	if err != nil {
		return nil, err
	}
	b, err := a.t.ctx.backing(h, a.elem)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]T, h.length)
	for i := range out {
		out[i] = getFixed[T](b[i*a.elem:])
	}
	return out, nil
}

// SetAll replaces the array with a fresh backing chunk holding vs.
func (a *ArrayField[T]) SetAll(id cid.ID, vs []T) error {
	addr, err := a.t.addrOf(id)
	if err != nil {
		return err
	}
	return a.SetAllAt(addr, vs)
}

func (a *ArrayField[T]) SetAllAt(addr cid.Address, vs []T) error {
	return a.t.ctx.rewriteBacking(addr, a.f.Offset, a.elem, len(vs), 0, func(b []byte) {
		for i, v := range vs {
			putFixed(b[i*a.elem:], v)
		}
	})
}

// StringField is a byte string in a backing chunk. An absent string has
// length -1, an empty one length 0.
type StringField struct {
	accessor
}

func StringOf(t *Type, path string) (*StringField, error) {
	f, err := t.field(path, layout.String)
	if err != nil {
		return nil, err
	}
	return &StringField{accessor{t: t, f: f}}, nil
}

// Len is the byte length, -1 when absent.
func (s *StringField) Len(id cid.ID) (int, error) {
	addr, err := s.t.addrOf(id)
	if err != nil {
		return 0, err
	}
	return s.LenAt(addr)
}

func (s *StringField) LenAt(addr cid.Address) (int, error) {
	n, err := s.t.ctx.readInt32(addr, s.f.Offset+layout.ArrayLenOffset)
	return int(n), err
}

// Get returns the string and whether it is present.
func (s *StringField) Get(id cid.ID) (string, bool, error) {
	addr, err := s.t.addrOf(id)
	if err != nil {
		return "", false, err
	}
	return s.GetAt(addr)
}

func (s *StringField) GetAt(addr cid.Address) (string, bool, error) {
	h, err := s.t.ctx.readHeader(addr, s.f.Offset)
	if err != nil {
		return "", false, err
	}
	if h.length < 0 {
		return "", false, nil
	}
	b, err := s.t.ctx.backing(h, 1)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *StringField) Set(id cid.ID, v string) error {
	addr, err := s.t.addrOf(id)
	if err != nil {
		return err
	}
	return s.SetAt(addr, v)
}

func (s *StringField) SetAt(addr cid.Address, v string) error {
	return s.t.ctx.rewriteBacking(addr, s.f.Offset, 1, len(v), 0, func(b []byte) {
		copy(b, v)
	})
}

// SetNull releases the backing chunk and marks the string absent.
func (s *StringField) SetNull(id cid.ID) error {
	addr, err := s.t.addrOf(id)
	if err != nil {
		return err
	}
	return s.SetNullAt(addr)
}

func (s *StringField) SetNullAt(addr cid.Address) error {
	return s.t.ctx.rewriteBacking(addr, s.f.Offset, 1, 0, -1, nil)
}
