package dxmem

import (
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// ScalarField reads and writes a fixed-width field in place.
type ScalarField[T Fixed] struct {
	accessor
	width int
}

// ScalarOf binds a scalar field. T must have the planned kind.
func ScalarOf[T Fixed](t *Type, path string) (*ScalarField[T], error) {
	f, err := t.field(path, layout.Scalar)
	if err != nil {
		return nil, err
	}
	if k := kindOf[T](); k != f.Kind {
		return nil, errors.Wrapf(ErrKindMismatch, "%s.%s is %s, accessor is %s", t.l.Name, path, f.Kind, k)
	}
	return &ScalarField[T]{accessor: accessor{t: t, f: f}, width: widthOf[T]()}, nil
}

func (s *ScalarField[T]) Get(id cid.ID) (T, error) {
	addr, err := s.t.addrOf(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.GetAt(addr)
}

func (s *ScalarField[T]) GetAt(addr cid.Address) (T, error) {
	b, err := s.span(addr, s.width)
	if err != nil {
		var zero T
		return zero, err
	}
	return getFixed[T](b), nil
}

func (s *ScalarField[T]) Set(id cid.ID, v T) error {
	addr, err := s.t.addrOf(id)
	if err != nil {
		return err
	}
	return s.SetAt(addr, v)
}

func (s *ScalarField[T]) SetAt(addr cid.Address, v T) error {
	b, err := s.span(addr, s.width)
	if err != nil {
		return err
	}
	putFixed(b, v)
	return nil
}

// EnumTable maps enum values to the ordinals stored in memory.
type EnumTable[E comparable] struct {
	name     string
	values   []E
	ordinals map[E]int32
}

// NewEnumTable builds a table where each value is stored as its position.
func NewEnumTable[E comparable](name string, values ...E) *EnumTable[E] {
	t := &EnumTable[E]{
		name:     name,
		values:   append([]E(nil), values...),
		ordinals: make(map[E]int32, len(values)),
	}
	for i, v := range values {
		if _, dup := t.ordinals[v]; !dup {
			t.ordinals[v] = int32(i)
		}
	}
	return t
}

// EnumTableFromDef builds a string table from a schema enum.
func EnumTableFromDef(def layout.EnumDef) *EnumTable[string] {
	return NewEnumTable(def.Name, def.Values...)
}

func (t *EnumTable[E]) Name() string { return t.name }
func (t *EnumTable[E]) Len() int     { return len(t.values) }

func (t *EnumTable[E]) Value(ord int32) (E, error) {
	if ord < 0 || int(ord) >= len(t.values) {
		var zero E
		return zero, errors.Wrapf(ErrInvalidEnum, "%s ordinal %d", t.name, ord)
	}
	return t.values[ord], nil
}

func (t *EnumTable[E]) Ordinal(v E) (int32, error) {
	ord, ok := t.ordinals[v]
	if !ok {
		return -1, errors.Wrapf(ErrInvalidEnum, "%s value %v", t.name, v)
	}
	return ord, nil
}

// EnumField stores an enum value as a 4-byte ordinal.
type EnumField[E comparable] struct {
	accessor
	table *EnumTable[E]
}

// EnumOf binds an enum field to the table for its enum.
func EnumOf[E comparable](t *Type, path string, table *EnumTable[E]) (*EnumField[E], error) {
	if table == nil {
		return nil, errors.Wrap(ErrNullArgument, "enum table")
	}
	f, err := t.field(path, layout.Enum)
	if err != nil {
		return nil, err
	}
	if f.Enum != table.name {
		return nil, errors.Wrapf(ErrKindMismatch, "%s.%s is enum %s, table is %s", t.l.Name, path, f.Enum, table.name)
	}
	return &EnumField[E]{accessor: accessor{t: t, f: f}, table: table}, nil
}

func (e *EnumField[E]) Get(id cid.ID) (E, error) {
	addr, err := e.t.addrOf(id)
	if err != nil {
		var zero E
		return zero, err
	}
	return e.GetAt(addr)
}

func (e *EnumField[E]) GetAt(addr cid.Address) (E, error) {
	ord, err := e.t.ctx.readInt32(addr, e.f.Offset)
	if err != nil {
		var zero E
		return zero, err
	}
	return e.table.Value(ord)
}

func (e *EnumField[E]) Set(id cid.ID, v E) error {
	addr, err := e.t.addrOf(id)
	if err != nil {
		return err
	}
	return e.SetAt(addr, v)
}

func (e *EnumField[E]) SetAt(addr cid.Address, v E) error {
	ord, err := e.table.Ordinal(v)
	if err != nil {
		return err
	}
	return e.t.ctx.writeInt32(addr, e.f.Offset, ord)
}

// NestedField locates a struct inlined in its parent.
type NestedField struct {
	accessor
}

func NestedOf(t *Type, path string) (*NestedField, error) {
	f, err := t.field(path, layout.Nested)
	if err != nil {
		return nil, err
	}
	return &NestedField{accessor{t: t, f: f}}, nil
}

// Layout is the planned layout of the nested struct.
func (n *NestedField) Layout() *layout.Layout { return n.f.Nested }

// Address of the nested struct inside the parent named by id. Accessors of
// a Type bound to Layout() can be used on it with their At methods.
func (n *NestedField) Address(id cid.ID) (cid.Address, error) {
	addr, err := n.t.addrOf(id)
	if err != nil {
		return cid.NullAddress, err
	}
	return n.AddressAt(addr)
}

func (n *NestedField) AddressAt(addr cid.Address) (cid.Address, error) {
	if err := n.t.ctx.check(); err != nil {
		return cid.NullAddress, err
	}
	if addr == cid.NullAddress {
		return cid.NullAddress, errors.Wrap(ErrInvalidIdentifier, "null address")
	}
	return addr + cid.Address(n.f.Offset), nil
}
