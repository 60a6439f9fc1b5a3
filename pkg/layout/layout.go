// Package layout computes the fixed binary layout of schema structs.
//
// Fields are packed strictly in declaration order with no padding. Scalars
// take their native width, nested structs are inlined, and variable-length
// content lives in a separate backing chunk referenced from a fixed header.
package layout

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
)

// Fixed sub-layouts shared by every struct.
const (
	TypeHeaderSize = 8 // typed entity header word: tag<<48 | lid
	TypeTagOffset  = 6

	ArrayHeaderSize = 20 // length:int32, backing id:int64, cached address:int64
	ArrayLenOffset  = 0
	ArrayIDOffset   = 4
	ArrayAddrOffset = 12

	RefSize       = 16 // id:int64, cached address:int64
	RefIDOffset   = 0
	RefAddrOffset = 8

	EnumSize = 4
	IDSize   = 8
)

// Class is the semantic kind of a field.
type Class uint8

const (
	Scalar Class = iota
	Enum
	Nested
	String
	Array
	Ref
	RefArray
	ID
	IDArray
)

var classNames = [...]string{
	Scalar:   "scalar",
	Enum:     "enum",
	Nested:   "struct",
	String:   "string",
	Array:    "array",
	Ref:      "ref",
	RefArray: "ref-array",
	ID:       "id",
	IDArray:  "id-array",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "class(?)"
}

// Ownership says what a remove of the enclosing struct does with a field.
type Ownership uint8

const (
	// Inline data lives in the struct chunk itself.
	Inline Ownership = iota
	// OwnedArrayChunk fields own a backing chunk released with the struct.
	OwnedArrayChunk
	// OwnedNestedStruct fields are inlined structs whose own owned fields are released.
	OwnedNestedStruct
	// NonOwningReference targets are never released by the referrer.
	NonOwningReference
)

// Ownership of the class. Reference arrays own their backing chunk of
// id/address pairs but not the chunks those ids name.
func (c Class) Ownership() Ownership {
	switch c {
	case String, Array, RefArray, IDArray:
		return OwnedArrayChunk
	case Nested:
		return OwnedNestedStruct
	case Ref, ID:
		return NonOwningReference
	default:
		return Inline
	}
}

// Field is one planned field.
type Field struct {
	Name   string
	Class  Class
	Kind   reflect.Kind // element kind for Scalar and Array
	Enum   string       // enum name for Enum
	Offset int
	Width  int
	Nested *Layout // planned layout for Nested
}

// ElemWidth is the byte width of one element in the backing chunk.
func (f Field) ElemWidth() int {
	switch f.Class {
	case Array:
		return common.FixedSize(f.Kind)
	case String:
		return 1
	case RefArray:
		return RefSize
	case IDArray:
		return IDSize
	default:
		return 0
	}
}

// Layout is the planned binary shape of a struct.
type Layout struct {
	Name   string
	Tagged bool
	Tag    uint16
	Size   int
	Fields []Field
	index  map[string]int
}

// Field returns a direct field by name.
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}
	return l.Fields[i], true
}

// Lookup resolves a dotted path through nested structs. The returned
// field's offset is absolute within l.
func (l *Layout) Lookup(path string) (Field, error) {
	cur := l
	base := 0
	parts := strings.Split(path, ".")
	for i, part := range parts {
		f, ok := cur.Field(part)
		if !ok {
			return Field{}, errors.Wrapf(ErrUnknownField, "%s.%s", cur.Name, part)
		}
		if i == len(parts)-1 {
			f.Offset += base
			return f, nil
		}
		if f.Class != Nested {
			return Field{}, errors.Wrapf(ErrNotNested, "%s.%s", cur.Name, part)
		}
		base += f.Offset
		cur = f.Nested
	}
	return Field{}, errors.Wrapf(ErrUnknownField, "%q", path)
}

// FirstField is the offset of the first declared field.
func (l *Layout) FirstField() int {
	if l.Tagged {
		return TypeHeaderSize
	}
	return 0
}
