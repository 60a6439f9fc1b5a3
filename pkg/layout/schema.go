package layout

import (
	"io"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownStruct    = errors.New("unknown struct")
	ErrDuplicateStruct  = errors.New("struct already registered")
	ErrUnknownType      = errors.New("unknown field type")
	ErrUnknownEnum      = errors.New("unknown enum")
	ErrUnknownField     = errors.New("unknown field")
	ErrDuplicateField   = errors.New("duplicate field")
	ErrNotNested        = errors.New("field is not a nested struct")
	ErrRecursiveNesting = errors.New("struct nests itself")
	ErrTaggedNested     = errors.New("typed struct cannot be inlined")
	ErrEmptyEnum        = errors.New("enum has no values")
)

// FieldDef declares a field. Type follows the schema grammar:
//
//	bool int8 uint8 int16 uint16 int32 uint32 int64 uint64 float32 float64 char
//	string  []<scalar>  ref  []ref  id  []id  enum:<Name>  struct:<Name>
type FieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// StructDef declares a struct. Tagged structs carry a type header and are
// addressed through direct-form ids.
type StructDef struct {
	Name   string     `yaml:"name"`
	Tagged bool       `yaml:"tagged,omitempty"`
	Tag    uint16     `yaml:"tag,omitempty"`
	Fields []FieldDef `yaml:"fields"`
}

// EnumDef declares an enum by its ordered values.
type EnumDef struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// Schema is a schema file.
type Schema struct {
	Enums   []EnumDef   `yaml:"enums,omitempty"`
	Structs []StructDef `yaml:"structs"`
}

// LoadSchema decodes a YAML schema. Unknown keys are rejected.
func LoadSchema(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	s := &Schema{}
	if err := dec.Decode(s); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	return s, nil
}

// fieldType is a parsed FieldDef.Type.
type fieldType struct {
	class Class
	kind  reflect.Kind
	ref   string // struct or enum name
}

func parseType(s string) (fieldType, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "string":
		return fieldType{class: String, kind: reflect.Uint8}, nil
	case "ref":
		return fieldType{class: Ref}, nil
	case "[]ref":
		return fieldType{class: RefArray}, nil
	case "id":
		return fieldType{class: ID}, nil
	case "[]id":
		return fieldType{class: IDArray}, nil
	}
	if name, ok := strings.CutPrefix(s, "enum:"); ok && name != "" {
		return fieldType{class: Enum, ref: name}, nil
	}
	if name, ok := strings.CutPrefix(s, "struct:"); ok && name != "" {
		return fieldType{class: Nested, ref: name}, nil
	}
	if elem, ok := strings.CutPrefix(s, "[]"); ok {
		if k, ok := common.ScalarKind(elem); ok {
			return fieldType{class: Array, kind: k}, nil
		}
		return fieldType{}, errors.Wrapf(ErrUnknownType, "%q", s)
	}
	if k, ok := common.ScalarKind(s); ok {
		return fieldType{class: Scalar, kind: k}, nil
	}
	return fieldType{}, errors.Wrapf(ErrUnknownType, "%q", s)
}
