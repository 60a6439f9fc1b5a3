package layout

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
)

// TypeHeader marks a Go struct as a typed entity when embedded.
type TypeHeader struct{}

var (
	typeHeaderType = reflect.TypeOf(TypeHeader{})
	idType         = reflect.TypeOf(cid.ID(0))
)

// RegisterType derives struct declarations from a Go struct type and its
// nested struct fields, registers them, and returns the top-level name.
//
// Exported fields are taken in declaration order. The `dx` tag renames a
// field and selects classes the Go type alone cannot express:
//
//	Name    string    `dx:"name"`
//	Country cid.ID    `dx:"country,ref"`
//	Nbrs    []cid.ID  `dx:"nbrs,id"`
//	Kind    int32     `dx:"kind,enum=Gender"`
//	Initial uint16    `dx:",char"`
//	Skip    int64     `dx:"-"`
func (p *Planner) RegisterType(t reflect.Type) (string, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	defs, err := structDefsOf(t, map[reflect.Type]bool{})
	if err != nil {
		return "", err
	}
	p.mu.RLock()
	var fresh []StructDef
	picked := make(map[string]bool, len(defs))
	for _, d := range defs {
		if _, ok := p.defs[d.Name]; !ok && !picked[d.Name] {
			picked[d.Name] = true
			fresh = append(fresh, d)
		}
	}
	p.mu.RUnlock()
	if err := p.Register(fresh...); err != nil {
		return "", err
	}
	return t.Name(), nil
}

func structDefsOf(t reflect.Type, seen map[reflect.Type]bool) ([]StructDef, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrUnknownType, "%s is not a struct", t)
	}
	if seen[t] {
		return nil, errors.Wrapf(ErrRecursiveNesting, "%s", t.Name())
	}
	seen[t] = true
	defer delete(seen, t)

	def := StructDef{Name: t.Name()}
	var deps []StructDef
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == typeHeaderType {
			def.Tagged = true
			continue
		}
		if sf.PkgPath != "" {
			continue // skip unexported
		}
		name, opts := parseTag(sf)
		if name == "-" {
			continue
		}
		typ, err := typeName(sf.Type, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", t.Name(), sf.Name)
		}
		if strings.HasPrefix(typ, "struct:") {
			sub, err := structDefsOf(sf.Type, seen)
			if err != nil {
				return nil, err
			}
			deps = append(deps, sub...)
		}
		def.Fields = append(def.Fields, FieldDef{Name: name, Type: typ})
	}
	return append(deps, def), nil
}

func parseTag(sf reflect.StructField) (string, map[string]string) {
	tag := sf.Tag.Get("dx")
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = sf.Name
	}
	opts := make(map[string]string, len(parts)-1)
	for _, o := range parts[1:] {
		k, v, _ := strings.Cut(o, "=")
		opts[k] = v
	}
	return name, opts
}

func typeName(t reflect.Type, opts map[string]string) (string, error) {
	_, ref := opts["ref"]
	_, id := opts["id"]
	switch {
	case ref || id:
		base := "ref"
		if id {
			base = "id"
		}
		switch {
		case t == idType || t.Kind() == reflect.Uint64:
			return base, nil
		case t.Kind() == reflect.Slice && (t.Elem() == idType || t.Elem().Kind() == reflect.Uint64):
			return "[]" + base, nil
		}
		return "", errors.Wrapf(ErrUnknownType, "%s cannot hold a %s", t, base)
	case opts["enum"] != "":
		if t.Kind() != reflect.Int32 {
			return "", errors.Wrapf(ErrUnknownType, "enum %s needs int32, got %s", opts["enum"], t)
		}
		return "enum:" + opts["enum"], nil
	}
	if _, ok := opts["char"]; ok && t.Kind() == reflect.Uint16 {
		return "char", nil
	}

	k := t.Kind()
	switch {
	case common.IsFixedKind(k):
		return k.String(), nil
	case k == reflect.String:
		return "string", nil
	case k == reflect.Slice && common.IsFixedKind(t.Elem().Kind()):
		return "[]" + t.Elem().Kind().String(), nil
	case k == reflect.Struct:
		return "struct:" + t.Name(), nil
	}
	return "", errors.Wrapf(ErrUnknownType, "%s", t)
}
