package layout

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
)

// Planner holds struct and enum declarations and caches their layouts.
type Planner struct {
	mu    sync.RWMutex
	defs  map[string]StructDef
	enums map[string]EnumDef
	plans map[string]*Layout
}

func NewPlanner() *Planner {
	return &Planner{
		defs:  make(map[string]StructDef),
		enums: make(map[string]EnumDef),
		plans: make(map[string]*Layout),
	}
}

// Load registers every enum and struct of s.
func (p *Planner) Load(s *Schema) error {
	for _, e := range s.Enums {
		if err := p.RegisterEnum(e); err != nil {
			return err
		}
	}
	return p.Register(s.Structs...)
}

// Register adds struct declarations. Names must be unique.
func (p *Planner) Register(defs ...StructDef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range defs {
		if _, ok := p.defs[d.Name]; ok {
			return errors.Wrapf(ErrDuplicateStruct, "%s", d.Name)
		}
		p.defs[d.Name] = d
	}
	return nil
}

// RegisterEnum adds an enum declaration.
func (p *Planner) RegisterEnum(e EnumDef) error {
	if len(e.Values) == 0 {
		return errors.Wrapf(ErrEmptyEnum, "%s", e.Name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enums[e.Name] = e
	return nil
}

// Enum returns a registered enum.
func (p *Planner) Enum(name string) (EnumDef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.enums[name]
	return e, ok
}

// Names lists registered structs in sorted order.
func (p *Planner) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.defs))
	for n := range p.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Plan returns the layout of a registered struct.
func (p *Planner) Plan(name string) (*Layout, error) {
	p.mu.RLock()
	if l, ok := p.plans[name]; ok {
		p.mu.RUnlock()
		return l, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, ok := p.plans[name]; ok {
		return l, nil
	}
	return p.planLocked(name, map[string]bool{})
}

func (p *Planner) planLocked(name string, visiting map[string]bool) (*Layout, error) {
	if l, ok := p.plans[name]; ok {
		return l, nil
	}
	def, ok := p.defs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStruct, "%s", name)
	}
	if visiting[name] {
		return nil, errors.Wrapf(ErrRecursiveNesting, "%s", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	l := &Layout{
		Name:   def.Name,
		Tagged: def.Tagged,
		Tag:    def.Tag,
		Fields: make([]Field, 0, len(def.Fields)),
		index:  make(map[string]int, len(def.Fields)),
	}
	cursor := l.FirstField()
	for _, fd := range def.Fields {
		if _, dup := l.index[fd.Name]; dup {
			return nil, errors.Wrapf(ErrDuplicateField, "%s.%s", def.Name, fd.Name)
		}
		ft, err := parseType(fd.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", def.Name, fd.Name)
		}
		f := Field{Name: fd.Name, Class: ft.class, Kind: ft.kind, Offset: cursor}
		switch ft.class {
		case Scalar:
			f.Width = common.FixedSize(ft.kind)
		case Enum:
			if _, ok := p.enums[ft.ref]; !ok {
				return nil, errors.Wrapf(ErrUnknownEnum, "%s.%s: %s", def.Name, fd.Name, ft.ref)
			}
			f.Enum = ft.ref
			f.Width = EnumSize
		case Nested:
			sub, err := p.planLocked(ft.ref, visiting)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Name, fd.Name)
			}
			if sub.Tagged {
				return nil, errors.Wrapf(ErrTaggedNested, "%s.%s: %s", def.Name, fd.Name, sub.Name)
			}
			f.Nested = sub
			f.Width = sub.Size
		case String, Array, RefArray, IDArray:
			f.Width = ArrayHeaderSize
		case Ref:
			f.Width = RefSize
		case ID:
			f.Width = IDSize
		}
		l.index[f.Name] = len(l.Fields)
		l.Fields = append(l.Fields, f)
		cursor += f.Width
	}
	l.Size = cursor
	p.plans[name] = l
	return l, nil
}
