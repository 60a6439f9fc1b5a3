// Package model binds the bundled example schema to a dxmem context.
//
// Each struct gets a wrapper that embeds its bound Type, so Create, Remove,
// Use and the typed id codec are available directly, plus one accessor per
// field.
package model

import (
	"bytes"
	_ "embed"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

//go:embed schema.yaml
var schemaYAML []byte

// Schema returns the raw bundled schema.
func Schema() []byte { return bytes.Clone(schemaYAML) }

// NewPlanner returns a planner loaded with the bundled schema.
func NewPlanner() (*layout.Planner, error) {
	s, err := layout.LoadSchema(bytes.NewReader(schemaYAML))
	if err != nil {
		return nil, err
	}
	p := layout.NewPlanner()
	if err := p.Load(s); err != nil {
		return nil, err
	}
	return p, nil
}

type City struct {
	*dxmem.Type
	Name       *dxmem.StringField
	Country    *dxmem.RefField
	Population *dxmem.ScalarField[int32]
	Area       *dxmem.ScalarField[int32]
}

type Country struct {
	*dxmem.Type
	Name       *dxmem.StringField
	Population *dxmem.ScalarField[int64]
	Area       *dxmem.ScalarField[int32]
	Capital    *dxmem.IDField
	Cities     *dxmem.IDArrayField
}

type Person struct {
	*dxmem.Type
	Name            *dxmem.StringField
	Age             *dxmem.ScalarField[int16]
	DateOfBirth     *dxmem.ScalarField[int64]
	PlaceOfBirth    *dxmem.IDField
	HomeAddress     *dxmem.StringField
	Email           *dxmem.StringField
	FavoriteNumbers *dxmem.ArrayField[int32]
	Friends         *dxmem.IDArrayField
	Family          *dxmem.IDArrayField
}

type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Weekdays is the ordinal table of Weekday.
var Weekdays = dxmem.NewEnumTable("Weekday", Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday)

type Citizen struct {
	*dxmem.Type
	Name        *dxmem.StringField
	Address     *dxmem.NestedField
	Street      *dxmem.StringField
	Zip         *dxmem.ScalarField[int32]
	FavoriteDay *dxmem.EnumField[Weekday]
	Home        *dxmem.RefField
	Friends     *dxmem.RefArrayField
	Scores      *dxmem.ArrayField[float64]
}

type Graph struct {
	*dxmem.Type
	Name     *dxmem.StringField
	Version  *dxmem.ScalarField[int64]
	EdgeList *dxmem.IDArrayField
}

type Vertex struct {
	*dxmem.Type
	Depth        *dxmem.ScalarField[int32]
	InNeighbors  *dxmem.IDArrayField
	OutNeighbors *dxmem.IDArrayField
}

type Edge struct {
	*dxmem.Type
	Weight *dxmem.ScalarField[float64]
	Src    *dxmem.IDField
	Dst    *dxmem.IDField
}

// Model holds every bound struct of the schema.
type Model struct {
	Planner *layout.Planner

	City    *City
	Country *Country
	Person  *Person
	Citizen *Citizen
	Graph   *Graph
	Vertex  *Vertex
	Edge    *Edge
}

// binder binds fields of one type and keeps the first error.
type binder struct {
	t   *dxmem.Type
	err error
}

func field[F any](b *binder, bind func(*dxmem.Type, string) (F, error), path string) F {
	var zero F
	if b.err != nil {
		return zero
	}
	f, err := bind(b.t, path)
	if err != nil {
		b.err = errors.Wrapf(err, "bind %s.%s", b.t.Name(), path)
		return zero
	}
	return f
}

func (m *Model) bind(ctx *dxmem.Context, name string) (*binder, error) {
	l, err := m.Planner.Plan(name)
	if err != nil {
		return nil, err
	}
	t, err := ctx.Type(l)
	if err != nil {
		return nil, err
	}
	return &binder{t: t}, nil
}

// Bind plans the bundled schema and binds every struct to ctx.
func Bind(ctx *dxmem.Context) (*Model, error) {
	p, err := NewPlanner()
	if err != nil {
		return nil, err
	}
	m := &Model{Planner: p}
	for _, step := range []func(*dxmem.Context) error{
		m.bindCity, m.bindCountry, m.bindPerson, m.bindCitizen,
		m.bindGraph, m.bindVertex, m.bindEdge,
	} {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) bindCity(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "City")
	if err != nil {
		return err
	}
	m.City = &City{
		Type:       b.t,
		Name:       field(b, dxmem.StringOf, "name"),
		Country:    field(b, dxmem.RefOf, "country"),
		Population: field(b, dxmem.ScalarOf[int32], "population"),
		Area:       field(b, dxmem.ScalarOf[int32], "area"),
	}
	return b.err
}

func (m *Model) bindCountry(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Country")
	if err != nil {
		return err
	}
	m.Country = &Country{
		Type:       b.t,
		Name:       field(b, dxmem.StringOf, "name"),
		Population: field(b, dxmem.ScalarOf[int64], "population"),
		Area:       field(b, dxmem.ScalarOf[int32], "area"),
		Capital:    field(b, dxmem.IDOf, "capital"),
		Cities:     field(b, dxmem.IDArrayOf, "cities"),
	}
	return b.err
}

func (m *Model) bindPerson(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Person")
	if err != nil {
		return err
	}
	m.Person = &Person{
		Type:            b.t,
		Name:            field(b, dxmem.StringOf, "name"),
		Age:             field(b, dxmem.ScalarOf[int16], "age"),
		DateOfBirth:     field(b, dxmem.ScalarOf[int64], "dateOfBirth"),
		PlaceOfBirth:    field(b, dxmem.IDOf, "placeOfBirth"),
		HomeAddress:     field(b, dxmem.StringOf, "homeAddress"),
		Email:           field(b, dxmem.StringOf, "email"),
		FavoriteNumbers: field(b, dxmem.ArrayOf[int32], "favoriteNumbers"),
		Friends:         field(b, dxmem.IDArrayOf, "friends"),
		Family:          field(b, dxmem.IDArrayOf, "family"),
	}
	return b.err
}

func (m *Model) bindCitizen(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Citizen")
	if err != nil {
		return err
	}
	weekday := func(t *dxmem.Type, path string) (*dxmem.EnumField[Weekday], error) {
		return dxmem.EnumOf(t, path, Weekdays)
	}
	m.Citizen = &Citizen{
		Type:        b.t,
		Name:        field(b, dxmem.StringOf, "name"),
		Address:     field(b, dxmem.NestedOf, "address"),
		Street:      field(b, dxmem.StringOf, "address.street"),
		Zip:         field(b, dxmem.ScalarOf[int32], "address.zip"),
		FavoriteDay: field(b, weekday, "favoriteDay"),
		Home:        field(b, dxmem.RefOf, "home"),
		Friends:     field(b, dxmem.RefArrayOf, "friends"),
		Scores:      field(b, dxmem.ArrayOf[float64], "scores"),
	}
	return b.err
}

func (m *Model) bindGraph(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Graph")
	if err != nil {
		return err
	}
	m.Graph = &Graph{
		Type:     b.t,
		Name:     field(b, dxmem.StringOf, "name"),
		Version:  field(b, dxmem.ScalarOf[int64], "version"),
		EdgeList: field(b, dxmem.IDArrayOf, "edgeList"),
	}
	return b.err
}

func (m *Model) bindVertex(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Vertex")
	if err != nil {
		return err
	}
	m.Vertex = &Vertex{
		Type:         b.t,
		Depth:        field(b, dxmem.ScalarOf[int32], "depth"),
		InNeighbors:  field(b, dxmem.IDArrayOf, "inNeighbors"),
		OutNeighbors: field(b, dxmem.IDArrayOf, "outNeighbors"),
	}
	return b.err
}

func (m *Model) bindEdge(ctx *dxmem.Context) error {
	b, err := m.bind(ctx, "Edge")
	if err != nil {
		return err
	}
	m.Edge = &Edge{
		Type:   b.t,
		Weight: field(b, dxmem.ScalarOf[float64], "weight"),
		Src:    field(b, dxmem.IDOf, "src"),
		Dst:    field(b, dxmem.IDOf, "dst"),
	}
	return b.err
}
