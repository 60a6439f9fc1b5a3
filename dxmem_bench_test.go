package dxmem

import (
	"testing"

	"github.com/rawbytedev/dxmem/pkg/cid"
)

func BenchmarkScalarByID(b *testing.B) {
	f := newFixture(b, Config{})
	person := f.typ(b, "Person")
	age, _ := ScalarOf[int16](person, "age")
	id, _ := person.Create()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = age.Set(id, int16(i))
		_, _ = age.Get(id)
	}
}

func BenchmarkScalarAt(b *testing.B) {
	f := newFixture(b, Config{})
	person := f.typ(b, "Person")
	age, _ := ScalarOf[int16](person, "age")
	id, _ := person.Create()
	sc, _ := person.Use(id)
	addr := sc.Addr()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = age.SetAt(addr, int16(i))
		_, _ = age.GetAt(addr)
	}
}

func BenchmarkScalarTypeChecked(b *testing.B) {
	f := newFixture(b, Config{CheckTypes: true})
	vertex := f.typ(b, "Vertex")
	depth, _ := ScalarOf[int32](vertex, "depth")
	v, _ := vertex.Create()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = depth.Get(v)
	}
}

func BenchmarkArraySetAll(b *testing.B) {
	f := newFixture(b, Config{})
	person := f.typ(b, "Person")
	scores, _ := ArrayOf[float64](person, "scores")
	id, _ := person.Create()
	vals := []float64{100.5, 165.63, 153.5, 12.13, 16.23, 75.1}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = scores.SetAll(id, vals)
	}
}

func BenchmarkStringGet(b *testing.B) {
	f := newFixture(b, Config{})
	person := f.typ(b, "Person")
	name, _ := StringOf(person, "name")
	id, _ := person.Create()
	_ = name.Set(id, "azerty hello world random")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = name.Get(id)
	}
}

func BenchmarkCreateRemove(b *testing.B) {
	f := newFixture(b, Config{})
	vertex := f.typ(b, "Vertex")
	out, _ := IDArrayOf(vertex, "out")
	targets := make([]cid.ID, 4)
	for i := range targets {
		targets[i], _ = vertex.Create()
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		v, _ := vertex.Create()
		_ = out.SetAll(v, targets)
		_ = vertex.Remove(v)
	}
}
