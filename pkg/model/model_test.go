package model

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
	"github.com/rawbytedev/dxmem/pkg/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindTest(t *testing.T) (*Model, *memstore.Store, *dxmem.Context) {
	t.Helper()
	store := memstore.NewDefault()
	ctx, err := dxmem.Open(store, dxmem.Config{CheckTypes: true})
	require.NoError(t, err)
	m, err := Bind(ctx)
	require.NoError(t, err)
	return m, store, ctx
}

func offsets(l *layout.Layout) map[string]int {
	out := make(map[string]int, len(l.Fields))
	for _, f := range l.Fields {
		out[f.Name] = f.Offset
	}
	return out
}

func TestLayouts(t *testing.T) {
	m, _, _ := bindTest(t)
	cases := []struct {
		name    string
		size    int
		offsets map[string]int
	}{
		{"City", 44, map[string]int{"name": 0, "country": 20, "population": 36, "area": 40}},
		{"Country", 68, map[string]int{"name": 8, "population": 28, "area": 36, "capital": 40, "cities": 48}},
		{"Person", 146, map[string]int{
			"name": 8, "age": 28, "dateOfBirth": 30, "placeOfBirth": 38, "homeAddress": 46,
			"email": 66, "favoriteNumbers": 86, "friends": 106, "family": 126,
		}},
		{"Graph", 56, map[string]int{"name": 8, "version": 28, "edgeList": 36}},
		{"Vertex", 52, map[string]int{"depth": 8, "inNeighbors": 12, "outNeighbors": 32}},
		{"Edge", 32, map[string]int{"weight": 8, "src": 16, "dst": 24}},
		{"Citizen", 104, map[string]int{"name": 0, "address": 20, "favoriteDay": 44, "home": 48, "friends": 64, "scores": 84}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := m.Planner.Plan(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.size, l.Size)
			assert.Equal(t, tc.offsets, offsets(l))
		})
	}
	assert.Equal(t, uint16(0), m.City.Tag())
	assert.NotEqual(t, m.Vertex.Tag(), m.Edge.Tag())
}

func TestCityAndCountry(t *testing.T) {
	m, store, ctx := bindTest(t)

	country, err := m.Country.Create()
	require.NoError(t, err)
	require.NoError(t, m.Country.Name.Set(country, "Germany"))
	require.NoError(t, m.Country.Population.Set(country, 83_000_000))
	require.NoError(t, m.Country.Area.Set(country, 357_022))

	cities, err := m.City.CreateN(2)
	require.NoError(t, err)
	for i, name := range []string{"Berlin", "Duesseldorf"} {
		require.NoError(t, m.City.Name.Set(cities[i], name))
		require.NoError(t, m.City.Country.Set(cities[i], country))
	}
	require.NoError(t, m.City.Population.Set(cities[0], 3_645_000))
	require.NoError(t, m.Country.Capital.Set(country, cities[0]))
	require.NoError(t, m.Country.Cities.SetAll(country, cities))

	// the reference caches the country address; follow it without translating
	caddr, err := m.City.Country.Address(cities[1])
	require.NoError(t, err)
	name, ok, err := m.Country.Name.GetAt(caddr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Germany", name)

	capital, err := m.Country.Capital.Get(country)
	require.NoError(t, err)
	assert.Equal(t, cid.FormDirect, capital.Form())
	want, err := ctx.Translate(cities[0])
	require.NoError(t, err)
	assert.Equal(t, want, capital.Address())
	pop, err := m.City.Population.GetAt(capital.Address())
	require.NoError(t, err)
	assert.Equal(t, int32(3_645_000), pop)

	local, err := m.Country.Cities.LocalIDs(country)
	require.NoError(t, err)
	assert.Len(t, local, 2)

	// removing the country leaves the cities in place
	before := store.Len()
	require.NoError(t, m.Country.Remove(country))
	assert.Equal(t, before-3, store.Len())
	name, ok, err = m.City.Name.Get(cities[1])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Duesseldorf", name)
}

func TestPerson(t *testing.T) {
	m, store, _ := bindTest(t)
	people, err := m.Person.CreateN(3)
	require.NoError(t, err)
	p := people[0]

	require.NoError(t, m.Person.Name.Set(p, "Ada"))
	require.NoError(t, m.Person.Age.Set(p, 36))
	require.NoError(t, m.Person.DateOfBirth.Set(p, -4_915_000_000))
	require.NoError(t, m.Person.FavoriteNumbers.SetAll(p, []int32{3, 7, 42}))
	require.NoError(t, m.Person.Friends.SetAll(p, people[1:]))
	require.NoError(t, m.Person.Family.SetAll(p, []cid.ID{cid.New(3, 99)}))

	email, ok, err := m.Person.Email.Get(p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, email)

	nums, err := m.Person.FavoriteNumbers.All(p)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 7, 42}, nums)
	dob, err := m.Person.DateOfBirth.Get(p)
	require.NoError(t, err)
	assert.Equal(t, int64(-4_915_000_000), dob)

	remote, err := m.Person.Family.RemoteIDs(p)
	require.NoError(t, err)
	assert.Equal(t, []cid.ID{cid.New(3, 99)}, remote)

	// Person and Edge carry different tags
	_, err = m.Edge.Weight.Get(p)
	assert.True(t, errors.Is(err, dxmem.ErrTypeMismatch))

	require.NoError(t, m.Person.Remove(p))
	assert.Equal(t, 2, store.Len())
}

func TestCitizenCascade(t *testing.T) {
	m, store, _ := bindTest(t)
	home, err := m.City.Create()
	require.NoError(t, err)
	require.NoError(t, m.City.Name.Set(home, "Duesseldorf"))

	cs, err := m.Citizen.CreateN(3)
	require.NoError(t, err)
	c := cs[0]
	require.NoError(t, m.Citizen.Name.Set(c, "Grace"))
	require.NoError(t, m.Citizen.Street.Set(c, "Universitaetsstrasse 1"))
	require.NoError(t, m.Citizen.Zip.Set(c, 40225))
	require.NoError(t, m.Citizen.FavoriteDay.Set(c, Friday))
	require.NoError(t, m.Citizen.Home.Set(c, home))
	require.NoError(t, m.Citizen.Friends.SetAll(c, cs[1:]))
	require.NoError(t, m.Citizen.Scores.SetAll(c, []float64{0.5, 0.25}))

	day, err := m.Citizen.FavoriteDay.Get(c)
	require.NoError(t, err)
	assert.Equal(t, Friday, day)
	fresh, err := m.Citizen.FavoriteDay.Get(cs[1])
	require.NoError(t, err)
	assert.Equal(t, Monday, fresh)

	sc, err := m.Citizen.Use(c)
	require.NoError(t, err)
	naddr, err := m.Citizen.Address.AddressAt(sc.Addr())
	require.NoError(t, err)
	assert.Equal(t, sc.Addr()+20, naddr)
	zip, err := m.Citizen.Zip.GetAt(sc.Addr())
	require.NoError(t, err)
	assert.Equal(t, int32(40225), zip)
	require.NoError(t, sc.Close())

	// city, 3 citizens, city name, citizen name, street, friends, scores
	assert.Equal(t, 9, store.Len())
	require.NoError(t, m.Citizen.Remove(c))
	assert.Equal(t, 4, store.Len())
	name, ok, err := m.City.Name.Get(home)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Duesseldorf", name)
}

func TestGraphExample(t *testing.T) {
	m, store, _ := bindTest(t)
	nid := store.NodeID()

	g, err := m.Graph.Create()
	require.NoError(t, err)
	vertices, err := m.Vertex.CreateN(10)
	require.NoError(t, err)
	edges, err := m.Edge.CreateN(17)
	require.NoError(t, err)

	ok, err := m.Graph.IsValidType(g)
	require.NoError(t, err)
	assert.True(t, ok)
	for _, v := range vertices {
		ok, err := m.Vertex.IsValidType(v)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for _, e := range edges {
		ok, err := m.Edge.IsValidType(e)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	require.NoError(t, m.Graph.Name.Set(g, "example-directed"))
	require.NoError(t, m.Graph.Version.Set(g, 1))
	require.NoError(t, m.Graph.EdgeList.SetAll(g, edges))

	depths := []int32{0, -1, 1, 2, 1, -1, -1, 2, -1, 2}
	for i, d := range depths {
		require.NoError(t, m.Vertex.Depth.Set(vertices[i], d))
	}

	in := map[int][]int{0: {2, 7}, 2: {0, 4, 5}, 3: {1, 4, 5, 6, 8}, 4: {0, 1, 2}, 7: {2, 4}, 9: {2}}
	out := map[int][]int{0: {2, 4}, 1: {3, 4}, 2: {0, 4, 7, 9}, 4: {2, 3, 7}, 5: {2, 3}, 6: {3}, 7: {0}, 8: {3}}
	pick := func(idx []int) []cid.ID {
		ids := make([]cid.ID, len(idx))
		for i, j := range idx {
			ids[i] = vertices[j]
		}
		return ids
	}
	for v, n := range in {
		require.NoError(t, m.Vertex.InNeighbors.SetAll(vertices[v], pick(n)))
	}
	for v, n := range out {
		require.NoError(t, m.Vertex.OutNeighbors.SetAll(vertices[v], pick(n)))
	}

	wiring := []struct {
		src, dst int
		w        float64
	}{
		{0, 2, 0.5}, {0, 4, 0.3}, {1, 3, 0.1}, {1, 4, 0.3}, {2, 9, 0.12}, {2, 0, 0.53},
		{2, 4, 0.62}, {2, 7, 0.21}, {2, 9, 0.52}, {4, 2, 0.69}, {4, 3, 0.53}, {4, 7, 0.1},
		{5, 2, 0.23}, {5, 3, 0.39}, {6, 3, 0.83}, {7, 0, 0.39}, {8, 3, 0.69},
	}
	for i, w := range wiring {
		require.NoError(t, m.Edge.Src.Set(edges[i], vertices[w.src]))
		require.NoError(t, m.Edge.Dst.Set(edges[i], vertices[w.dst]))
		require.NoError(t, m.Edge.Weight.Set(edges[i], w.w))
	}

	gcid, err := m.Graph.CID(g)
	require.NoError(t, err)
	assert.Equal(t, nid, gcid.NID())
	for _, id := range []cid.ID{g, gcid} {
		name, ok, err := m.Graph.Name.Get(id)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "example-directed", name)
		version, err := m.Graph.Version.Get(id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		list, err := m.Graph.EdgeList.All(id)
		require.NoError(t, err)
		assert.Equal(t, edges, list)
	}
	local, err := m.Graph.EdgeList.LocalIDs(gcid)
	require.NoError(t, err)
	assert.Equal(t, edges, local)
	remote, err := m.Graph.EdgeList.RemoteIDs(gcid)
	require.NoError(t, err)
	assert.Empty(t, remote)

	vcids, err := m.Vertex.CIDs(vertices)
	require.NoError(t, err)
	for i, d := range depths {
		got, err := m.Vertex.Depth.Get(vertices[i])
		require.NoError(t, err)
		assert.Equal(t, d, got)
		got, err = m.Vertex.Depth.Get(vcids[i])
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	for v, n := range in {
		for i, j := range n {
			got, err := m.Vertex.InNeighbors.Get(vertices[v], i)
			require.NoError(t, err)
			assert.Equal(t, vertices[j], got)
		}
	}
	got, err := m.Vertex.OutNeighbors.All(vertices[2])
	require.NoError(t, err)
	assert.Equal(t, pick(out[2]), got)
	none, err := m.Vertex.InNeighbors.All(vertices[1])
	require.NoError(t, err)
	assert.Nil(t, none)

	for i, w := range wiring {
		src, err := m.Edge.Src.Get(edges[i])
		require.NoError(t, err)
		assert.Equal(t, vertices[w.src], src)
		isLocal, err := m.Edge.Dst.IsLocal(edges[i])
		require.NoError(t, err)
		assert.True(t, isLocal)
		weight, err := m.Edge.Weight.Get(edges[i])
		require.NoError(t, err)
		assert.Equal(t, w.w, weight)
	}

	// a vertex on another node is kept in distributed form
	foreign := cid.New(nid+1, 7)
	require.NoError(t, m.Edge.Dst.Set(edges[0], foreign))
	dst, err := m.Edge.Dst.Get(edges[0])
	require.NoError(t, err)
	assert.Equal(t, foreign, dst)
	require.NoError(t, m.Vertex.OutNeighbors.Set(vertices[0], 1, foreign))
	rem, err := m.Vertex.OutNeighbors.RemoteIDs(vertices[0])
	require.NoError(t, err)
	assert.Equal(t, []cid.ID{foreign}, rem)
	loc, err := m.Vertex.OutNeighbors.LocalIDs(vertices[0])
	require.NoError(t, err)
	assert.Equal(t, []cid.ID{vertices[2]}, loc)

	require.NoError(t, m.Edge.RemoveAll(edges))
	require.NoError(t, m.Vertex.RemoveAll(vertices))
	require.NoError(t, m.Graph.Remove(g))
	assert.Equal(t, 0, store.Len())
}
