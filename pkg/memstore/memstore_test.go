package memstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, extra string) *Store {
	t.Helper()
	cfg, err := ParseConfig(extra)
	require.NoError(t, err)
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestCreateAssignsLocalIDs(t *testing.T) {
	s := newTestStore(t, "[store]\nnode-id = 7\n")
	ids, err := s.Create(3, 16)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for i, id := range ids {
		assert.Equal(t, uint16(7), id.NID())
		assert.Equal(t, uint64(i+1), id.LID())
		addr, err := s.Translate(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, uint64(addr), uint64(4096))
		span, err := s.Span(addr, 16)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, 16), span)
	}
	assert.Equal(t, 3, s.Len())
}

func TestSpanBoundsChecks(t *testing.T) {
	s := NewDefault()
	ids, err := s.Create(2, 8)
	require.NoError(t, err)
	addr, err := s.Translate(ids[0])
	require.NoError(t, err)

	span, err := s.Span(addr+4, 4)
	require.NoError(t, err)
	span[0] = 0xAB
	whole, err := s.Span(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), whole[4])

	// spans never cross into the neighbouring chunk
	_, err = s.Span(addr+4, 8)
	assert.True(t, errors.Is(err, ErrBadAddress))
	_, err = s.Span(cid.NullAddress, 1)
	assert.True(t, errors.Is(err, ErrBadAddress))
	_, err = s.Span(cid.Address(16), 1)
	assert.True(t, errors.Is(err, ErrBadAddress))
}

func TestPinCounts(t *testing.T) {
	s := NewDefault()
	ids, err := s.Create(1, 8)
	require.NoError(t, err)
	id := ids[0]

	a1, err := s.Pin(id)
	require.NoError(t, err)
	a2, err := s.Pin(id)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	n, err := s.PinCount(id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Unpin(id))
	n, _ = s.PinCount(id)
	assert.Equal(t, 1, n)

	_, err = s.Translate(id)
	require.NoError(t, err)
	n, _ = s.PinCount(id)
	assert.Equal(t, 1, n, "translate must not take a pin")
}

func TestInvalidIsNoOp(t *testing.T) {
	s := NewDefault()
	require.NoError(t, s.Remove(cid.Invalid))
	require.NoError(t, s.Unpin(cid.Invalid))

	_, err := s.Translate(cid.Invalid)
	assert.True(t, errors.Is(err, common.ErrInvalidIdentifier))
	_, err = s.Pin(cid.Invalid)
	assert.True(t, errors.Is(err, common.ErrInvalidIdentifier))
}

func TestRemove(t *testing.T) {
	s := NewDefault()
	ids, err := s.Create(1, 32)
	require.NoError(t, err)
	_, err = s.Pin(ids[0])
	require.NoError(t, err)
	require.NoError(t, s.Remove(ids[0]))

	_, err = s.Translate(ids[0])
	assert.True(t, errors.Is(err, common.ErrInvalidIdentifier))
	assert.True(t, errors.Is(s.Remove(ids[0]), common.ErrInvalidIdentifier))
	assert.True(t, errors.Is(s.Unpin(ids[0]), common.ErrInvalidIdentifier))
	assert.Equal(t, 0, s.Len())
}

func TestReserveAndCreateReserved(t *testing.T) {
	s := NewDefault()
	ids, err := s.Reserve(2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stats().Reserved)

	_, err = s.Translate(ids[0])
	assert.True(t, errors.Is(err, common.ErrInvalidIdentifier))

	require.NoError(t, s.CreateReserved(ids, []int{8, 24}))
	for _, id := range ids {
		_, err := s.Translate(id)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.Stats().Reserved)

	// ids are consumed once
	assert.True(t, errors.Is(s.CreateReserved(ids[:1], []int{8}), common.ErrInvalidIdentifier))
	require.Error(t, s.CreateReserved(ids, []int{8}))

	// dropping a reservation is allowed
	more, err := s.Reserve(1)
	require.NoError(t, err)
	require.NoError(t, s.Remove(more[0]))
	assert.Equal(t, 0, s.Stats().Reserved)
}

func TestFreedBlocksAreReused(t *testing.T) {
	s := NewDefault()
	ids, err := s.Create(3, 64)
	require.NoError(t, err)
	mid, err := s.Translate(ids[1])
	require.NoError(t, err)

	require.NoError(t, s.Remove(ids[1]))
	st := s.Stats()
	assert.Equal(t, 1, st.FreeBlocks)
	assert.Equal(t, uint64(64), st.FreeBytes)

	again, err := s.Create(2, 32)
	require.NoError(t, err)
	a0, _ := s.Translate(again[0])
	a1, _ := s.Translate(again[1])
	assert.Equal(t, mid, a0)
	assert.Equal(t, mid+32, a1)
	assert.Equal(t, 0, s.Stats().FreeBlocks)
}

func TestFreeBlocksCoalesce(t *testing.T) {
	s := NewDefault()
	ids, err := s.Create(4, 16)
	require.NoError(t, err)
	first, _ := s.Translate(ids[0])

	require.NoError(t, s.Remove(ids[0]))
	require.NoError(t, s.Remove(ids[2]))
	assert.Equal(t, 2, s.Stats().FreeBlocks)
	require.NoError(t, s.Remove(ids[1]))
	st := s.Stats()
	assert.Equal(t, 1, st.FreeBlocks)
	assert.Equal(t, uint64(48), st.FreeBytes)

	// the tail chunk going away shrinks the arena back to base
	require.NoError(t, s.Remove(ids[3]))
	st = s.Stats()
	assert.Equal(t, 0, st.FreeBlocks)
	assert.Equal(t, uint64(0), st.LiveBytes)

	ids, err = s.Create(1, 8)
	require.NoError(t, err)
	addr, _ := s.Translate(ids[0])
	assert.Equal(t, first, addr)
}

func TestArenaErrorsCarryStack(t *testing.T) {
	a := newArena(16, 0)
	_, err := a.alloc(0)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "(*arena).alloc")

	err = a.rebuild([]block{{addr: 16, size: 32}, {addr: 40, size: 8}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlaps")
	assert.Contains(t, fmt.Sprintf("%+v", err), "(*arena).rebuild")
}

func TestMaxBytes(t *testing.T) {
	s := newTestStore(t, "[store]\nmax-bytes = 100\n")
	_, err := s.Create(1, 64)
	require.NoError(t, err)
	_, err = s.Create(1, 64)
	assert.True(t, errors.Is(err, common.ErrOutOfMemory))
	_, err = s.Create(1, 0)
	assert.True(t, errors.Is(err, ErrInvalidSize))
}

func TestConfig(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), cfg.Store.NodeID)
	assert.Equal(t, uint64(4096), cfg.Store.BaseAddress)
	assert.Equal(t, "better", cfg.Snapshot.Level)

	for _, bad := range []string{
		"[store]\nnode-id = 65535\n",
		"[store]\nbase-address = 0\n",
		"[snapshot]\nlevel = \"turbo\"\n",
	} {
		_, err := ParseConfig(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidConfig), "%q: %v", bad, err)
	}

	path := filepath.Join(t.TempDir(), "store.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\nnode-id = 9\n[snapshot]\nlevel = \"none\"\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), cfg.Store.NodeID)
	assert.Equal(t, uint64(4096), cfg.Store.BaseAddress)
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, level := range []string{"none", "fastest", "better"} {
		t.Run(level, func(t *testing.T) {
			s := newTestStore(t, "[snapshot]\nlevel = \""+level+"\"\n")
			ids, err := s.Create(3, 24)
			require.NoError(t, err)
			_, err = s.Pin(ids[0])
			require.NoError(t, err)
			require.NoError(t, s.Remove(ids[1]))
			reserved, err := s.Reserve(1)
			require.NoError(t, err)
			addr, _ := s.Translate(ids[2])
			span, _ := s.Span(addr, 24)
			copy(span, "snapshot payload bytes!!")

			var buf bytes.Buffer
			require.NoError(t, s.Snapshot(&buf))
			if level != "none" {
				assert.Equal(t, FlagCompressed, buf.Bytes()[7]&FlagCompressed)
			}

			r := newTestStore(t, "")
			require.NoError(t, r.Restore(bytes.NewReader(buf.Bytes())))
			want, got0 := s.Stats(), r.Stats()
			assert.Equal(t, want.Chunks, got0.Chunks)
			assert.Equal(t, want.Reserved, got0.Reserved)
			assert.Equal(t, want.LiveBytes, got0.LiveBytes)
			assert.Equal(t, want.FreeBytes, got0.FreeBytes)
			assert.Equal(t, want.FreeBlocks, got0.FreeBlocks)

			got, err := r.Translate(ids[2])
			require.NoError(t, err)
			assert.Equal(t, addr, got)
			restored, err := r.Span(got, 24)
			require.NoError(t, err)
			assert.Equal(t, []byte("snapshot payload bytes!!"), restored)

			n, _ := r.PinCount(ids[0])
			assert.Equal(t, 1, n)
			_, err = r.Translate(ids[1])
			assert.True(t, errors.Is(err, common.ErrInvalidIdentifier))
			require.NoError(t, r.CreateReserved(reserved, []int{8}))

			next, err := r.Create(1, 8)
			require.NoError(t, err)
			assert.Equal(t, uint64(5), next[0].LID())
		})
	}
}

func TestRestoreRejectsDamage(t *testing.T) {
	s := NewDefault()
	_, err := s.Create(1, 8)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Snapshot(&buf))

	data := buf.Bytes()
	data[len(data)-5] ^= 0xFF
	assert.True(t, errors.Is(NewDefault().Restore(bytes.NewReader(data)), ErrBadSnapshot))
	assert.True(t, errors.Is(NewDefault().Restore(bytes.NewReader([]byte("nope"))), ErrBadSnapshot))

	other := newTestStore(t, "[store]\nnode-id = 2\n")
	buf.Reset()
	require.NoError(t, s.Snapshot(&buf))
	assert.True(t, errors.Is(other.Restore(&buf), ErrBadSnapshot))
}
