package memstore

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/golang/glog"
	"github.com/google/btree"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
)

// Snapshot frame:
//
//	magic 'D' 'X' | version:1 | length:uint32 | flags:1 | payload | crc32
//
// length covers the whole frame including the CRC, which is computed over
// everything after the magic. The payload is a varint record stream,
// zstd-compressed when FlagCompressed is set.
const (
	snapshotVersion = 1
	frameHeaderSize = 8

	FlagCompressed byte = 0x01
)

var (
	snapshotMagic = [2]byte{'D', 'X'}

	ErrBadSnapshot = errors.New("malformed snapshot")
)

// Snapshot writes every live chunk, reservation and pin count to w. The
// arena layout is preserved so cached and direct addresses stay valid after
// Restore.
func (s *Store) Snapshot(w io.Writer) error {
	lvl, err := s.cfg.Snapshot.encoderLevel()
	if err != nil {
		return err
	}

	s.mu.RLock()
	body := s.encodeLocked()
	count := len(s.chunks)
	s.mu.RUnlock()

	var flags byte
	if lvl != 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
		if err != nil {
			return errors.Wrap(err, "zstd writer")
		}
		body = enc.EncodeAll(body, make([]byte, 0, len(body)/2))
		enc.Close()
		flags |= FlagCompressed
	}

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(body)+4)
	frame[0], frame[1] = snapshotMagic[0], snapshotMagic[1]
	frame[2] = snapshotVersion
	frame[7] = flags
	frame = append(frame, body...)
	binary.LittleEndian.PutUint32(frame[3:], uint32(len(frame)+4))
	crc := crc32.ChecksumIEEE(frame[2:])
	frame = binary.LittleEndian.AppendUint32(frame, crc)

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	if glog.V(1) {
		glog.Infof("memstore: snapshot of %d chunks, %d bytes, flags=0x%02x", count, len(frame), flags)
	}
	return nil
}

func (s *Store) encodeLocked() []byte {
	buf := make([]byte, 0, 64+int(s.arena.stats.LiveBytes))
	buf = common.WriteVarUint(buf, uint64(s.nid))
	buf = common.WriteVarUint(buf, s.nextLID)

	reserved := make([]uint64, 0, len(s.reserved))
	for id := range s.reserved {
		reserved = append(reserved, id.LID())
	}
	sort.Slice(reserved, func(i, j int) bool { return reserved[i] < reserved[j] })
	buf = common.WriteVarUint(buf, uint64(len(reserved)))
	for _, lid := range reserved {
		buf = common.WriteVarUint(buf, lid)
	}

	buf = common.WriteVarUint(buf, uint64(s.byAddr.Len()))
	s.byAddr.Ascend(func(c *chunk) bool {
		buf = common.WriteVarUint(buf, c.id.LID())
		buf = common.WriteVarUint(buf, uint64(c.addr))
		buf = common.WriteVarUint(buf, uint64(c.pins))
		buf = common.WriteVarUint(buf, uint64(len(c.data)))
		buf = append(buf, c.data...)
		return true
	})
	return buf
}

// Restore replaces the store contents with a snapshot. The node tag of the
// snapshot must match the store's.
func (s *Store) Restore(r io.Reader) error {
	frame, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read snapshot")
	}
	if len(frame) < frameHeaderSize+4 || frame[0] != snapshotMagic[0] || frame[1] != snapshotMagic[1] {
		return errors.Wrap(ErrBadSnapshot, "not a snapshot frame")
	}
	if frame[2] != snapshotVersion {
		return errors.Wrapf(ErrBadSnapshot, "unsupported version %d", frame[2])
	}
	if int(binary.LittleEndian.Uint32(frame[3:])) != len(frame) {
		return errors.Wrap(ErrBadSnapshot, "length mismatch")
	}
	end := len(frame) - 4
	if crc32.ChecksumIEEE(frame[2:end]) != binary.LittleEndian.Uint32(frame[end:]) {
		return errors.Wrap(ErrBadSnapshot, "crc mismatch")
	}
	body := frame[frameHeaderSize:end]
	if frame[7]&FlagCompressed != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return errors.Wrap(err, "zstd reader")
		}
		body, err = dec.DecodeAll(body, nil)
		dec.Close()
		if err != nil {
			return errors.Wrap(err, "decompress snapshot")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeLocked(body)
}

type snapReader struct {
	b   []byte
	err error
}

func (r *snapReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := common.ReadVarUint(r.b)
	if n == 0 {
		r.err = errors.Wrap(ErrBadSnapshot, "truncated varint")
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *snapReader) bytes(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.b)) < n {
		r.err = errors.Wrap(ErrBadSnapshot, "truncated chunk")
		return nil
	}
	out := bytes.Clone(r.b[:n])
	r.b = r.b[n:]
	return out
}

func (s *Store) decodeLocked(body []byte) error {
	r := &snapReader{b: body}
	nid := uint16(r.uvarint())
	nextLID := r.uvarint()
	if r.err == nil && nid != s.nid {
		return errors.Wrapf(ErrBadSnapshot, "snapshot of node %d restored on node %d", nid, s.nid)
	}

	reserved := make(map[cid.ID]struct{})
	for n := r.uvarint(); n > 0 && r.err == nil; n-- {
		reserved[cid.New(nid, r.uvarint())] = struct{}{}
	}

	chunks := make(map[cid.ID]*chunk)
	byAddr := btree.NewG(16, chunkLess)
	var live []block
	for n := r.uvarint(); n > 0 && r.err == nil; n-- {
		c := &chunk{id: cid.New(nid, r.uvarint())}
		c.addr = cid.Address(r.uvarint())
		c.pins = int(r.uvarint())
		c.data = r.bytes(r.uvarint())
		if r.err != nil {
			break
		}
		chunks[c.id] = c
		byAddr.ReplaceOrInsert(c)
		live = append(live, block{addr: uint64(c.addr), size: uint64(len(c.data))})
	}
	if r.err != nil {
		return r.err
	}
	sort.Slice(live, func(i, j int) bool { return live[i].addr < live[j].addr })
	a := newArena(s.cfg.Store.BaseAddress, s.cfg.Store.MaxBytes)
	if err := a.rebuild(live); err != nil {
		return errors.Wrap(ErrBadSnapshot, err.Error())
	}

	s.arena = a
	s.nextLID = nextLID
	s.reserved = reserved
	s.chunks = chunks
	s.byAddr = byAddr
	if glog.V(1) {
		glog.Infof("memstore: restored %d chunks, %d reserved", len(chunks), len(reserved))
	}
	return nil
}
