package dxmem

import (
	"encoding/binary"
	"reflect"
	"slices"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/internal/common"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/layout"
)

// Fixed is the set of scalar types a field or array element can hold.
type Fixed interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 |
		~int64 | ~uint64 | ~float32 | ~float64
}

var bigEndian = binary.NativeEndian.Uint16([]byte{0, 1}) == 1

func kindOf[T Fixed]() reflect.Kind {
	return reflect.TypeOf((*T)(nil)).Elem().Kind()
}

func widthOf[T Fixed]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// getFixed decodes a little-endian T from the start of b.
func getFixed[T Fixed](b []byte) T {
	var v T
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	copy(dst, b)
	if bigEndian {
		slices.Reverse(dst)
	}
	return v
}

// putFixed encodes v little-endian into the start of b.
func putFixed[T Fixed](b []byte, v T) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	n := copy(b, src)
	if bigEndian {
		slices.Reverse(b[:n])
	}
}

// span is n bytes of pinned memory at addr+off.
func (c *Context) span(addr cid.Address, off, n int) ([]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if addr == cid.NullAddress {
		return nil, errors.Wrap(ErrInvalidIdentifier, "null address")
	}
	b, err := c.mem.Span(addr+cid.Address(off), n)
	if err != nil {
		return nil, errors.Wrapf(err, "span 0x%x+%d", addr, off)
	}
	return b, nil
}

func (c *Context) readInt32(addr cid.Address, off int) (int32, error) {
	b, err := c.span(addr, off, 4)
	if err != nil {
		return 0, err
	}
	return common.Int32(b, 0), nil
}

func (c *Context) writeInt32(addr cid.Address, off int, v int32) error {
	b, err := c.span(addr, off, 4)
	if err != nil {
		return err
	}
	common.PutInt32(b, 0, v)
	return nil
}

func (c *Context) readWord(addr cid.Address, off int) (uint64, error) {
	b, err := c.span(addr, off, 8)
	if err != nil {
		return 0, err
	}
	return common.Uint64(b, 0), nil
}

func (c *Context) writeWord(addr cid.Address, off int, v uint64) error {
	b, err := c.span(addr, off, 8)
	if err != nil {
		return err
	}
	common.PutUint64(b, 0, v)
	return nil
}

func (c *Context) readID(addr cid.Address, off int) (cid.ID, error) {
	w, err := c.readWord(addr, off)
	return cid.ID(w), err
}

func (c *Context) writeID(addr cid.Address, off int, id cid.ID) error {
	return c.writeWord(addr, off, uint64(id))
}

func (c *Context) readAddr(addr cid.Address, off int) (cid.Address, error) {
	w, err := c.readWord(addr, off)
	return cid.Address(w), err
}

func (c *Context) writeAddr(addr cid.Address, off int, a cid.Address) error {
	return c.writeWord(addr, off, uint64(a))
}

// arrayHeader is the fixed part of a string or array field.
type arrayHeader struct {
	length int32
	id     cid.ID
	addr   cid.Address
}

var noBacking = arrayHeader{length: 0, id: cid.Invalid, addr: cid.NullAddress}

func (c *Context) readHeader(addr cid.Address, off int) (arrayHeader, error) {
	b, err := c.span(addr, off, layout.ArrayHeaderSize)
	if err != nil {
		return arrayHeader{}, err
	}
	return arrayHeader{
		length: common.Int32(b, layout.ArrayLenOffset),
		id:     cid.ID(common.Uint64(b, layout.ArrayIDOffset)),
		addr:   cid.Address(common.Uint64(b, layout.ArrayAddrOffset)),
	}, nil
}

func (c *Context) writeHeader(addr cid.Address, off int, h arrayHeader) error {
	b, err := c.span(addr, off, layout.ArrayHeaderSize)
	if err != nil {
		return err
	}
	common.PutInt32(b, layout.ArrayLenOffset, h.length)
	common.PutUint64(b, layout.ArrayIDOffset, uint64(h.id))
	common.PutUint64(b, layout.ArrayAddrOffset, uint64(h.addr))
	return nil
}

// backing returns the content of a backing chunk. A header without a live
// backing chunk yields nil.
func (c *Context) backing(h arrayHeader, elem int) ([]byte, error) {
	if h.length <= 0 || h.id == cid.Invalid {
		return nil, nil
	}
	return c.span(h.addr, 0, int(h.length)*elem)
}

// element returns element i of a backing chunk after a bounds check.
func (c *Context) element(addr cid.Address, off, i, elem int) ([]byte, error) {
	h, err := c.readHeader(addr, off)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= int(h.length) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, h.length)
	}
	return c.span(h.addr, i*elem, elem)
}

// rewriteBacking replaces the backing chunk of the header at addr+off.
// The old chunk is unpinned and removed first. Empty content leaves no
// backing chunk and a header length of none; otherwise a chunk of exactly
// n*elem bytes is created, pinned and handed to fill.
func (c *Context) rewriteBacking(addr cid.Address, off, elem, n int, none int32, fill func([]byte)) error {
	if n > maxLength {
		return errors.Wrapf(ErrIndexOutOfRange, "length %d", n)
	}
	h, err := c.readHeader(addr, off)
	if err != nil {
		return err
	}
	if h.id != cid.Invalid {
		if err := c.store.Unpin(h.id); err != nil {
			return errors.Wrapf(err, "unpin backing %s", h.id)
		}
		if err := c.store.Remove(h.id); err != nil {
			return errors.Wrapf(err, "remove backing %s", h.id)
		}
		if err := c.writeHeader(addr, off, noBacking); err != nil {
			return err
		}
	}
	if n == 0 {
		h := noBacking
		h.length = none
		return c.writeHeader(addr, off, h)
	}

	ids, err := c.store.Create(1, n*elem)
	if err != nil {
		return errors.Wrap(err, "create backing chunk")
	}
	ba, err := c.store.Pin(ids[0])
	if err != nil {
		return errors.Wrapf(err, "pin backing %s", ids[0])
	}
	if err := c.writeHeader(addr, off, arrayHeader{length: int32(n), id: ids[0], addr: ba}); err != nil {
		return err
	}
	b, err := c.span(ba, 0, n*elem)
	if err != nil {
		return err
	}
	fill(b)
	return nil
}

const maxLength = 1<<31 - 1
