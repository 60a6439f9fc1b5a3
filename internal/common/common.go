package common

import (
	"encoding/binary"
	"reflect"
)

// IsFixedKind reports whether k is a fixed-size primitive kind.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

var scalarNames = map[string]reflect.Kind{
	"bool":    reflect.Bool,
	"byte":    reflect.Uint8,
	"int8":    reflect.Int8,
	"uint8":   reflect.Uint8,
	"char":    reflect.Uint16,
	"int16":   reflect.Int16,
	"short":   reflect.Int16,
	"uint16":  reflect.Uint16,
	"int32":   reflect.Int32,
	"int":     reflect.Int32,
	"uint32":  reflect.Uint32,
	"int64":   reflect.Int64,
	"long":    reflect.Int64,
	"uint64":  reflect.Uint64,
	"float32": reflect.Float32,
	"float":   reflect.Float32,
	"float64": reflect.Float64,
	"double":  reflect.Float64,
}

// ScalarKind maps a schema scalar name to its kind.
func ScalarKind(name string) (reflect.Kind, bool) {
	k, ok := scalarNames[name]
	return k, ok
}

// Int32 reads a little-endian int32 from b at off.
func Int32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off:]))
}

// PutInt32 writes v little-endian into b at off.
func PutInt32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:], uint32(v))
}

// Uint64 reads a little-endian uint64 from b at off.
func Uint64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

// PutUint64 writes v little-endian into b at off.
func PutUint64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:], v)
}

// WriteVarUint appends a varint to buf.
func WriteVarUint(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// ReadVarUint decodes a varint from b returning value and bytes consumed.
func ReadVarUint(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, c := range b {
		x |= uint64(c&0x7F) << s
		if c&0x80 == 0 {
			return x, i + 1
		}
		s += 7
	}
	return 0, 0
}
