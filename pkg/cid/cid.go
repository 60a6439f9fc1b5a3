// Package cid encodes chunk identifiers and local addresses into a single
// 64-bit value.
//
// A standard id carries the creating node in its top 16 bits and a local
// sequence number in the lower 48. An id whose top 16 bits are all set is
// in direct form: the lower 48 bits are already a process-local address.
// The all-ones value is the invalid sentinel.
package cid

import "fmt"

// ID is a chunk identifier in any of its forms.
type ID uint64

// Address is a process-local address of pinned chunk memory.
type Address uint64

const (
	Invalid     ID      = 0xFFFFFFFFFFFFFFFF
	NullAddress Address = 0

	DirectMask uint64 = 0xFFFF000000000000
	LIDMask    uint64 = 0x0000FFFFFFFFFFFF

	// MaxLID is the largest local sequence number.
	MaxLID = LIDMask
)

// Form is the interpretation of an ID.
type Form uint8

const (
	FormInvalid Form = iota
	FormDirect
	FormDistributed
)

func (f Form) String() string {
	switch f {
	case FormInvalid:
		return "invalid"
	case FormDirect:
		return "direct"
	case FormDistributed:
		return "distributed"
	default:
		return fmt.Sprintf("form(%d)", uint8(f))
	}
}

// New builds a distributed id from node and local sequence.
func New(nid uint16, lid uint64) ID {
	return ID(uint64(nid)<<48 | lid&LIDMask)
}

// Direct builds the direct form of a local address.
func Direct(addr Address) ID {
	return ID(DirectMask | uint64(addr)&LIDMask)
}

// Form classifies id. The invalid sentinel also has all high bits set, so it
// is checked before the direct form.
func (id ID) Form() Form {
	switch {
	case id == Invalid:
		return FormInvalid
	case uint64(id)&DirectMask == DirectMask:
		return FormDirect
	default:
		return FormDistributed
	}
}

// NID returns the node tag of a distributed id.
func (id ID) NID() uint16 { return uint16(uint64(id) >> 48) }

// LID returns the local sequence bits.
func (id ID) LID() uint64 { return uint64(id) & LIDMask }

// Address returns the address carried by a direct-form id.
func (id ID) Address() Address {
	if id.Form() != FormDirect {
		return NullAddress
	}
	return Address(uint64(id) & LIDMask)
}

// IsLocal reports whether id belongs to node nid or is already direct.
func (id ID) IsLocal(nid uint16) bool {
	switch id.Form() {
	case FormDirect:
		return true
	case FormDistributed:
		return id.NID() == nid
	default:
		return false
	}
}

func (id ID) String() string {
	switch id.Form() {
	case FormInvalid:
		return "cid(invalid)"
	case FormDirect:
		return fmt.Sprintf("cid(direct:0x%x)", id.LID())
	default:
		return fmt.Sprintf("cid(%04x:%012x)", id.NID(), id.LID())
	}
}

// Header packs the type tag of a typed entity with the lid of its own chunk.
// Little-endian layout puts the tag at byte offset 6 of the word.
func Header(tag uint16, id ID) uint64 {
	return uint64(tag)<<48 | id.LID()
}

// HeaderTag extracts the type tag from a header word.
func HeaderTag(word uint64) uint16 { return uint16(word >> 48) }

// HeaderLID extracts the lid from a header word.
func HeaderLID(word uint64) uint64 { return word & LIDMask }
