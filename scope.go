package dxmem

import (
	"github.com/rawbytedev/dxmem/pkg/cid"
)

// Scope holds the resolved address of one struct so that repeated field
// access skips translation. Use the At methods of the field accessors with
// Addr.
type Scope struct {
	t    *Type
	addr cid.Address
}

// Use resolves id once.
func (t *Type) Use(id cid.ID) (*Scope, error) {
	addr, err := t.addrOf(id)
	if err != nil {
		return nil, err
	}
	return &Scope{t: t, addr: addr}, nil
}

// Addr is the struct address, cid.NullAddress after Close.
func (s *Scope) Addr() cid.Address { return s.addr }

func (s *Scope) Type() *Type { return s.t }

// Close forgets the address. The pin taken at create time is kept.
func (s *Scope) Close() error {
	s.addr = cid.NullAddress
	return nil
}
