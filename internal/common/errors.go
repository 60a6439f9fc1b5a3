package common

import "github.com/pkg/errors"

var (
	ErrNotInitialized     = errors.New("direct access used before store was injected")
	ErrAlreadyInitialized = errors.New("direct access context already initialized")
	ErrInvalidIdentifier  = errors.New("invalid or non-local chunk id")
	ErrIndexOutOfRange    = errors.New("array index out of range")
	ErrNullArgument       = errors.New("argument must not be null")
	ErrInvalidEnum        = errors.New("invalid enum value")
	ErrKindMismatch       = errors.New("field kind mismatch")
	ErrUntypedStruct      = errors.New("struct carries no type header")
	ErrTypeMismatch       = errors.New("chunk type tag mismatch")
	ErrOutOfMemory        = errors.New("chunk store out of memory")
)
