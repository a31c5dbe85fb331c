package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// NewFunc produces globally unique string identifiers. Override in tests
// for determinism.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// CorrelationID returns a strictly positive random 63-bit integer. Collisions
// between concurrently generated ids are probabilistically negligible, which
// is the uniqueness contract flow begin relies on when the caller supplies no
// id of its own. Override in tests for determinism.
var CorrelationIDFunc = func() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// the platform entropy source is broken, ids minted without it
		// would silently collide
		panic(fmt.Sprintf("idgen: reading entropy: %v", err))
	}
	id := int64(binary.BigEndian.Uint64(buf[:]) >> 1)
	if id == 0 {
		id = 1
	}
	return id
}

func CorrelationID() int64 { return CorrelationIDFunc() }
