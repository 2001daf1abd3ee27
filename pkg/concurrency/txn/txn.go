// Package txn defines the opaque identifier that names a transaction
// across its lifetime.
package txn

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies a logical transaction. It wraps a random UUID
// rather than a process-local counter so identifiers stay globally unique
// across process restarts and are safe to log or persist as an opaque
// token. The zero value is not a valid transaction ID; use New.
type ID struct {
	uuid uuid.UUID
}

// New allocates a fresh, globally unique transaction ID.
func New() ID {
	return ID{uuid: uuid.New()}
}

// Zero reports whether id is the unset zero value.
func (id ID) Zero() bool {
	return id.uuid == uuid.Nil
}

func (id ID) String() string {
	return fmt.Sprintf("txn-%s", id.uuid.String())
}
