package repository

import (
	"strings"

	"github.com/google/uuid"
)

// NewID builds an opaque identifier with a human-readable prefix, e.g.
// BIN-9f6d2c1a. The suffix is the first uuid block; full uuids make keys
// noisy in logs without adding uniqueness we need at this fleet size.
func NewID(prefix string) string {
	id := uuid.NewString()
	return prefix + "-" + strings.SplitN(id, "-", 2)[0]
}
