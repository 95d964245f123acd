package metadata

import "github.com/oklog/ulid/v2"

// NewRevision returns a fresh, lexically increasing revision token.
func NewRevision() string {
	return ulid.Make().String()
}
