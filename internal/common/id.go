package common

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexicographically sortable unique id. Sorting ids sorts
// by creation time, which keeps timeline queries free of timestamp ties.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites that cannot surface an error, such as
// ids minted mid-reveal. It uses the package's monotonic entropy source.
func MustULID() string {
	return ulid.Make().String()
}
