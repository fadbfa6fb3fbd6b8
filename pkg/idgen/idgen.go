// Package idgen generates lexicographically sortable identifiers.
// Outbox messages and scheduler jobs use these so that id order roughly
// follows creation order, which keeps dashboards and range scans cheap.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewSortableID returns a ULID string for the current time.
// Safe for concurrent use.
func NewSortableID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		panic(err) // monotonic entropy overflow within one millisecond
	}
	return id.String()
}
