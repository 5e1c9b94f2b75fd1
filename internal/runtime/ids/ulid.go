// Package ids generates the request and message identifiers stamped on
// outbound traffic.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Monotonic entropy is not safe for concurrent use.
var (
	mu      sync.Mutex
	reader  = ulid.Monotonic(rand.Reader, 0)
	nowFunc = time.Now
)

// CreateULID returns a new ULID string. IDs from one process sort in
// creation order, including those made within the same millisecond.
func CreateULID() string {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(nowFunc()), reader)
	mu.Unlock()
	return id.String()
}

// OrNew returns the first non-empty candidate, or a fresh ULID.
func OrNew(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return CreateULID()
}

// Time reports when a ULID was created. ok is false for values that are
// not ULIDs, such as caller-supplied request ids.
func Time(id string) (t time.Time, ok bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
