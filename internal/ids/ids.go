package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// Sortable returns a lexicographically sortable identifier; identifiers minted
// within the same millisecond still sort in creation order.
func Sortable(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// New returns a random entity identifier.
func New() string {
	return uuid.NewString()
}

// Deterministic derives a stable identifier from its parts, so replaying the
// same create request maps to the same id.
func Deterministic(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "|"
		}
		key += p
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
