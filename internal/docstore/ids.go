package docstore

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// MonotonicIDGenerator returns a function that generates document ids in
// strictly increasing order, so ordering by id matches creation order.
//   - is safe for concurrent use.
//   - panics if an id fails to be generated
func MonotonicIDGenerator() func() string {
	var m sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)

	return func() string {
		m.Lock()
		defer m.Unlock()
		return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
	}
}
