package events

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewID returns a ULID for an event at ts. IDs generated within the same
// millisecond stay lexicographically increasing, so the journal sorts by ID.
func NewID(ts time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(ts.UTC()), mono)
	if err != nil {
		// Only possible if entropy is exhausted within one millisecond.
		return ulid.Make().String()
	}
	return id.String()
}
