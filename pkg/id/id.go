// Package id generates time-sortable record identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader = ulid.Monotonic(cryptoRand.Reader, 0)
)

// New returns a ULID for the current time. IDs generated in the same
// millisecond still sort in generation order.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// only on entropy failure or a timestamp past year 10889
		panic(err)
	}
	return id.String()
}

// Time extracts the timestamp from an ID produced by New or At.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()).UTC(), nil
}
