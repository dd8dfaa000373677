package graph

import (
	"time"

	"github.com/google/uuid"
)

// NewUUID returns a fresh random (version 4) UUID in canonical form.
func NewUUID() string {
	return uuid.New().String()
}

// NormalizeUUID parses s and returns its canonical lowercase hyphenated form.
func NormalizeUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Clock supplies export timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, truncated to seconds in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
