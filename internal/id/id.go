package id

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewRun returns a sortable run identifier: the UTC start time followed by
// eight random hex characters, e.g. 20261014T093000Z-1f2e3d4c.
func NewRun(now time.Time) string {
	var b [4]byte
	suffix := "00000000"
	if _, err := rand.Read(b[:]); err == nil {
		suffix = hex.EncodeToString(b[:])
	}
	return now.UTC().Format("20060102T150405Z") + "-" + suffix
}
