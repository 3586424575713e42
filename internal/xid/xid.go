// Package xid generates prefix-tagged identifiers for entities such as
// sessions, sales, ledger entries and movements. IDs sort roughly by
// creation time and carry enough randomness to avoid collisions across
// processes.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const randomBytes = 10

// New returns an id of the form "<prefix>-<unix-millis>-<random hex>".
func New(prefix string) string {
	now := time.Now().UTC().UnixMilli()
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back
		// to a nanosecond stamp so writes still get distinct keys.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(buf))
}
