// Package cache persists per-unit enhancement phase results keyed by
// content fingerprint, so interrupted runs resume without reissuing
// previously successful LLM calls. One durable record exists per
// (unit, phase); a fingerprint mismatch is always a miss, never a stale
// hit.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Phase identifies which enhancement phase a record belongs to.
type Phase string

const (
	// PhaseSelection is the content selection phase.
	PhaseSelection Phase = "selection"

	// PhaseAnnotation is the annotation phase.
	PhaseAnnotation Phase = "annotation"
)

// Stats summarizes the cache contents.
type Stats struct {
	Entries int `json:"entries"`
}

// Store is the durable enhancement cache. Units never share a fingerprint,
// so at most one writer touches a key at a time and atomic single-entry
// writes suffice.
type Store interface {
	// Get returns the payload stored for (unitID, phase) when its
	// fingerprint matches, or ok=false on a miss.
	Get(ctx context.Context, unitID string, phase Phase, fingerprint string) (payload []byte, ok bool, err error)

	// Put stores the payload for (unitID, phase), replacing any record
	// with a different fingerprint.
	Put(ctx context.Context, unitID string, phase Phase, fingerprint string, payload []byte) error

	// Stats reports the number of stored records.
	Stats(ctx context.Context) (Stats, error)

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// Fingerprint derives the cache key digest from the unit text, the phase,
// and the active configuration digest. Changing any of the three
// invalidates exactly the entries it covers.
func Fingerprint(unitText string, phase Phase, configDigest string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", unitText, phase, configDigest)
	return hex.EncodeToString(h.Sum(nil))
}
