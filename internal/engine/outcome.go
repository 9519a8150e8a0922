package engine

import (
	"github.com/openmined/assetguard/internal/metadata"
)

// Outcome is the classification of one asset. The set of variants is closed; Synchronize
// switches over all of them.
type Outcome interface {
	Kind() Kind
	isOutcome()
}

type Kind uint8

const (
	KindTimestampMatches Kind = iota
	KindHashAndTimestampMatch
	KindMissingMetadata
	KindMissingHistory
	KindStale
	KindHashMismatch
)

var kindNames = []string{
	"valid (timestamp matches)",
	"valid (hash matches)",
	"missing metadata",
	"missing history",
	"stale",
	"hash mismatch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether the kind is one of the valid variants.
func (k Kind) Valid() bool {
	return k == KindTimestampMatches || k == KindHashAndTimestampMatch
}

// TimestampMatches: the file timestamp equals the latest fingerprint and no content check was
// requested.
type TimestampMatches struct {
	Record *metadata.Record
}

// HashAndTimestampMatch: a fresh hash equals the latest recorded digest.
type HashAndTimestampMatch struct {
	Record *metadata.Record
	Fresh  metadata.Fingerprint
}

// MissingMetadata: the asset has no sidecar.
type MissingMetadata struct{}

// MissingHistory: the sidecar exists but holds no fingerprint.
type MissingHistory struct {
	Record *metadata.Record
}

// Stale: the timestamp advanced and the content changed, and the run accepts such edits.
type Stale struct {
	Record *metadata.Record
	Fresh  metadata.Fingerprint
}

// HashMismatch: a fresh hash disagrees with the latest recorded digest. Never auto-healed.
type HashMismatch struct {
	Record *metadata.Record
	Fresh  metadata.Fingerprint
}

func (TimestampMatches) Kind() Kind      { return KindTimestampMatches }
func (HashAndTimestampMatch) Kind() Kind { return KindHashAndTimestampMatch }
func (MissingMetadata) Kind() Kind       { return KindMissingMetadata }
func (MissingHistory) Kind() Kind        { return KindMissingHistory }
func (Stale) Kind() Kind                 { return KindStale }
func (HashMismatch) Kind() Kind          { return KindHashMismatch }

func (TimestampMatches) isOutcome()      {}
func (HashAndTimestampMatch) isOutcome() {}
func (MissingMetadata) isOutcome()       {}
func (MissingHistory) isOutcome()        {}
func (Stale) isOutcome()                 {}
func (HashMismatch) isOutcome()          {}
