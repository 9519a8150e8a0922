// Package metadata models the per-asset sidecar record: an immutable identity plus an
// append-only history of fingerprints, and the store that reads and writes it.
package metadata

import (
	"slices"
	"time"
)

// Fingerprint is one observation of an asset: the content digest taken at a modification time.
type Fingerprint struct {
	Timestamp time.Time
	Digest    string // lowercase hex SHA-256
}

// SameObservation reports whether both fingerprints carry the same digest. Timestamps are not
// compared; they only serve as a fast-path proxy for unchanged content.
func (f Fingerprint) SameObservation(other Fingerprint) bool {
	return f.Digest == other.Digest
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Digest == other.Digest && f.Timestamp.Equal(other.Timestamp)
}

// Record is the persisted state of one asset. History is only ever appended to; the current
// fingerprint is the last entry.
type Record struct {
	ID      string
	History []Fingerprint
}

func NewRecord(id string) *Record {
	return &Record{ID: id}
}

// Latest returns the current fingerprint, or false when no fingerprint was ever recorded.
func (r *Record) Latest() (Fingerprint, bool) {
	if len(r.History) == 0 {
		return Fingerprint{}, false
	}
	return r.History[len(r.History)-1], true
}

func (r *Record) Append(fp Fingerprint) {
	r.History = append(r.History, fp)
}

// Clone returns a deep copy so a would-be update can be built without touching r.
func (r *Record) Clone() *Record {
	return &Record{ID: r.ID, History: slices.Clone(r.History)}
}

type TimestampComparison uint8

const (
	TimestampEqual TimestampComparison = iota
	FileModifiedSince
	ImpossiblePast
)

var timestampComparisonNames = []string{
	"Equal",
	"FileModifiedSince",
	"ImpossiblePast",
}

func (c TimestampComparison) String() string {
	if int(c) < len(timestampComparisonNames) {
		return timestampComparisonNames[c]
	}
	return "Unknown"
}

// CompareTimestamp places an observed file modification time relative to a recorded fingerprint.
// A file that claims to be older than its last recorded observation is ImpossiblePast.
func CompareTimestamp(fp Fingerprint, observed time.Time) TimestampComparison {
	switch {
	case observed.Equal(fp.Timestamp):
		return TimestampEqual
	case observed.Before(fp.Timestamp):
		return ImpossiblePast
	default:
		return FileModifiedSince
	}
}
