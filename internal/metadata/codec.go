package metadata

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlRecord is the on-disk shape of a sidecar. Timestamps are kept as RFC3339Nano text so
// sub-second precision survives the round trip regardless of the YAML timestamp resolver.
type yamlRecord struct {
	ID      string            `yaml:"id"`
	History []yamlFingerprint `yaml:"history"`
}

type yamlFingerprint struct {
	Timestamp string `yaml:"timestamp"`
	SHA256    string `yaml:"sha256"`
}

// Encode serializes a record into sidecar bytes.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("cannot encode nil record")
	}

	doc := yamlRecord{ID: r.ID, History: make([]yamlFingerprint, 0, len(r.History))}
	for _, fp := range r.History {
		doc.History = append(doc.History, yamlFingerprint{
			Timestamp: fp.Timestamp.UTC().Format(time.RFC3339Nano),
			SHA256:    fp.Digest,
		})
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return nil, fmt.Errorf("marshal record to yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("marshal record to yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses sidecar bytes. Any structural problem is an error; nothing is defaulted.
func Decode(data []byte) (*Record, error) {
	var doc yamlRecord
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	if strings.TrimSpace(doc.ID) == "" {
		return nil, errors.New("record id is empty")
	}

	record := NewRecord(doc.ID)
	for i, entry := range doc.History {
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: bad timestamp %q: %w", i, entry.Timestamp, err)
		}
		if err := validateDigest(entry.SHA256); err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		record.Append(Fingerprint{Timestamp: ts.UTC(), Digest: entry.SHA256})
	}
	return record, nil
}

func validateDigest(digest string) error {
	if len(digest) != hex.EncodedLen(32) {
		return fmt.Errorf("bad digest length %d", len(digest))
	}
	if strings.ToLower(digest) != digest {
		return fmt.Errorf("digest %q is not lowercase hex", digest)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return fmt.Errorf("bad digest %q: %w", digest, err)
	}
	return nil
}
