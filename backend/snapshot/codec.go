// Package snapshot encodes replica snapshots for storage and exchange.
//
// The encoding is a versioned JSON envelope. Identities are written in their
// "Seq@Origin" text form and every predecessor edge is kept, so a decoded
// snapshot merges exactly like the original.
package snapshot

import (
	"bytes"
	"encoding/json"
	"io"

	"golang.org/x/xerrors"

	"opdag/backend/types"
)

// Version is the envelope format written by Encode.
const Version = 1

type envelope[P any] struct {
	Version  int               `json:"version"`
	Snapshot types.Snapshot[P] `json:"snapshot"`
}

// Encode writes snap to w.
func Encode[P any](w io.Writer, snap types.Snapshot[P]) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope[P]{Version: Version, Snapshot: snap}); err != nil {
		return xerrors.Errorf("failed to encode %s: %w", snap, err)
	}
	return nil
}

// Decode reads one snapshot from r.
func Decode[P any](r io.Reader) (types.Snapshot[P], error) {
	var env envelope[P]
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return types.Snapshot[P]{}, xerrors.Errorf("failed to decode snapshot: %w", err)
	}
	if env.Version != Version {
		return types.Snapshot[P]{}, xerrors.Errorf("unsupported snapshot version %d", env.Version)
	}
	return env.Snapshot, nil
}

// Marshal returns the encoding of snap.
func Marshal[P any](snap types.Snapshot[P]) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal.
func Unmarshal[P any](data []byte) (types.Snapshot[P], error) {
	return Decode[P](bytes.NewReader(data))
}
