package runstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeRecord serializes a record with encoding/gob. Output values must be
// gob-encodable; the common container types are registered by the api
// package, and custom runner output types must register themselves.
func EncodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode run record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode run record: %w", err)
	}
	return rec, nil
}
