// Package codec serializes change payload field sets for durable storage
// and wire transfer. MessagePack keeps queued payloads compact and is
// schema-free, which matters because syncable entity types register their
// field sets at runtime.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodePayload serializes a field set to msgpack bytes.
func EncodePayload(fields map[string]any) ([]byte, error) {
	data, err := msgpack.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes msgpack bytes back into a field set.
// Map keys decode as strings so a round-tripped payload compares equal.
func DecodePayload(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return fields, nil
}
