package audit

import (
	"bytes"
	"encoding/json"
)

// EncodePayload serializes an entry payload for storage.
func EncodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}

// DecodePayload restores a stored payload. Numbers decode as json.Number so
// that re-hashing a round-tripped entry produces the exact original digest.
func DecodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	// Empty normalizes to nil so a round-tripped entry hashes identically.
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}
