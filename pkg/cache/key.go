package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key generates a deterministic cache key for an operation request.
// Format: namespace:sha256(canonical JSON of input)
//
// Canonical means map keys are sorted and insignificant whitespace inside
// embedded json.RawMessage values is dropped, so two requests that differ
// only in formatting share a key.
//
// Example:
//
//	compute:3b1f0c...e9
func Key(namespace string, input any) string {
	sum := sha256.Sum256(canonicalJSON(input))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

func canonicalJSON(input any) []byte {
	raw, err := json.Marshal(input)
	if err != nil {
		// Unmarshalable inputs (channels, funcs) still need a stable key.
		return []byte(fmt.Sprintf("%#v", input))
	}

	// Round-trip through a generic value: encoding/json sorts map keys on
	// output, which normalizes objects nested in raw messages too.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return raw
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return raw
	}
	return out
}
