package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// DeriveKey computes session_key = first16_hex(sha256(canonical_json(
// first three turns))), per spec §4.7. turns should be the inbound
// dialect's raw message list truncated to at most its first three
// entries, in their original order, before translation — the key
// intentionally ignores the tail so ongoing conversations stay bound
// to the same credential.
func DeriveKey(turns []json.RawMessage) string {
	if len(turns) > 3 {
		turns = turns[:3]
	}
	canonical := canonicalJSON(turns)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// TurnsFromField extracts the array stored under field in a raw JSON
// object — e.g. "messages" for Dialect A/B, "contents" for Dialect C —
// for use as DeriveKey's input. Returns nil if the field is absent or
// not an array.
func TurnsFromField(raw json.RawMessage, field string) []json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	arr, ok := obj[field]
	if !ok {
		return nil
	}
	var turns []json.RawMessage
	if err := json.Unmarshal(arr, &turns); err != nil {
		return nil
	}
	return turns
}

// canonicalJSON re-marshals each raw turn through a generic
// interface{} round-trip so object key order is normalized
// (encoding/json sorts map keys on marshal), then joins them into one
// deterministic byte sequence.
func canonicalJSON(turns []json.RawMessage) []byte {
	normalized := make([]any, 0, len(turns))
	for _, raw := range turns {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			// Keep the raw bytes verbatim; an unparsed turn still
			// contributes deterministically to the hash.
			normalized = append(normalized, string(raw))
			continue
		}
		normalized = append(normalized, v)
	}
	out, _ := json.Marshal(normalized)
	return out
}
