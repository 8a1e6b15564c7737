// Package idempotency implements the two-tier check-and-claim protocol from
// spec §4.1: a deterministic request fingerprint, a cache-then-store lookup,
// and a reaper for expired claims.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint computes the 256-bit hash spec §4.1 requires: SHA-256 over
// (clientID ∥ operationType ∥ canonicalised request body ∥
// floor(unixSeconds / windowSeconds)). Canonicalisation sorts object keys and
// renders numbers via Go's default JSON formatting so the same logical
// request always hashes identically regardless of field order (spec §9).
func Fingerprint(clientID, operationType string, request any, unixSeconds int64, windowSeconds int64) (string, error) {
	canonical, err := canonicalize(request)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	window := int64(0)
	if windowSeconds > 0 {
		window = unixSeconds / windowSeconds
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", clientID, operationType, canonical, window)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalize renders v as JSON with map keys sorted recursively, so two
// structurally-identical requests always serialise byte-for-byte the same.
func canonicalize(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	sorted := sortValue(generic)
	out, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sortValue rebuilds maps with their keys inserted in sorted order and
// recurses into slices; json.Marshal itself sorts map[string]any keys, which
// is what makes the output deterministic.
func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortValue(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = sortValue(elem)
		}
		return out
	default:
		return t
	}
}
