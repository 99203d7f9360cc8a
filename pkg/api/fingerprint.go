package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// UpstreamRef identifies the upstream source feeding one connected input
// field at fingerprint time: the qualified instance name, the output field,
// and that instance's own fingerprint for the current run.
type UpstreamRef struct {
	Source      string `json:"source"`
	Field       string `json:"field"`
	Fingerprint string `json:"fingerprint"`
}

// fingerprintDoc is the canonical shape hashed for a node. encoding/json
// marshals maps with sorted keys, so the digest is stable regardless of map
// iteration order.
type fingerprintDoc struct {
	Step     string                 `json:"step"`
	Version  string                 `json:"version"`
	Literals map[string]any         `json:"literals,omitempty"`
	Upstream map[string]UpstreamRef `json:"upstream,omitempty"`
}

// ComputeFingerprint derives the deterministic cache identity of a node:
// a hex SHA-256 over the step identity, the literal input values, and the
// upstream reference of every connection-bound input.
//
// Connected fields contribute their upstream fingerprint rather than the
// propagated value, which makes invalidation strictly transitive: any change
// upstream changes every dependent's fingerprint, even when an intermediate
// recomputation happens to produce identical values.
//
// Literal values must be JSON-marshalable; anything else is an error and the
// node is failed rather than run uncached.
func ComputeFingerprint(step, version string, literals Values, upstream map[string]UpstreamRef) (string, error) {
	if version == "" {
		version = DefaultVersion
	}
	doc := fingerprintDoc{
		Step:     step,
		Version:  version,
		Literals: literals,
		Upstream: upstream,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint of step %q: %w", step, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
