package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGlue        = "bip/glue/v1"
	DomainBehavior    = "bip/behavior/v1"
	DomainInteraction = "bip/interaction/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical JSON form of v under domain.
// Returns error if v cannot be canonically marshaled.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// InteractionID computes a content-addressed id for an interaction fired in
// a given run and round. Two firings of the same port set in different
// rounds get different ids.
func InteractionID(runID string, round int64, in Interaction) string {
	ids := in.PortIDs()
	obj := map[string]any{
		"run_id": runID,
		"round":  round,
		"ports":  ids,
	}
	// Inputs are strings and ints only; marshal cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainInteraction, canonical)
}
