// Package hashing provides canonical JSON serialization and content hashing.
// The resulting hash is the idempotency primitive shared by the upsert engine,
// the CRM syncer, and the spreadsheet sink.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// CanonicalJSON serializes v with stable key ordering, no extraneous
// whitespace, and Unicode preserved. Two values that differ only in map key
// order produce identical output.
func CanonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "hashing: marshal")
	}

	// Round-trip through a generic value so map keys come back sorted and
	// struct field order stops mattering. UseNumber keeps numeric literals
	// byte-for-byte stable.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", eris.Wrap(err, "hashing: decode")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", eris.Wrap(err, "hashing: encode")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// SHA256Hex returns the hex-encoded SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashObject returns the SHA-256 of the canonical serialization of v.
func HashObject(v any) (string, error) {
	c, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(c), nil
}

// MustHash is HashObject for values known to be JSON-serializable
// (plain string maps). It returns an empty hash on failure.
func MustHash(v any) string {
	h, err := HashObject(v)
	if err != nil {
		return ""
	}
	return h
}
