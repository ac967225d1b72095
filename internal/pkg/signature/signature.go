// Package signature implements the CMI "ver3" hash: a SHA-512 digest over the
// sorted, escaped, pipe-delimited field values followed by the store key.
package signature

import (
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// HashField carries the gateway's signature.
const HashField = "HASH"

// DefaultExcluded never participates in the digest. Matching is case-insensitive.
var DefaultExcluded = []string{"hash", "encoding"}

var (
	ErrMissingSecret = errors.New("store key is not configured")
	ErrMissingHash   = errors.New("HASH field is missing")
)

var escaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// Canonicalize builds the canonical signature string for fields. Names in
// excluded are skipped in addition to DefaultExcluded.
func Canonicalize(fields map[string]string, excluded []string, secret string) (string, error) {
	skip := make(map[string]struct{}, len(DefaultExcluded)+len(excluded))
	for _, name := range DefaultExcluded {
		skip[name] = struct{}{}
	}
	for _, name := range excluded {
		skip[strings.ToLower(name)] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := skip[strings.ToLower(name)]; ok {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a == b {
			return names[i] < names[j]
		}
		return a < b
	})

	var b strings.Builder
	for _, name := range names {
		value, err := decodeValue(fields[name])
		if err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		b.WriteString(escaper.Replace(value))
		b.WriteByte('|')
	}
	b.WriteString(escaper.Replace(secret))

	return b.String(), nil
}

// Sign returns the base64 SHA-512 digest of the canonical string.
func Sign(fields map[string]string, excluded []string, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	plain, err := Canonicalize(fields, excluded, secret)
	if err != nil {
		return "", err
	}
	return Digest(plain), nil
}

// Digest hashes an already canonicalized string.
func Digest(plain string) string {
	sum := sha512.Sum512([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Verify reports whether the HASH field matches the digest recomputed from
// the remaining fields. It fails closed on any error.
func Verify(fields map[string]string, secret string, excluded ...string) bool {
	ok, _ := Check(fields, secret, excluded...)
	return ok
}

// Check is Verify with the reason for a rejection.
func Check(fields map[string]string, secret string, excluded ...string) (bool, error) {
	provided, ok := fields[HashField]
	if !ok || provided == "" {
		return false, ErrMissingHash
	}
	expected, err := Sign(fields, excluded, secret)
	if err != nil {
		return false, err
	}
	// Exact comparison, the gateway's base64 is case sensitive.
	return provided == expected, nil
}

// decodeValue percent-decodes like decodeURIComponent ("+" stays literal) and
// drops one trailing line terminator.
func decodeValue(raw string) (string, error) {
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(value) {
		return "", errors.New("invalid UTF-8 after percent-decoding")
	}
	value = strings.TrimSuffix(value, "\n")
	value = strings.TrimSuffix(value, "\r")
	return value, nil
}
