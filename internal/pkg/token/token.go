// Package token generates verification codes, recovery tokens and public
// account identifiers.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxPublicIDAttempts bounds the short-suffix retries before PublicID falls
// back to a long random suffix.
const MaxPublicIDAttempts = 8

const (
	codeDigits         = 6
	recoveryTokenBytes = 32
	fallbackSuffixLen  = 6
	alphanumeric       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NumericCode returns a uniformly random 6-digit code. Leading zeros are kept.
func NumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// RecoveryToken returns 32 random bytes encoded as unpadded base64url.
func RecoveryToken() (string, error) {
	buf := make([]byte, recoveryTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate recovery token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the storage form of a recovery token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// PublicIDParts are the registration fields a public id is derived from.
type PublicIDParts struct {
	GivenName string
	Surname1  string
	Surname2  string
	Language  string
	Level     string
}

// ExistsFunc reports whether a public id is already assigned.
type ExistsFunc func(ctx context.Context, publicID string) (bool, error)

// PublicIDPrefix builds the deterministic part of a public id:
// two-digit year, first three letters of the language, initials of
// surname1, surname2 and given name, then the level. E.g. "24INGGLMA1".
func PublicIDPrefix(p PublicIDParts, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%02d", now.Year()%100)
	b.WriteString(strings.ToUpper(firstRunes(strings.TrimSpace(p.Language), 3)))
	for _, name := range []string{p.Surname1, p.Surname2, p.GivenName} {
		b.WriteString(strings.ToUpper(firstRunes(strings.TrimSpace(name), 1)))
	}
	b.WriteString(strings.ToUpper(strings.TrimSpace(p.Level)))
	return b.String()
}

// PublicID returns a public id not yet known to exists. The bare prefix is
// tried first, then the prefix with a random two-digit suffix, and finally a
// random six-character suffix.
func PublicID(ctx context.Context, p PublicIDParts, now time.Time, exists ExistsFunc) (string, error) {
	prefix := PublicIDPrefix(p, now)

	candidate := prefix
	for attempt := 0; attempt < MaxPublicIDAttempts; attempt++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check public id: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		n, err := rand.Int(rand.Reader, big.NewInt(100))
		if err != nil {
			return "", fmt.Errorf("generate public id suffix: %w", err)
		}
		candidate = fmt.Sprintf("%s%02d", prefix, n.Int64())
	}

	suffix, err := randomString(fallbackSuffixLen)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random suffix: %w", err)
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
