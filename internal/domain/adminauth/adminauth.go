// Package adminauth verifies admin API keys against configured hashes.
// Keys are never stored raw; config carries sha256 or argon2id hashes.
package adminauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a configured hash has an unrecognized
// format.
var ErrUnknownHashType = errors.New("unknown hash type")

// argon2idParams follows OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Verifier checks presented admin keys against the configured hash set.
// Typically there is one hash; rotation windows may carry two.
type Verifier struct {
	hashes []string
}

// NewVerifier creates a Verifier over the configured hashes.
func NewVerifier(hashes ...string) *Verifier {
	return &Verifier{hashes: hashes}
}

// Verify reports whether rawKey matches any configured hash. Hashes with an
// unrecognized format are skipped rather than failing the whole check, so a
// single malformed entry cannot lock every key out.
func (v *Verifier) Verify(rawKey string) bool {
	if rawKey == "" {
		return false
	}
	for _, stored := range v.hashes {
		match, err := VerifyKey(rawKey, stored)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// HashKey returns the sha256 hex digest of rawKey. The fast comparison path;
// argon2id is preferred for new deployments.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// HashKeyArgon2id returns an argon2id hash of rawKey in PHC format,
// $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>, with a random salt.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the algorithm of a stored hash: "argon2id" for
// PHC format, "sha256" for prefixed or bare 64-char hex, "unknown" otherwise.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies rawKey against one stored hash. Returns
// ErrUnknownHashType for unrecognized formats. The sha256 path uses
// constant-time comparison.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)

	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed hashes with
// invalid parameters (t=0, p=0); those become errors here.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
