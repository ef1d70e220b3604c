// Package security provides the PasswordHasher implementations.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
)

// Argon2id parameters.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

var errUnknownScheme = errors.New("unrecognised password hash format")

// Hasher hashes new passwords with the configured scheme and verifies hashes
// of either scheme, so switching PASSWORD_HASHER keeps existing accounts usable.
type Hasher struct {
	scheme     string
	bcryptCost int
}

// NewHasher returns a Hasher for scheme. A zero bcryptCost means bcrypt.DefaultCost.
func NewHasher(scheme string, bcryptCost int) (*Hasher, error) {
	switch scheme {
	case "", SchemeBcrypt:
		scheme = SchemeBcrypt
	case SchemeArgon2id:
	default:
		return nil, fmt.Errorf("unknown password hasher %q", scheme)
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
	}
	return &Hasher{scheme: scheme, bcryptCost: bcryptCost}, nil
}

func (h *Hasher) Scheme() string { return h.scheme }

func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme == SchemeArgon2id {
		return hashArgon2id(password)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

// Verify reports whether password matches hash. A mismatch is not an error.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(password, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt: %w", err)
		}
		return true, nil
	default:
		return false, errUnknownScheme
	}
}

// hashArgon2id returns the PHC string $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("parsing parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}

	candidate := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}
