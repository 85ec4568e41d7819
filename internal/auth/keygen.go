package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Generated secret format: pls_{env}_{secret}
// Example: pls_live_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const SecretLen = 32 // hex encoded 16 bytes

// Environment indicators for the secret prefix.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var secretFormatRegex = regexp.MustCompile(`^pls_(live|test)_([a-f0-9]{32})$`)

// GeneratedSecret holds a fresh gate secret and its derived forms.
type GeneratedSecret struct {
	Plaintext   string // hand to clients once
	Hash        string // API_KEY_HASH value
	Fingerprint string // safe to log
}

// GenerateSecret creates a new shared secret for env.
func GenerateSecret(env string, p HashParams) (*GeneratedSecret, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := fmt.Sprintf("pls_%s_%s", env, hex.EncodeToString(raw))

	hash, err := HashSecret(plaintext, p)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	return &GeneratedSecret{
		Plaintext:   plaintext,
		Hash:        hash,
		Fingerprint: Fingerprint(plaintext),
	}, nil
}

// IsGeneratedFormat reports whether s looks like a GenerateSecret output.
// Operators may configure any secret; this is advisory only.
func IsGeneratedFormat(s string) bool {
	return secretFormatRegex.MatchString(s)
}
