package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinKeyBytes is the smallest accepted HMAC-SHA256 secret (256 bits).
const MinKeyBytes = 32

var (
	// ErrInvalidSigningKey marks unusable key material supplied at startup.
	ErrInvalidSigningKey = errors.New("invalid signing key")
	// ErrKeyTooShort is returned when decoded key material is under MinKeyBytes.
	ErrKeyTooShort = fmt.Errorf("%w: key must be at least %d bytes", ErrInvalidSigningKey, MinKeyBytes)
)

// SigningKey holds the symmetric secret shared by signing and verification.
// The zero value is unusable; construct it with ParseSigningKey or NewSigningKey.
type SigningKey struct {
	material []byte
}

// ParseSigningKey decodes key material in the standard base64 alphabet (RFC 4648 section 4),
// as printed by `openssl rand -base64 32`. Trailing padding may be omitted.
// URL-safe text is rejected rather than guessed at.
func ParseSigningKey(encoded string) (SigningKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return SigningKey{}, fmt.Errorf("%w: empty secret", ErrInvalidSigningKey)
	}

	enc := base64.StdEncoding
	if !strings.HasSuffix(encoded, "=") && len(encoded)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	raw, err := enc.Strict().DecodeString(encoded)
	if err != nil {
		return SigningKey{}, fmt.Errorf("%w: secret is not standard base64", ErrInvalidSigningKey)
	}
	return NewSigningKey(raw)
}

// NewSigningKey copies raw key material into an immutable SigningKey.
func NewSigningKey(raw []byte) (SigningKey, error) {
	if len(raw) < MinKeyBytes {
		return SigningKey{}, ErrKeyTooShort
	}
	material := make([]byte, len(raw))
	copy(material, raw)
	return SigningKey{material: material}, nil
}

// IsZero reports whether the key was never initialised.
func (k SigningKey) IsZero() bool {
	return len(k.material) == 0
}

// bytes returns the secret for the jwt library; callers must not mutate it.
func (k SigningKey) bytes() []byte {
	return k.material
}

func (k SigningKey) String() string {
	return "[REDACTED]"
}

func (k SigningKey) GoString() string {
	return "auth.SigningKey{[REDACTED]}"
}

// MarshalJSON keeps the secret out of any serialized config dump.
func (k SigningKey) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// MarshalText keeps the secret out of structured log encoders.
func (k SigningKey) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}
