package token

import (
	"crypto/rand"
	"fmt"
)

// Key is one generation of HMAC key material. The version travels in the
// wire format so older, still-valid tokens survive a key rotation.
type Key struct {
	Version string
	Secret  []byte
}

// KeyRing holds the current signing key plus any previous generations still
// accepted for verification. Immutable after construction.
type KeyRing struct {
	current   Key
	byVersion map[string]Key
}

// NewKeyRing builds a ring with current as the signing key. Previous keys
// are accepted on decode only.
func NewKeyRing(current Key, previous ...Key) (*KeyRing, error) {
	if current.Version == "" || len(current.Secret) == 0 {
		return nil, fmt.Errorf("token: key ring needs a versioned current key")
	}
	byVersion := map[string]Key{current.Version: current}
	for _, k := range previous {
		if k.Version == "" || len(k.Secret) == 0 {
			return nil, fmt.Errorf("token: key %q has no version or secret", k.Version)
		}
		if _, dup := byVersion[k.Version]; dup {
			return nil, fmt.Errorf("token: duplicate key version %q", k.Version)
		}
		byVersion[k.Version] = k
	}
	return &KeyRing{current: current, byVersion: byVersion}, nil
}

// GenerateKey creates a random key with the given version.
func GenerateKey(version string) (Key, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Key{}, err
	}
	return Key{Version: version, Secret: secret}, nil
}

func (r *KeyRing) Current() Key {
	return r.current
}

func (r *KeyRing) Version(v string) (Key, bool) {
	k, ok := r.byVersion[v]
	return k, ok
}
