package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/receipts/internal/fact"
)

// Environment variables configuring manifest signing. The single-key
// form signs and verifies; the multi-key form lets a verifier hold
// retired keys for older packs.
const (
	EnvHMACKey   = "RECEIPTS_HMAC_KEY"    // hex key material
	EnvHMACKeyID = "RECEIPTS_HMAC_KEY_ID" // id recorded in signatures
	EnvHMACKeys  = "RECEIPTS_HMAC_KEYS"   // "id:hexkey,id:hexkey" verification set
)

// ErrUnknownKey reports a signature whose key id is not on the ring.
var ErrUnknownKey = errors.New("no key held for signature key id")

// Keyring holds HMAC-SHA256 keys by id. One key signs new manifests;
// every held key can verify. A nil or empty keyring signs nothing.
type Keyring struct {
	signID string
	keys   map[string][]byte
}

// NewKeyring returns an empty ring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// Add puts a key on the ring. The first added key becomes the signer;
// SetSigner changes it.
func (k *Keyring) Add(id string, key []byte) {
	if k.signID == "" {
		k.signID = id
	}
	k.keys[id] = key
}

// SetSigner selects which held key signs new manifests.
func (k *Keyring) SetSigner(id string) error {
	if _, ok := k.keys[id]; !ok {
		return fmt.Errorf("set signer: %w: %q", ErrUnknownKey, id)
	}
	k.signID = id
	return nil
}

// KeyringFromEnv builds a ring from the environment. Returns an empty
// ring when no key variables are set; malformed values fail fast.
func KeyringFromEnv() (*Keyring, error) {
	ring := NewKeyring()

	if keys := os.Getenv(EnvHMACKeys); keys != "" {
		for _, pair := range strings.Split(keys, ",") {
			id, hexKey, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok || id == "" {
				return nil, fmt.Errorf("%s: entry %q is not id:hexkey", EnvHMACKeys, pair)
			}
			raw, err := hex.DecodeString(hexKey)
			if err != nil {
				return nil, fmt.Errorf("%s: key %q: %w", EnvHMACKeys, id, err)
			}
			ring.Add(id, raw)
		}
	}

	if key := os.Getenv(EnvHMACKey); key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvHMACKey, err)
		}
		id := os.Getenv(EnvHMACKeyID)
		if id == "" {
			id = "default"
		}
		ring.Add(id, raw)
		if err := ring.SetSigner(id); err != nil {
			return nil, err
		}
	}

	return ring, nil
}

// CanSign reports whether a signing key is configured.
func (k *Keyring) CanSign() bool {
	return k != nil && k.signID != "" && len(k.keys[k.signID]) > 0
}

// Sign computes the HMAC-SHA256 signature over canonical manifest
// bytes. Returns nil when no signing key is configured.
func (k *Keyring) Sign(canonical []byte) *fact.Signature {
	if !k.CanSign() {
		return nil
	}
	mac := hmac.New(sha256.New, k.keys[k.signID])
	mac.Write(canonical)
	return &fact.Signature{
		KeyID: k.signID,
		MAC:   hex.EncodeToString(mac.Sum(nil)),
	}
}

// Verify checks a signature against canonical bytes using the key the
// signature names. ErrUnknownKey means the ring cannot check it; any
// other error is a real mismatch.
func (k *Keyring) Verify(sig *fact.Signature, canonical []byte) error {
	if sig == nil {
		return nil
	}
	if k == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKey, sig.KeyID)
	}
	key, ok := k.keys[sig.KeyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, sig.KeyID)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	want := mac.Sum(nil)
	got, err := hex.DecodeString(sig.MAC)
	if err != nil {
		return fmt.Errorf("signature mac is not hex: %w", err)
	}
	if !hmac.Equal(want, got) {
		return fmt.Errorf("signature mismatch for key %q", sig.KeyID)
	}
	return nil
}
