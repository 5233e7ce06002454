// Package address implements the fixed-width on-chain account identifier
// used as the primary key for every entity in the state map, plus the
// operator keypair that ChainClient signs with.
package address

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mr-tron/base58"
)

// Len is the byte width of an Address (a Solana-style ed25519 public key).
const Len = 32

// Address is a fixed-width opaque account identifier.
type Address [Len]byte

// Zero is the default, empty address.
var Zero Address

// String returns the base58 encoding, the conventional human-readable form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the raw 32-byte identifier.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := FromString(s)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// FromString decodes a base58-encoded address.
func FromString(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("address: decode %q: %w", s, err)
	}
	if len(raw) != Len {
		return Zero, fmt.Errorf("address: %q decodes to %d bytes, want %d", s, len(raw), Len)
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// FromBytes wraps a raw 32-byte slice as an Address.
func FromBytes(b []byte) (Address, error) {
	if len(b) != Len {
		return Zero, fmt.Errorf("address: got %d bytes, want %d", len(b), Len)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Derived computes a deterministic address from a seed tuple, reproducing
// the program's seeded address derivation: sha256(seed || authority ||
// owner || offset) truncated and reinterpreted as an address. This is a
// derivation helper only — it mirrors the shape of a program-derived
// address without claiming to be a faithful reimplementation of any
// specific on-chain program's PDA algorithm.
func Derived(seed string, authority, owner Address, offset uint64) Address {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(authority.Bytes())
	h.Write(owner.Bytes())
	h.Write([]byte(strconv.FormatUint(offset, 10)))
	sum := h.Sum(nil)
	var a Address
	copy(a[:], sum[:Len])
	return a
}

// Keypair is the operator's signing identity, loaded once at process
// startup and shared by reference into ChainClient. It loads the key,
// exposes the public address, and produces raw ed25519 signatures; no
// transaction signing scheme is built on top of it here.
type Keypair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Address returns the keypair's public address.
func (k *Keypair) Address() Address {
	var a Address
	copy(a[:], k.public)
	return a
}

// Sign produces a raw ed25519 signature over msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// LoadKeypair reads a 64-byte raw ed25519 private key from path, the
// conventional on-disk format for an operator's signing key.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("address: read keypair %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("address: keypair %s has %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("address: keypair %s: could not derive public key", path)
	}
	return &Keypair{public: pub, private: priv}, nil
}

// GenerateKeypair creates a fresh random keypair, useful for tests and
// for the admin `init_*` collaborator commands (out of this service's
// scope to call, but the type itself has no reason to be test-only).
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("address: generate keypair: %w", err)
	}
	return &Keypair{public: pub, private: priv}, nil
}
