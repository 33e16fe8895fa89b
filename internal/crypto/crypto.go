// Package crypto provides agent identities and transaction signing. Addresses
// are hex-encoded ed25519 public keys; they double as the routing addresses
// used by the transport and the ledger.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Identity is an agent keypair.
type Identity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	addr string
}

// NewIdentity generates a fresh identity.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Identity{pub: pub, priv: priv, addr: hex.EncodeToString(pub)}, nil
}

// NewIdentityFromSeed derives a deterministic identity from a 32-byte seed.
// Used by the simulation runner for reproducible games.
func NewIdentityFromSeed(seed []byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{pub: pub, priv: priv, addr: hex.EncodeToString(pub)}
}

// Address returns the hex-encoded public key.
func (id *Identity) Address() string { return id.addr }

// Sign signs a message with the identity's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.priv, msg)
}

// Verify checks a signature against the address it claims to be from.
func Verify(addr string, msg, sig []byte) bool {
	pub, err := hex.DecodeString(addr)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
