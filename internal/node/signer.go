package node

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Signer holds the ed25519 account key that signs outbound operations.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     string
	address string
}

// NewSigner decodes a Massa secret key ("S" prefix, base58 payload with a
// leading version byte) and pairs it with the account address it controls.
func NewSigner(secretKey, address string) (*Signer, error) {
	if !strings.HasPrefix(secretKey, "S") {
		return nil, fmt.Errorf("secret key must start with 'S'")
	}
	raw, err := base58.Decode(secretKey[1:])
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) < ed25519.SeedSize+1 {
		return nil, fmt.Errorf("secret key too short: %d bytes", len(raw))
	}

	// Skip the version byte; the remainder is the ed25519 seed.
	priv := ed25519.NewKeyFromSeed(raw[1 : ed25519.SeedSize+1])
	pub := priv.Public().(ed25519.PublicKey)

	return &Signer{
		priv:    priv,
		pub:     "P" + base58.Encode(append([]byte{0}, pub...)),
		address: address,
	}, nil
}

// Address returns the on-chain account address.
func (s *Signer) Address() string {
	return s.address
}

// PublicKey returns the encoded public key submitted with operations.
func (s *Signer) PublicKey() string {
	return s.pub
}

// Sign produces the detached signature over serialized operation content.
func (s *Signer) Sign(data []byte) []byte {
	return ed25519.Sign(s.priv, data)
}
