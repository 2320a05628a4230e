package movement

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"

	"ForesightX/internal/web3"
)

// aip80Prefix marks AIP-80 formatted ed25519 private keys.
const aip80Prefix = "ed25519-priv-"

// ed25519Scheme is the authentication key scheme byte for single ed25519 keys.
const ed25519Scheme = 0x00

// Account is an ed25519 Movement account.
type Account struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

var _ web3.Signer = (*Account)(nil)

// ParsePrivateKey accepts a hex encoded 32-byte seed or 64-byte private key,
// with or without the 0x prefix and the AIP-80 "ed25519-priv-" prefix.
func ParsePrivateKey(raw string) (*Account, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return nil, errors.New("private key is empty")
	}
	key = strings.TrimPrefix(key, aip80Prefix)
	if !strings.HasPrefix(key, "0x") && !strings.HasPrefix(key, "0X") {
		key = "0x" + key
	}
	decoded, err := hexutil.Decode(strings.ToLower(key))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(decoded) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(decoded)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(decoded)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
	}
	return NewAccount(priv), nil
}

// NewAccount wraps an ed25519 private key.
func NewAccount(priv ed25519.PrivateKey) *Account {
	pub := priv.Public().(ed25519.PublicKey)
	return &Account{privateKey: priv, publicKey: pub, address: AuthenticationKey(pub)}
}

// AuthenticationKey derives the account address sha3-256(pubkey || 0x00).
func AuthenticationKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(pub)+1)
	buf = append(buf, pub...)
	buf = append(buf, ed25519Scheme)
	sum := sha3.Sum256(buf)
	return hexutil.Encode(sum[:])
}

// Address returns the 0x-prefixed account address.
func (a *Account) Address() string { return a.address }

// PublicKeyHex returns the 0x-prefixed public key.
func (a *Account) PublicKeyHex() string { return hexutil.Encode(a.publicKey) }

// Sign signs an encoded signing message.
func (a *Account) Sign(message []byte) []byte {
	return ed25519.Sign(a.privateKey, message)
}

// Verify reports whether sig is a valid signature of message by this account.
func (a *Account) Verify(message, sig []byte) bool {
	return ed25519.Verify(a.publicKey, message, sig)
}

// NormalizeAddress lowercases an address and left-pads it to 64 hex digits.
func NormalizeAddress(addr string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(addr))
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if trimmed == "" || len(trimmed) > 64 {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	for _, r := range trimmed {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", fmt.Errorf("invalid address %q", addr)
		}
	}
	return "0x" + strings.Repeat("0", 64-len(trimmed)) + trimmed, nil
}
