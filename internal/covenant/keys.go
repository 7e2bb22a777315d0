package covenant

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// HPointHex is the provably-unspendable generator point used as the
// internal key of every Taproot output in the protocol, so the key-path
// is never a viable spend and every coin is reachable only via a leaf.
const HPointHex = "0250929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"

var hPoint *secp256k1.PublicKey

func init() {
	b, err := hex.DecodeString(HPointHex)
	if err != nil {
		panic(err)
	}
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		panic(err)
	}
	hPoint = key
}

// HPoint returns the 33-byte-compressed unspendable internal key.
func HPoint() *secp256k1.PublicKey {
	return hPoint
}

// XHPoint returns the 32-byte x-only form of HPoint.
func XHPoint() []byte {
	b := hPoint.SerializeCompressed()
	return b[1:]
}

// ParseXOnlyPubKey parses a 32-byte x-only public key into its even-y
// compressed form, the convention used throughout the covenant scripts.
func ParseXOnlyPubKey(xOnly []byte) (*secp256k1.PublicKey, error) {
	if len(xOnly) != 32 {
		return nil, fmt.Errorf("covenant: x-only pubkey must be 32 bytes, got %d", len(xOnly))
	}
	compressed := append([]byte{0x02}, xOnly...)
	return secp256k1.ParsePubKey(compressed)
}

// SerializeXOnly returns the 32-byte x-only encoding of pub.
func SerializeXOnly(pub *secp256k1.PublicKey) []byte {
	b := pub.SerializeCompressed()
	return b[1:]
}
