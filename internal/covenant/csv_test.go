package covenant

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *secp256k1.PublicKey {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestCSVClosureRoundTrip(t *testing.T) {
	closure := &CSVClosure{OwnerPubKey: mustKey(t), Seconds: ClaimTimeoutSeconds}

	script, err := closure.Script()
	require.NoError(t, err)

	ok, decoded, err := DecodeCSVClosure(script)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, closure.Seconds, decoded.Seconds)

	rebuilt, err := decoded.Script()
	require.NoError(t, err)
	require.Equal(t, script, rebuilt)
}

func TestCSVClosureRejectsTamperedTimelock(t *testing.T) {
	closure := &CSVClosure{OwnerPubKey: mustKey(t), Seconds: ClaimTimeoutSeconds}
	script, err := closure.Script()
	require.NoError(t, err)

	tampered := append([]byte{}, script...)
	// clear the time-based type flag in the sequence push's top byte
	tampered[3] ^= 0x40

	ok, _, _ := DecodeCSVClosure(tampered)
	require.False(t, ok)
}
