package covenant

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func mustForfeitMessage(t *testing.T, seed byte) ForfeitMessage {
	t.Helper()
	var txid, promised [32]byte
	for i := range txid {
		txid[i] = seed + byte(i)
	}
	for i := range promised {
		promised[i] = seed + byte(i) + 1
	}
	return ForfeitMessage{VUtxoTxID: txid, VUtxoIndex: uint32(seed), PromisedPoolTxID: promised}
}

func TestHashForfeitMessageInjective(t *testing.T) {
	base := mustForfeitMessage(t, 1)
	baseHash := HashForfeitMessage(base)

	byIndex := base
	byIndex.VUtxoIndex++
	require.NotEqual(t, baseHash, HashForfeitMessage(byIndex))

	byTxID := base
	byTxID.VUtxoTxID[0] ^= 0xff
	require.NotEqual(t, baseHash, HashForfeitMessage(byTxID))

	byPromised := base
	byPromised.PromisedPoolTxID[0] ^= 0xff
	require.NotEqual(t, baseHash, HashForfeitMessage(byPromised))
}

func TestSignAndVerifyForfeitMessage(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	msg := mustForfeitMessage(t, 7)
	sig, err := SignForfeitMessage(priv, msg)
	require.NoError(t, err)

	ok, err := VerifyForfeitMessageSignature(priv.PubKey(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	tampered := msg
	tampered.VUtxoIndex++
	ok, err = VerifyForfeitMessageSignature(priv.PubKey(), tampered, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForfeitClosureRoundTrip(t *testing.T) {
	closure := &ForfeitClosure{OwnerPubKey: mustKey(t), ProviderPubKey: mustKey(t)}

	script, err := closure.Script()
	require.NoError(t, err)

	ok, decoded, err := DecodeForfeitClosure(script)
	require.NoError(t, err)
	require.True(t, ok)

	rebuilt, err := decoded.Script()
	require.NoError(t, err)
	require.Equal(t, script, rebuilt)
}

func TestForfeitClosureRejectsMismatchedProviderKey(t *testing.T) {
	closure := &ForfeitClosure{OwnerPubKey: mustKey(t), ProviderPubKey: mustKey(t)}
	script, err := closure.Script()
	require.NoError(t, err)

	other := &ForfeitClosure{OwnerPubKey: closure.OwnerPubKey, ProviderPubKey: mustKey(t)}
	otherScript, err := other.Script()
	require.NoError(t, err)

	require.NotEqual(t, script, otherScript)
}

func TestForfeitWitnessOrdering(t *testing.T) {
	closure := &ForfeitClosure{OwnerPubKey: mustKey(t), ProviderPubKey: mustKey(t)}
	msg := mustForfeitMessage(t, 3)
	witness := closure.Witness(msg, []byte("aspsig"), []byte("usersig"))
	require.Len(t, witness, 4)
	require.Equal(t, []byte("aspsig"), witness[0])
	require.Equal(t, []byte("usersig"), witness[1])
	require.Equal(t, reversed(msg.PromisedPoolTxID), witness[3])
}
