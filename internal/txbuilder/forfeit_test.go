package txbuilder_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/txbuilder"
)

// readTxWitness decodes the psbt.WriteTxWitness encoding
// FinalizeForfeitInput1 writes into FinalScriptWitness, mirroring the
// teacher's own ReadTxWitness helper.
func readTxWitness(t *testing.T, serialized []byte) wire.TxWitness {
	t.Helper()
	r := bytes.NewReader(serialized)

	witCount, err := wire.ReadVarInt(r, 0)
	require.NoError(t, err)

	witness := make(wire.TxWitness, witCount)
	for i := range witness {
		witness[i], err = wire.ReadVarBytes(r, 0, txscript.MaxScriptSize, "witness")
		require.NoError(t, err)
	}
	return witness
}

func buildForfeitFixture(t *testing.T) (*covenant.RedeemTaprootTree, txbuilder.ConnectorInput, txbuilder.RedeemInput) {
	t.Helper()
	owner := mustKey(t)
	asp := mustKey(t)

	redeemTree, err := covenant.BuildRedeemTree(owner, asp, covenant.RedeemTimeoutSeconds)
	require.NoError(t, err)

	connector := txbuilder.ConnectorInput{
		TxID: "3333333333333333333333333333333333333333333333333333333333333333", Index: 2, Value: 400, Asset: testAsset, Script: []byte{0x00, 0x14},
	}
	redeem := txbuilder.RedeemInput{
		TxID: "4444444444444444444444444444444444444444444444444444444444444444", Index: 1, Value: 50_000, Asset: testAsset, Script: redeemTree.OutputScript,
	}
	return redeemTree, connector, redeem
}

func TestBuildForfeitTxOutputArithmetic(t *testing.T) {
	redeemTree, connector, redeem := buildForfeitFixture(t)
	aspChangeScript := []byte{0x00, 0x14, 0x01}

	pset, err := txbuilder.BuildForfeitTx(connector, redeem, redeemTree.ForfeitProof, aspChangeScript)
	require.NoError(t, err)

	require.Len(t, pset.Outputs, 2)
	require.Equal(t, connector.Value+redeem.Value-500, pset.Outputs[0].Value)
	require.Equal(t, uint64(500), pset.Outputs[1].Value)
	require.Equal(t, aspChangeScript, pset.Outputs[0].Script)
}

func TestBuildForfeitTxHasTwoInputs(t *testing.T) {
	redeemTree, connector, redeem := buildForfeitFixture(t)

	pset, err := txbuilder.BuildForfeitTx(connector, redeem, redeemTree.ForfeitProof, []byte{0x00, 0x14})
	require.NoError(t, err)

	require.Len(t, pset.Inputs, 2)
}

func TestFinalizeForfeitInput1WitnessOrdering(t *testing.T) {
	redeemTree, connector, redeem := buildForfeitFixture(t)
	pset, err := txbuilder.BuildForfeitTx(connector, redeem, redeemTree.ForfeitProof, []byte{0x00, 0x14})
	require.NoError(t, err)

	msg := covenant.ForfeitMessage{
		VUtxoTxID:        [32]byte{1, 2, 3},
		VUtxoIndex:       7,
		PromisedPoolTxID: [32]byte{4, 5, 6},
	}
	aspSig := make([]byte, 64)
	userSig := make([]byte, 64)
	for i := range aspSig {
		aspSig[i] = 0xaa
		userSig[i] = 0xbb
	}

	err = txbuilder.FinalizeForfeitInput1(pset, redeemTree.ForfeitClosure, redeemTree.ForfeitProof, msg, aspSig, userSig)
	require.NoError(t, err)

	witness := readTxWitness(t, pset.Inputs[1].FinalScriptWitness)
	require.Len(t, witness, 6)
	require.Equal(t, aspSig, []byte(witness[0]))
	require.Equal(t, userSig, []byte(witness[1]))
	require.Equal(t, redeemTree.ForfeitProof.Script, []byte(witness[4]))
	require.Equal(t, redeemTree.ForfeitProof.ControlBlock, []byte(witness[5]))
}
