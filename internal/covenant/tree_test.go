package covenant

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-elements/taproot"
)

func TestBuildRedeemTreeProducesTwoLeafProofs(t *testing.T) {
	owner := mustKey(t)
	provider := mustKey(t)

	tree, err := BuildRedeemTree(owner, provider, RedeemTimeoutSeconds)
	require.NoError(t, err)
	require.NotNil(t, tree.ClaimProof)
	require.NotNil(t, tree.ForfeitProof)
	require.Len(t, tree.OutputScript, 34)
	require.Equal(t, byte(txscript.OP_1), tree.OutputScript[0])

	verifyControlBlock(t, tree.ClaimProof, tree.OutputScript)
	verifyControlBlock(t, tree.ForfeitProof, tree.OutputScript)
}

func TestBuildRedeemTreeDeterministic(t *testing.T) {
	owner := mustKey(t)
	provider := mustKey(t)

	first, err := BuildRedeemTree(owner, provider, RedeemTimeoutSeconds)
	require.NoError(t, err)
	second, err := BuildRedeemTree(owner, provider, RedeemTimeoutSeconds)
	require.NoError(t, err)

	require.Equal(t, first.OutputScript, second.OutputScript)
}

func TestBuildVirtualUtxoTreeRejectsEmptyStakeholders(t *testing.T) {
	_, err := BuildVirtualUtxoTree(mustKey(t), nil, ClaimTimeoutSeconds)
	require.Error(t, err)
}

func TestBuildVirtualUtxoTreeCoversAllStakeholders(t *testing.T) {
	asp := mustKey(t)
	stakeholders := make([]Stakeholder, 0, 3)
	amounts := []uint64{1000, 5000, 250}
	for _, amount := range amounts {
		var program [32]byte
		program[0] = byte(amount)
		stakeholders = append(stakeholders, Stakeholder{
			Amount:  amount,
			Closure: &FrozenReceiverClosure{OwnerPubKey: mustKey(t), WitnessProgram: program},
		})
	}

	tree, err := BuildVirtualUtxoTree(asp, stakeholders, ClaimTimeoutSeconds)
	require.NoError(t, err)
	require.Len(t, tree.StakeholderProofs, len(stakeholders))

	for _, sh := range stakeholders {
		key := fmt.Sprintf("%x", schnorr.SerializePubKey(sh.Closure.OwnerPubKey))
		proof, ok := tree.StakeholderProofs[key]
		require.True(t, ok)
		verifyControlBlock(t, proof, tree.OutputScript)
	}
	verifyControlBlock(t, tree.ClaimProof, tree.OutputScript)
}

func verifyControlBlock(t *testing.T, proof *LeafProof, outputScript []byte) {
	t.Helper()
	require.NotEmpty(t, proof.Script)
	require.NotEmpty(t, proof.ControlBlock)

	controlBlock, err := taproot.ParseControlBlock(proof.ControlBlock)
	require.NoError(t, err)

	computedRoot := controlBlock.RootHash(proof.Script)
	taprootKey := taproot.ComputeTaprootOutputKey(controlBlock.InternalKey, computedRoot)
	expected, err := taprootOutputScript(taprootKey)
	require.NoError(t, err)
	require.Equal(t, outputScript, expected)
}
