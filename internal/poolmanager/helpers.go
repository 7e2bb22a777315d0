package poolmanager

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/txbuilder"
)

// senderRedeemScriptPubKeyHex recovers the redeem tree output script a
// transfer's sender owns unilaterally, the key PendingPool.ToForfeit is
// indexed by.
func senderRedeemScriptPubKeyHex(transfer domain.VirtualTransfer, aspPubKey *secp256k1.PublicKey, redeemTimeoutSeconds uint) (string, error) {
	ok, closure, err := covenant.DecodeFrozenReceiverClosure(transfer.RedeemLeaf.Script)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("poolmanager: redeem leaf does not decode to a FrozenReceiver closure")
	}
	redeemTree, err := covenant.BuildRedeemTree(closure.OwnerPubKey, aspPubKey, redeemTimeoutSeconds)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", redeemTree.OutputScript), nil
}

func decodePset(psetB64 string) (*psetv2.Pset, error) {
	return psetv2.NewPsetFromBase64(psetB64)
}

func unsignedTxID(psetB64 string) (string, error) {
	pset, err := decodePset(psetB64)
	if err != nil {
		return "", err
	}
	utx, err := pset.UnsignedTx()
	if err != nil {
		return "", err
	}
	return utx.TxHash().String(), nil
}

func finalizedHex(pset *psetv2.Pset) (string, error) {
	return txbuilder.FinalizeAndExtractHex(pset)
}

func txidBytes(txidHex string) [32]byte {
	var out [32]byte
	b, err := hex.DecodeString(txidHex)
	if err != nil || len(b) != 32 {
		return out
	}
	copy(out[:], b)
	return out
}

// buildExtendedVUtxo reconstructs the domain.ExtendedVirtualUtxo a
// stakeholder of a freshly built pool transaction now owns: its vUTXO
// (index 0, the shared covenant output), the two leaves proving its
// membership in that output's tree, and its own per-user redeem tree.
func buildExtendedVUtxo(
	result *txbuilder.PoolResult,
	promisedPoolTxID string,
	ownerKeyHex string,
	ownerPubKeyBytes [33]byte,
	aspPubKey *secp256k1.PublicKey,
	redeemTimeoutSeconds uint,
	asset string,
) (domain.ExtendedVirtualUtxo, error) {
	stakeholder, ok := result.Stakeholders[ownerKeyHex]
	if !ok {
		return domain.ExtendedVirtualUtxo{}, fmt.Errorf("poolmanager: stakeholder %s not found in pool result", ownerKeyHex)
	}

	proof, ok := result.VUtxoTree.StakeholderProofs[ownerKeyHex]
	if !ok {
		return domain.ExtendedVirtualUtxo{}, fmt.Errorf("poolmanager: no leaf proof for stakeholder %s", ownerKeyHex)
	}

	ownerPubKey, err := secp256k1.ParsePubKey(ownerPubKeyBytes[:])
	if err != nil {
		return domain.ExtendedVirtualUtxo{}, err
	}

	redeemTree, err := covenant.BuildRedeemTree(ownerPubKey, aspPubKey, redeemTimeoutSeconds)
	if err != nil {
		return domain.ExtendedVirtualUtxo{}, err
	}

	vUtxo := domain.VirtualUtxo{
		TxID:           promisedPoolTxID,
		Index:          0,
		TapInternalKey: [32]byte(func() [32]byte { var k [32]byte; copy(k[:], covenant.XHPoint()); return k }()),
		WitnessUtxo: domain.WitnessUtxo{
			Asset:  asset,
			Value:  stakeholder.Amount,
			Script: result.VUtxoTree.OutputScript,
		},
	}

	return domain.ExtendedVirtualUtxo{
		VUtxo: vUtxo,
		VUtxoTree: domain.VirtualUtxoTaprootTree{
			OutputScript: result.VUtxoTree.OutputScript,
			ClaimLeaf:    domain.LeafProof{Script: result.VUtxoTree.ClaimProof.Script, ControlBlock: result.VUtxoTree.ClaimProof.ControlBlock},
			RedeemLeaf:   domain.LeafProof{Script: proof.Script, ControlBlock: proof.ControlBlock},
		},
		RedeemTree: domain.RedeemTaprootTree{
			OutputScript: redeemTree.OutputScript,
			ClaimLeaf:    domain.LeafProof{Script: redeemTree.ClaimProof.Script, ControlBlock: redeemTree.ClaimProof.ControlBlock},
			ForfeitLeaf:  domain.LeafProof{Script: redeemTree.ForfeitProof.Script, ControlBlock: redeemTree.ForfeitProof.ControlBlock},
		},
	}, nil
}
