// Package txbuilder assembles the Elements PSETs this protocol moves
// coins through: lift, pool, redeem, and forfeit transactions.
package txbuilder

import (
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/psetv2"
	"github.com/vulpemventures/go-elements/taproot"
	"github.com/vulpemventures/go-elements/transaction"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
)

// DustValue is the value every connector output carries.
const DustValue = 400

func witnessUtxo(asset string, value uint64, script []byte) (*transaction.TxOutput, error) {
	assetBytes, err := elementsutil.AssetHashToBytes(asset)
	if err != nil {
		return nil, err
	}
	valueBytes, err := elementsutil.ValueToBytes(value)
	if err != nil {
		return nil, err
	}
	return transaction.NewTxOutput(assetBytes, valueBytes, script), nil
}

// FinalizeAndExtractHex runs psetv2's generic finalizer over every
// input that isn't already carrying a hand-attached final witness,
// then extracts and hex-encodes the resulting transaction. Inputs a
// caller finalized by hand (see FinalizeForfeitInput1) are left as-is;
// FinalizeAll only acts on inputs still missing a final witness.
func FinalizeAndExtractHex(pset *psetv2.Pset) (string, error) {
	if err := psetv2.FinalizeAll(pset); err != nil {
		return "", err
	}
	extracted, err := psetv2.Extract(pset)
	if err != nil {
		return "", err
	}
	return extracted.ToHex()
}

// addTapLeafScript attaches the leaf script and control block of proof
// to inputIndex, using the same H_POINT internal key every taproot
// output in this protocol is keyed by.
func addTapLeafScript(updater *psetv2.Updater, inputIndex int, proof *covenant.LeafProof) error {
	controlBlock, err := taproot.ParseControlBlock(proof.ControlBlock)
	if err != nil {
		return err
	}
	tapLeaf := psetv2.TapLeafScript{
		TapElementsLeaf: taproot.NewBaseTapElementsLeaf(proof.Script),
		ControlBlock:    *controlBlock,
	}
	return updater.AddInTapLeafScript(inputIndex, tapLeaf)
}
