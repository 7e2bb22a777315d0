package txbuilder

import (
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
)

// ContinuationOutput is an extra output the caller supplies (and funds
// separately) for the remaining stakeholders of the spent shared output.
// When present, makeRedeemTransaction prepends it ahead of the redeem
// output; it is not derived from the spent FrozenReceiver leaf.
type ContinuationOutput struct {
	Value  uint64
	Script []byte
}

// RedeemResult is makeRedeemTransaction's output: the unsigned PSET
// and the output index the FrozenReceiver witness must target.
type RedeemResult struct {
	Pset        *psetv2.Pset
	OutputIndex uint32
}

// MakeRedeemTransaction builds the PSET a user broadcasts to
// unilaterally exit vUtxo via its FrozenReceiver redeem leaf. If
// continuation is non-nil, it is prepended as output 0 and the redeem
// output becomes output 1; otherwise the redeem output is output 0.
func MakeRedeemTransaction(
	vUtxo domain.VirtualUtxo,
	redeemLeaf *covenant.LeafProof,
	redeemTree *covenant.RedeemTaprootTree,
	asset string,
	continuation *ContinuationOutput,
) (*RedeemResult, error) {
	pset, err := psetv2.New(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	updater, err := psetv2.NewUpdater(pset)
	if err != nil {
		return nil, err
	}

	if err := updater.AddInputs([]psetv2.InputArgs{
		{Txid: vUtxo.TxID, TxIndex: vUtxo.Index},
	}); err != nil {
		return nil, err
	}
	utxo, err := witnessUtxo(vUtxo.WitnessUtxo.Asset, vUtxo.WitnessUtxo.Value, vUtxo.WitnessUtxo.Script)
	if err != nil {
		return nil, err
	}
	if err := updater.AddInWitnessUtxo(0, utxo); err != nil {
		return nil, err
	}
	if err := addTapLeafScript(updater, 0, redeemLeaf); err != nil {
		return nil, err
	}

	outputs := make([]psetv2.OutputArgs, 0, 2)
	var redeemIndex uint32
	if continuation != nil {
		outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: continuation.Value, Script: continuation.Script})
		redeemIndex = 1
	}
	outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: vUtxo.WitnessUtxo.Value, Script: redeemTree.OutputScript})

	if err := updater.AddOutputs(outputs); err != nil {
		return nil, err
	}

	return &RedeemResult{Pset: pset, OutputIndex: redeemIndex}, nil
}

// FinalizeRedeemWitness builds input 0's witness from the
// FrozenReceiver finalizer, followed by the leaf script and control
// block, and returns it with pset. pset is returned unchanged; the
// witness is not attached to it.
func FinalizeRedeemWitness(pset *psetv2.Pset, outputIndex uint32, ownerSig []byte, redeemLeaf *covenant.LeafProof) (*psetv2.Pset, [][]byte, error) {
	witness := covenant.FrozenReceiverWitness(outputIndex, ownerSig)
	witness = append(witness, redeemLeaf.Script, redeemLeaf.ControlBlock)
	return pset, witness, nil
}
