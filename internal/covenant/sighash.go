package covenant

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vulpemventures/go-elements/psetv2"
)

// TapLeafSighash computes the tap-script signature hash for inputIndex
// of pset, keyed to the leaf identified by leafHash. Elements binds the
// sighash to the network's genesis block hash, unlike Bitcoin, so the
// preimage differs per network even for an identical transaction shape.
func TapLeafSighash(
	genesisBlockHash *chainhash.Hash,
	pset *psetv2.Pset,
	inputIndex int,
	leafHash *chainhash.Hash,
) ([]byte, error) {
	unsignedTx, err := pset.UnsignedTx()
	if err != nil {
		return nil, err
	}

	prevoutScripts := make([][]byte, 0, len(pset.Inputs))
	prevoutAssets := make([][]byte, 0, len(pset.Inputs))
	prevoutValues := make([][]byte, 0, len(pset.Inputs))
	for _, in := range pset.Inputs {
		if in.WitnessUtxo == nil {
			return nil, errMissingWitnessUtxo{}
		}
		prevoutScripts = append(prevoutScripts, in.WitnessUtxo.Script)
		prevoutAssets = append(prevoutAssets, in.WitnessUtxo.Asset)
		prevoutValues = append(prevoutValues, in.WitnessUtxo.Value)
	}

	hashForSig := unsignedTx.HashForWitnessV1(
		inputIndex,
		prevoutScripts,
		prevoutAssets,
		prevoutValues,
		pset.Inputs[inputIndex].SigHashType,
		genesisBlockHash,
		leafHash,
		nil,
	)
	return hashForSig[:], nil
}

type errMissingWitnessUtxo struct{}

func (errMissingWitnessUtxo) Error() string {
	return "covenant: pset input is missing its witness utxo"
}
