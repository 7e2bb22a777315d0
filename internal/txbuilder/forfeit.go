package txbuilder

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
)

// forfeitFeeValue is the miner fee §4.6 step b carves out of the
// forfeit tx's combined connector+redeem value.
const forfeitFeeValue = 500

// ConnectorInput is the connector output PoolWatcher is about to
// spend as input 0 of a forfeit tx.
type ConnectorInput struct {
	TxID   string
	Index  uint32
	Value  uint64
	Asset  string
	Script []byte
}

// RedeemInput is the user's redeemed output, about to be spent via
// its forfeit leaf as input 1 of a forfeit tx.
type RedeemInput struct {
	TxID   string
	Index  uint32
	Value  uint64
	Asset  string
	Script []byte
}

// BuildForfeitTx assembles the two-input forfeit PSET described in
// §4.6 step b: input 0 spends the promised pool's next connector
// under SIGHASH_ALL, input 1 spends the redeemed output's forfeit
// leaf under SIGHASH_DEFAULT. The caller still owes: the wallet's
// signature on input 0, and the forfeit leaf's witness on input 1.
func BuildForfeitTx(connector ConnectorInput, redeem RedeemInput, forfeitProof *covenant.LeafProof, aspChangeScript []byte) (*psetv2.Pset, error) {
	pset, err := psetv2.New(nil, nil, nil)
	if err != nil {
		return nil, err
	}

	updater, err := psetv2.NewUpdater(pset)
	if err != nil {
		return nil, err
	}

	if err := updater.AddInputs([]psetv2.InputArgs{
		{Txid: connector.TxID, TxIndex: connector.Index},
		{Txid: redeem.TxID, TxIndex: redeem.Index},
	}); err != nil {
		return nil, err
	}

	connectorUtxo, err := witnessUtxo(connector.Asset, connector.Value, connector.Script)
	if err != nil {
		return nil, err
	}
	if err := updater.AddInWitnessUtxo(0, connectorUtxo); err != nil {
		return nil, err
	}
	if err := updater.AddInSighashType(0, txscript.SigHashAll); err != nil {
		return nil, err
	}

	redeemUtxo, err := witnessUtxo(redeem.Asset, redeem.Value, redeem.Script)
	if err != nil {
		return nil, err
	}
	if err := updater.AddInWitnessUtxo(1, redeemUtxo); err != nil {
		return nil, err
	}
	if err := updater.AddInSighashType(1, txscript.SigHashDefault); err != nil {
		return nil, err
	}
	if err := addTapLeafScript(updater, 1, forfeitProof); err != nil {
		return nil, err
	}

	mainValue := connector.Value + redeem.Value - forfeitFeeValue
	if err := updater.AddOutputs([]psetv2.OutputArgs{
		{Asset: redeem.Asset, Amount: mainValue, Script: aspChangeScript},
		{Asset: redeem.Asset, Amount: forfeitFeeValue},
	}); err != nil {
		return nil, err
	}

	return pset, nil
}

// FinalizeForfeitInput1 writes input 1's forfeit-leaf witness directly
// into the PSET as a final script witness, the same way covenantless
// leaf witnesses get attached to inputs psetv2's generic finalizer
// cannot satisfy on its own. Input 0 is left for the caller's wallet
// to sign; psetv2.FinalizeAll skips inputs that already carry a final
// witness, so the usual wallet.Sign -> FinalizeAll -> Extract pipeline
// still produces a fully witnessed transaction once both steps ran.
func FinalizeForfeitInput1(pset *psetv2.Pset, closure *covenant.ForfeitClosure, forfeitProof *covenant.LeafProof, msg covenant.ForfeitMessage, aspSig, userSig []byte) error {
	witness := closure.Witness(msg, aspSig, userSig)
	witness = append(witness, forfeitProof.Script, forfeitProof.ControlBlock)

	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, witness); err != nil {
		return err
	}
	pset.Inputs[1].FinalScriptWitness = buf.Bytes()
	return nil
}
