package domain

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/taproot"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
)

// Validate checks an ExtendedVirtualUtxo the way §4.5.1 describes:
// every leaf must decompile to the expected closure shape and the two
// taproot trees must be mutually consistent. Any mismatch is a
// ValidationError; nothing here is retried by the caller.
func Validate(evu ExtendedVirtualUtxo, aspPubKey *secp256k1.PublicKey) error {
	if !bytes.Equal(evu.VUtxo.TapInternalKey[:], covenant.XHPoint()) {
		return ValidationError{Reason: "vUtxo tapInternalKey is not X_H_POINT"}
	}

	ok, claimClosure, err := covenant.DecodeCSVClosure(evu.VUtxoTree.ClaimLeaf.Script)
	if err != nil {
		return ValidationError{Reason: "vUtxoTree claim leaf: " + err.Error()}
	}
	if !ok {
		return ValidationError{Reason: "vUtxoTree claim leaf does not decompile to CSV"}
	}
	if !bytes.Equal(schnorr.SerializePubKey(claimClosure.OwnerPubKey), schnorr.SerializePubKey(aspPubKey)) {
		return ValidationError{Reason: "vUtxoTree claim leaf owner is not the ASP key"}
	}

	ok, redeemClaimClosure, err := covenant.DecodeCSVClosure(evu.RedeemTree.ClaimLeaf.Script)
	if err != nil {
		return ValidationError{Reason: "redeemTree claim leaf: " + err.Error()}
	}
	if !ok {
		return ValidationError{Reason: "redeemTree claim leaf does not decompile to CSV"}
	}
	ownerKey := redeemClaimClosure.OwnerPubKey

	ok, forfeitClosure, err := covenant.DecodeForfeitClosure(evu.RedeemTree.ForfeitLeaf.Script)
	if err != nil {
		return ValidationError{Reason: "redeemTree forfeit leaf: " + err.Error()}
	}
	if !ok {
		return ValidationError{Reason: "redeemTree forfeit leaf does not decompile to Forfeit"}
	}
	if !bytes.Equal(schnorr.SerializePubKey(forfeitClosure.OwnerPubKey), schnorr.SerializePubKey(ownerKey)) {
		return ValidationError{Reason: "redeemTree forfeit leaf owner key mismatch"}
	}
	if !bytes.Equal(schnorr.SerializePubKey(forfeitClosure.ProviderPubKey), schnorr.SerializePubKey(aspPubKey)) {
		return ValidationError{Reason: "redeemTree forfeit leaf provider key is not the ASP key"}
	}

	redeemRoot, err := mutualRoot(evu.RedeemTree.ClaimLeaf, evu.RedeemTree.ForfeitLeaf)
	if err != nil {
		return err
	}
	redeemTaprootKey := taproot.ComputeTaprootOutputKey(covenant.HPoint(), redeemRoot)
	redeemWitnessProgram := schnorr.SerializePubKey(redeemTaprootKey)

	ok, redeemLeafClosure, err := covenant.DecodeFrozenReceiverClosure(evu.VUtxoTree.RedeemLeaf.Script)
	if err != nil {
		return ValidationError{Reason: "vUtxoTree redeem leaf: " + err.Error()}
	}
	if !ok {
		return ValidationError{Reason: "vUtxoTree redeem leaf does not decompile to FrozenReceiver"}
	}
	if !bytes.Equal(schnorr.SerializePubKey(redeemLeafClosure.OwnerPubKey), schnorr.SerializePubKey(ownerKey)) {
		return ValidationError{Reason: "vUtxoTree redeem leaf owner key mismatch"}
	}
	if !bytes.Equal(redeemLeafClosure.WitnessProgram[:], redeemWitnessProgram) {
		return ValidationError{Reason: "vUtxoTree redeem leaf witness program does not match redeem tree output"}
	}

	vUtxoRoot, err := mutualRoot(evu.VUtxoTree.ClaimLeaf, evu.VUtxoTree.RedeemLeaf)
	if err != nil {
		return err
	}
	vUtxoTaprootKey := taproot.ComputeTaprootOutputKey(covenant.HPoint(), vUtxoRoot)
	vUtxoScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(schnorr.SerializePubKey(vUtxoTaprootKey)).
		Script()
	if err != nil {
		return err
	}
	if len(evu.VUtxo.WitnessUtxo.Script) < 2 || !bytes.Equal(vUtxoScript, evu.VUtxo.WitnessUtxo.Script) {
		return ValidationError{Reason: "vUtxo witness script does not match vUtxoTree output"}
	}

	return nil
}

// mutualRoot reconstructs the Merkle root from each leaf's control
// block and rejects if the two leaves disagree about it — the two
// control blocks in a tree must always yield the same root.
func mutualRoot(a, b LeafProof) ([]byte, error) {
	blockA, err := taproot.ParseControlBlock(a.ControlBlock)
	if err != nil {
		return nil, ValidationError{Reason: "invalid control block: " + err.Error()}
	}
	blockB, err := taproot.ParseControlBlock(b.ControlBlock)
	if err != nil {
		return nil, ValidationError{Reason: "invalid control block: " + err.Error()}
	}

	rootA := blockA.RootHash(a.Script)
	rootB := blockB.RootHash(b.Script)
	if !bytes.Equal(rootA, rootB) {
		return nil, ValidationError{Reason: "leaf control blocks disagree on Merkle root"}
	}
	return rootA, nil
}
