package covenant

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/taproot"
)

// CSVClosure is the ASP-claim and user-redeem-claim leaf:
//
//	<timeoutBIP68> CSV DROP <ownerPubKeyX> CHECKSIG
//
// Used for both the 30-day ASP claim leaf and the 15-day user redeem
// claim leaf; only the owner key and the timeout value differ.
type CSVClosure struct {
	OwnerPubKey *secp256k1.PublicKey
	Seconds     uint
}

// Script compiles the leaf's opcode sequence.
func (c *CSVClosure) Script() ([]byte, error) {
	sequence, err := BIP68Encode(c.Seconds)
	if err != nil {
		return nil, err
	}

	ownerKey := schnorr.SerializePubKey(c.OwnerPubKey)

	return txscript.NewScriptBuilder().
		AddData(sequence).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(ownerKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// Leaf wraps Script into a Taproot script leaf.
func (c *CSVClosure) Leaf() (*taproot.TapElementsLeaf, error) {
	script, err := c.Script()
	if err != nil {
		return nil, err
	}
	leaf := taproot.NewBaseTapElementsLeaf(script)
	return &leaf, nil
}

// Witness builds the claim witness stack: just the owner's tap-script
// signature, since CHECKSIG reads its key from the script itself.
func (c *CSVClosure) Witness(ownerSig []byte) [][]byte {
	return [][]byte{ownerSig}
}

// DecodeCSVClosure strictly decodes script into a CSVClosure, rejecting
// any deviation from the canonical opcode sequence by rebuilding the
// script from the decoded fields and comparing bytes.
func DecodeCSVClosure(script []byte) (bool, *CSVClosure, error) {
	csvIndex := bytes.Index(
		script, []byte{txscript.OP_CHECKSEQUENCEVERIFY, txscript.OP_DROP},
	)
	if csvIndex <= 0 {
		return false, nil, nil
	}

	sequence := script[1:csvIndex]
	seconds, err := BIP68Decode(sequence)
	if err != nil {
		return false, nil, nil
	}

	checksigScript := script[csvIndex+2:]
	pubkey, ok, err := decodeBareChecksig(checksigScript)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	closure := &CSVClosure{OwnerPubKey: pubkey, Seconds: seconds}
	rebuilt, err := closure.Script()
	if err != nil {
		return false, nil, err
	}
	if !bytes.Equal(rebuilt, script) {
		return false, nil, nil
	}

	return true, closure, nil
}

// decodeBareChecksig decodes `<pubkeyX> CHECKSIG`.
func decodeBareChecksig(script []byte) (*secp256k1.PublicKey, bool, error) {
	if len(script) != 34 {
		return nil, false, nil
	}
	if script[0] != txscript.OP_DATA_32 {
		return nil, false, nil
	}
	if script[33] != txscript.OP_CHECKSIG {
		return nil, false, nil
	}
	pubkey, err := schnorr.ParsePubKey(script[1:33])
	if err != nil {
		return nil, false, err
	}
	return pubkey, true, nil
}
