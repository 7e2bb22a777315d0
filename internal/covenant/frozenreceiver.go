package covenant

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/taproot"
)

// FrozenReceiverClosure is the vUTXO redeemLeaf: an introspection-based
// covenant forcing input 0 to be forwarded, value and asset preserved,
// to exactly one SegWit v1 output whose witness program is
// WitnessProgram.
type FrozenReceiverClosure struct {
	OwnerPubKey    *secp256k1.PublicKey
	WitnessProgram [32]byte
}

// Script compiles the leaf. The witness supplies the target output
// index once on the stack; the script duplicates it for the asset check,
// the value check, and the scriptpubkey check, comparing the named
// output against input 0's own introspected asset and value (forcing
// the forward) and against the expected witness program.
func (f *FrozenReceiverClosure) Script() ([]byte, error) {
	ownerKey := schnorr.SerializePubKey(f.OwnerPubKey)

	b := txscript.NewScriptBuilder()
	b.AddData(ownerKey).AddOp(txscript.OP_CHECKSIGVERIFY)

	// asset: output[idx].asset+prefix == input[current].asset+prefix
	b.AddOp(txscript.OP_DUP).AddOp(OP_INSPECTOUTPUTASSET)
	b.AddOp(txscript.OP_SWAP).AddOp(txscript.OP_CAT)
	b.AddOp(OP_PUSHCURRENTINPUTINDEX).AddOp(OP_INSPECTINPUTASSET)
	b.AddOp(txscript.OP_SWAP).AddOp(txscript.OP_CAT)
	b.AddOp(txscript.OP_EQUALVERIFY)

	// value: output[idx].value+prefix == input[current].value+prefix
	b.AddOp(txscript.OP_DUP).AddOp(OP_INSPECTOUTPUTVALUE)
	b.AddOp(txscript.OP_SWAP).AddOp(txscript.OP_CAT)
	b.AddOp(OP_PUSHCURRENTINPUTINDEX).AddOp(OP_INSPECTINPUTVALUE)
	b.AddOp(txscript.OP_SWAP).AddOp(txscript.OP_CAT)
	b.AddOp(txscript.OP_EQUALVERIFY)

	// scriptpubkey: output[idx] is witness v1 with the expected program
	b.AddOp(txscript.OP_DUP).AddOp(OP_INSPECTOUTPUTSCRIPTPUBKEY)
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(f.WitnessProgram[:]).AddOp(txscript.OP_EQUALVERIFY)

	b.AddOp(txscript.OP_DROP).AddOp(txscript.OP_1)

	return b.Script()
}

// Leaf wraps Script into a Taproot script leaf.
func (f *FrozenReceiverClosure) Leaf() (*taproot.TapElementsLeaf, error) {
	script, err := f.Script()
	if err != nil {
		return nil, err
	}
	leaf := taproot.NewBaseTapElementsLeaf(script)
	return &leaf, nil
}

// FrozenReceiverWitness builds the finalized witness for the
// FrozenReceiver spend: outputIndex encoded as a minimal script number
// (empty bytes for index 0), followed by the owner's tap-script
// signature.
func FrozenReceiverWitness(outputIndex uint32, ownerSig []byte) [][]byte {
	return [][]byte{minimalScriptNum(outputIndex), ownerSig}
}

// minimalScriptNum encodes n using the minimal little-endian CScriptNum
// representation used for data pushes: zero is the empty byte string,
// and the high bit of the last byte is reserved for sign, so a value
// whose top byte would otherwise look negative gets a trailing 0x00.
func minimalScriptNum(n uint32) []byte {
	if n == 0 {
		return []byte{}
	}
	v := uint64(n)
	result := make([]byte, 0, 5)
	for v > 0 {
		result = append(result, byte(v&0xff))
		v >>= 8
	}
	if result[len(result)-1]&0x80 != 0 {
		result = append(result, 0x00)
	}
	return result
}

// DecodeFrozenReceiverClosure strictly decodes script, rejecting any
// deviation by rebuilding from the decoded fields and comparing bytes.
func DecodeFrozenReceiverClosure(script []byte) (bool, *FrozenReceiverClosure, error) {
	if len(script) < 34 {
		return false, nil, nil
	}
	if script[0] != txscript.OP_DATA_32 {
		return false, nil, nil
	}
	ownerKeyBytes := script[1:33]
	if script[33] != txscript.OP_CHECKSIGVERIFY {
		return false, nil, nil
	}

	if len(script) < 3+33 {
		return false, nil, nil
	}
	tail := script[len(script)-3:]
	if tail[0] != txscript.OP_EQUALVERIFY || tail[1] != txscript.OP_DROP || tail[2] != txscript.OP_1 {
		return false, nil, nil
	}

	progPush := script[len(script)-3-33 : len(script)-3]
	if progPush[0] != txscript.OP_DATA_32 {
		return false, nil, nil
	}

	ownerKey, err := schnorr.ParsePubKey(ownerKeyBytes)
	if err != nil {
		return false, nil, err
	}

	var program [32]byte
	copy(program[:], progPush[1:])

	closure := &FrozenReceiverClosure{OwnerPubKey: ownerKey, WitnessProgram: program}
	rebuilt, err := closure.Script()
	if err != nil {
		return false, nil, err
	}
	if !bytes.Equal(rebuilt, script) {
		return false, nil, nil
	}

	return true, closure, nil
}
