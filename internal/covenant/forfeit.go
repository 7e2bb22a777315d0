package covenant

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/taproot"
)

// ForfeitMessage binds a sender's vUTXO to the pool that promised to
// supersede it. Serialization and digest follow §3: canonical bytes are
// reverse(VUtxoTxID) || u32_le(VUtxoIndex) || reverse(PromisedPoolTxID),
// and the canonical digest is SHA256 of that buffer.
type ForfeitMessage struct {
	VUtxoTxID        [32]byte
	VUtxoIndex       uint32
	PromisedPoolTxID [32]byte
}

func reversed(b [32]byte) []byte {
	out := make([]byte, 32)
	for i := range b {
		out[i] = b[31-i]
	}
	return out
}

// Serialize returns the canonical wire bytes of the message.
func (m ForfeitMessage) Serialize() []byte {
	buf := make([]byte, 0, 68)
	buf = append(buf, reversed(m.VUtxoTxID)...)
	idx := make([]byte, 4)
	binary.LittleEndian.PutUint32(idx, m.VUtxoIndex)
	buf = append(buf, idx...)
	buf = append(buf, reversed(m.PromisedPoolTxID)...)
	return buf
}

// HashForfeitMessage computes the canonical, deterministic digest a
// sender and the ASP both sign over.
func HashForfeitMessage(msg ForfeitMessage) [32]byte {
	return sha256.Sum256(msg.Serialize())
}

// SignForfeitMessage produces a BIP-340 Schnorr signature over the
// canonical forfeit-message digest with empty auxiliary randomness.
func SignForfeitMessage(priv *secp256k1.PrivateKey, msg ForfeitMessage) ([]byte, error) {
	digest := HashForfeitMessage(msg)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifyForfeitMessageSignature verifies a BIP-340 signature over the
// canonical forfeit-message digest under pub.
func VerifyForfeitMessageSignature(pub *secp256k1.PublicKey, msg ForfeitMessage, sig []byte) (bool, error) {
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, err
	}
	digest := HashForfeitMessage(msg)
	return parsed.Verify(digest[:], pub), nil
}

// ForfeitClosure is the forfeit leaf of the redeem tree: an ASP-plus-user
// joint spend whose validity is tied to a promised pool txid rather than
// to the spending transaction's sighash. Both signatures are taken over
// the same CHECKSIGFROMSTACK message, which itself commits to the
// outpoint being spent and the promised pool txid; a final introspection
// check then requires that input 0 of the forfeit transaction actually
// spends that promised pool txid.
type ForfeitClosure struct {
	OwnerPubKey    *secp256k1.PublicKey
	ProviderPubKey *secp256k1.PublicKey
}

// Script compiles the leaf. Witness stack at spend, bottom to top:
// aspSig, userSig, outpointBytes, promisedTxIdReversed.
func (f *ForfeitClosure) Script() ([]byte, error) {
	ownerKey := schnorr.SerializePubKey(f.OwnerPubKey)
	providerKey := schnorr.SerializePubKey(f.ProviderPubKey)

	b := txscript.NewScriptBuilder()

	// hash = SHA256(outpointBytes || promisedTxIdReversed), computed
	// non-destructively so both original items survive for reuse.
	computeHash := func() {
		b.AddOp(txscript.OP_2DUP).AddOp(txscript.OP_CAT).AddOp(txscript.OP_SHA256)
	}

	// verify user signature over the freshly computed hash
	computeHash()
	b.AddOp(txscript.OP_3).AddOp(txscript.OP_PICK) // copy userSig (depth 3) to top
	b.AddOp(txscript.OP_SWAP)
	b.AddData(ownerKey)
	b.AddOp(OP_CHECKSIGFROMSTACK).AddOp(txscript.OP_VERIFY)

	// verify ASP signature over the same hash, recomputed fresh
	computeHash()
	b.AddOp(txscript.OP_4).AddOp(txscript.OP_PICK) // copy aspSig (depth 4) to top
	b.AddOp(txscript.OP_SWAP)
	b.AddData(providerKey)
	b.AddOp(OP_CHECKSIGFROMSTACK).AddOp(txscript.OP_VERIFY)

	// both signatures check out; keep only promisedTxIdReversed
	b.AddOp(txscript.OP_TOALTSTACK)
	b.AddOp(txscript.OP_2DROP)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_FROMALTSTACK)

	// input 0's outpoint txid must equal the promised pool txid. The
	// introspection pushes [txid, vout, flag] (flag/vout on top); drop
	// the top two to leave txid alongside promised.
	b.AddOp(txscript.OP_0).AddOp(OP_INSPECTINPUTOUTPOINT)
	b.AddOp(txscript.OP_2DROP)
	b.AddOp(txscript.OP_EQUAL)

	return b.Script()
}

// Leaf wraps Script into a Taproot script leaf.
func (f *ForfeitClosure) Leaf() (*taproot.TapElementsLeaf, error) {
	script, err := f.Script()
	if err != nil {
		return nil, err
	}
	leaf := taproot.NewBaseTapElementsLeaf(script)
	return &leaf, nil
}

// Witness builds the 4-element witness prefix for the forfeit spend.
// The caller appends the leaf script and control block themselves, the
// way every other taproot spend in this package does.
func (f *ForfeitClosure) Witness(msg ForfeitMessage, aspSig, userSig []byte) [][]byte {
	outpoint := append(reversed(msg.VUtxoTxID), leU32(msg.VUtxoIndex)...)
	promised := reversed(msg.PromisedPoolTxID)
	return [][]byte{aspSig, userSig, outpoint, promised}
}

func leU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// DecodeForfeitClosure strictly decodes script, rejecting any deviation
// by reading the two schnorr pubkey pushes at their fixed offsets and
// comparing the script rebuilt from them byte-for-byte against the input.
func DecodeForfeitClosure(script []byte) (bool, *ForfeitClosure, error) {
	// the owner pubkey push is the operand of the first OP_CHECKSIGFROMSTACK,
	// which sits at byte 39 of the 90-byte script; searching for the opcode
	// byte instead would also match key bytes equal to it
	firstOp := 39
	if len(script) != 90 {
		return false, nil, nil
	}
	ownerKeyBytes := script[firstOp-32 : firstOp]
	if script[firstOp-33] != txscript.OP_DATA_32 {
		return false, nil, nil
	}

	rest := script[firstOp+1:]
	// the second OP_CHECKSIGFROMSTACK follows 41 bytes after the first
	secondOp := 40
	providerKeyBytes := rest[secondOp-32 : secondOp]
	if rest[secondOp-33] != txscript.OP_DATA_32 {
		return false, nil, nil
	}

	ownerKey, err := schnorr.ParsePubKey(ownerKeyBytes)
	if err != nil {
		return false, nil, err
	}
	providerKey, err := schnorr.ParsePubKey(providerKeyBytes)
	if err != nil {
		return false, nil, err
	}

	closure := &ForfeitClosure{OwnerPubKey: ownerKey, ProviderPubKey: providerKey}
	rebuilt, err := closure.Script()
	if err != nil {
		return false, nil, err
	}
	if !bytes.Equal(rebuilt, script) {
		return false, nil, nil
	}

	return true, closure, nil
}
