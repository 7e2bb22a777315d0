package covenant

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/taproot"
)

// LeafProof is a leaf's compiled script together with the control block
// that proves its membership in a Taproot tree under a given internal
// key.
type LeafProof struct {
	Script       []byte
	ControlBlock []byte
}

func taprootOutputScript(taprootKey *secp256k1.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(schnorr.SerializePubKey(taprootKey)).
		Script()
}

func leafProof(tree *taproot.IndexedElementsTapScriptTree, leaf *taproot.TapElementsLeaf, internalKey *secp256k1.PublicKey) (*LeafProof, error) {
	hash := leaf.TapHash()
	index, ok := tree.LeafProofIndex[hash]
	if !ok {
		return nil, fmt.Errorf("covenant: leaf not found in taproot tree")
	}
	proof := tree.LeafMerkleProofs[index]
	controlBlock := proof.ToControlBlock(internalKey)
	controlBlockBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, err
	}
	return &LeafProof{Script: proof.Script, ControlBlock: controlBlockBytes}, nil
}

// RedeemTaprootTree is the per-user redeem output: two leaves keyed by
// the unspendable internal H_POINT.
//   - ClaimLeaf: user claim after REDEEM_TIMEOUT (CSV script).
//   - ForfeitLeaf: ASP-plus-user joint spend tied to a promised pool txid.
type RedeemTaprootTree struct {
	OwnerPubKey     *secp256k1.PublicKey
	ProviderPubKey  *secp256k1.PublicKey
	RedeemTimeout   uint
	OutputScript    []byte
	WitnessProgram  [32]byte
	ClaimClosure    *CSVClosure
	ForfeitClosure  *ForfeitClosure
	ClaimProof      *LeafProof
	ForfeitProof    *LeafProof
}

// BuildRedeemTree assembles the redeem tree for ownerPubKey, tied to
// providerPubKey (the ASP) via the forfeit leaf. Leaves are placed in
// {forfeitLeaf, claimLeaf} order and the internal key is always H_POINT,
// so the only spending paths are the two leaves.
func BuildRedeemTree(ownerPubKey, providerPubKey *secp256k1.PublicKey, redeemTimeoutSeconds uint) (*RedeemTaprootTree, error) {
	claimClosure := &CSVClosure{OwnerPubKey: ownerPubKey, Seconds: redeemTimeoutSeconds}
	forfeitClosure := &ForfeitClosure{OwnerPubKey: ownerPubKey, ProviderPubKey: providerPubKey}

	claimLeaf, err := claimClosure.Leaf()
	if err != nil {
		return nil, err
	}
	forfeitLeaf, err := forfeitClosure.Leaf()
	if err != nil {
		return nil, err
	}

	tapTree := taproot.AssembleTaprootScriptTree(*forfeitLeaf, *claimLeaf)
	root := tapTree.RootNode.TapHash()

	taprootKey := taproot.ComputeTaprootOutputKey(HPoint(), root[:])
	outputScript, err := taprootOutputScript(taprootKey)
	if err != nil {
		return nil, err
	}

	claimProof, err := leafProof(tapTree, claimLeaf, HPoint())
	if err != nil {
		return nil, err
	}
	forfeitProof, err := leafProof(tapTree, forfeitLeaf, HPoint())
	if err != nil {
		return nil, err
	}

	var program [32]byte
	copy(program[:], outputScript[2:])

	return &RedeemTaprootTree{
		OwnerPubKey:    ownerPubKey,
		ProviderPubKey: providerPubKey,
		RedeemTimeout:  redeemTimeoutSeconds,
		OutputScript:   outputScript,
		WitnessProgram: program,
		ClaimClosure:   claimClosure,
		ForfeitClosure: forfeitClosure,
		ClaimProof:     claimProof,
		ForfeitProof:   forfeitProof,
	}, nil
}

// VirtualUtxoTaprootTree is the vUTXO tree over the shared pool output:
// a FrozenReceiver redeem leaf per stakeholder plus one ASP CSV claim
// leaf, assembled into a single amount-ordered shared-coin tree.
type VirtualUtxoTaprootTree struct {
	OutputScript []byte
	ClaimProof   *LeafProof
	// StakeholderProofs is keyed by the stakeholder's x-only pubkey hex.
	StakeholderProofs map[string]*LeafProof
	ClaimClosure      *CSVClosure
	Stakeholders      []Stakeholder
}

// Stakeholder is one leaf contributor to the shared-coin tree: an amount
// and the FrozenReceiver closure protecting it.
type Stakeholder struct {
	Amount  uint64
	Closure *FrozenReceiverClosure
}

// BuildVirtualUtxoTree assembles the vUTXO tree: every stakeholder
// contributes its FrozenReceiver redeem leaf, and the tree additionally
// carries one ASP CSV claim leaf after claimTimeoutSeconds. The internal
// key is always H_POINT, never a user or ASP key, so the only spending
// path is a leaf.
func BuildVirtualUtxoTree(
	aspPubKey *secp256k1.PublicKey,
	stakeholders []Stakeholder,
	claimTimeoutSeconds uint,
) (*VirtualUtxoTaprootTree, error) {
	if len(stakeholders) == 0 {
		return nil, fmt.Errorf("covenant: vUTXO tree requires at least one stakeholder")
	}

	claimClosure := &CSVClosure{OwnerPubKey: aspPubKey, Seconds: claimTimeoutSeconds}
	claimLeaf, err := claimClosure.Leaf()
	if err != nil {
		return nil, err
	}

	leaves := make([]taproot.TapElementsLeaf, 0, len(stakeholders)+1)
	stakeholderLeaves := make([]*taproot.TapElementsLeaf, len(stakeholders))
	for i, sh := range stakeholders {
		leaf, err := sh.Closure.Leaf()
		if err != nil {
			return nil, err
		}
		stakeholderLeaves[i] = leaf
		leaves = append(leaves, *leaf)
	}
	leaves = append(leaves, *claimLeaf)

	tapTree, err := sharedCoinTree(stakeholders, stakeholderLeaves, claimLeaf)
	if err != nil {
		return nil, err
	}

	root := tapTree.RootNode.TapHash()
	taprootKey := taproot.ComputeTaprootOutputKey(HPoint(), root[:])
	outputScript, err := taprootOutputScript(taprootKey)
	if err != nil {
		return nil, err
	}

	claimProof, err := leafProof(tapTree, claimLeaf, HPoint())
	if err != nil {
		return nil, err
	}

	stakeholderProofs := make(map[string]*LeafProof, len(stakeholders))
	for i, sh := range stakeholders {
		proof, err := leafProof(tapTree, stakeholderLeaves[i], HPoint())
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%x", schnorr.SerializePubKey(sh.Closure.OwnerPubKey))
		stakeholderProofs[key] = proof
	}

	return &VirtualUtxoTaprootTree{
		OutputScript:      outputScript,
		ClaimProof:        claimProof,
		StakeholderProofs: stakeholderProofs,
		ClaimClosure:      claimClosure,
		Stakeholders:      stakeholders,
	}, nil
}
