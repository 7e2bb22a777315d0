package domain

import "github.com/vulpemventures/go-elements/psetv2"

// WitnessUtxo is the asset/value/script triple a VirtualUtxo commits
// to; non-confidential only — a confidential asset or value anywhere
// in this system is a ValidationError, never silently handled.
type WitnessUtxo struct {
	Asset  string
	Value  uint64
	Script []byte
}

// VirtualUtxo is an off-chain claim on one index within a pool
// transaction. Immutable: a transfer or a redeem broadcast destroys
// it, it is never mutated in place.
type VirtualUtxo struct {
	TxID           string
	Index          uint32
	TapInternalKey [32]byte // always X_H_POINT
	WitnessUtxo    WitnessUtxo
}

// LeafProof is a leaf's compiled script together with the control
// block proving its membership in a taproot tree.
type LeafProof struct {
	Script       []byte
	ControlBlock []byte
}

// VirtualUtxoTaprootTree is the pair of leaves over the shared pool
// output that a vUTXO lives under: the ASP's claim leaf and the
// owner's FrozenReceiver redeem leaf.
type VirtualUtxoTaprootTree struct {
	OutputScript []byte
	ClaimLeaf    LeafProof
	RedeemLeaf   LeafProof
}

// RedeemTaprootTree is the pair of leaves over a per-user redeem
// output: the user's CSV claim leaf and the ASP-plus-user forfeit
// leaf, both keyed by the unspendable internal H_POINT.
type RedeemTaprootTree struct {
	OutputScript []byte
	ClaimLeaf    LeafProof
	ForfeitLeaf  LeafProof
}

// ExtendedVirtualUtxo bundles a vUTXO with both of its taproot trees,
// the unit §4.5.1 validation operates on.
type ExtendedVirtualUtxo struct {
	VUtxo      VirtualUtxo
	VUtxoTree  VirtualUtxoTaprootTree
	RedeemTree RedeemTaprootTree
}

// ForfeitMessage binds a sender's vUTXO to the pool promised to
// supersede it.
type ForfeitMessage struct {
	VUtxoTxID        [32]byte
	VUtxoIndex       uint32
	PromisedPoolTxID [32]byte
}

// PoolEpoch identifies the ASP signing key a vUTXO and its forfeit
// message were produced against. It is carried on LiftArgs and
// VirtualTransfer as a tag only: Validate, PoolManager and PoolWatcher
// do not read it, and check every leaf against the single configured
// ASP key.
type PoolEpoch uint64

// LiftArgs is one order in a createLiftTransaction call: the coins an
// on-chain wallet contributes, an optional change recipient, and the
// public key that will own the resulting vUTXO.
type LiftArgs struct {
	Coins       []LiftCoin
	Change      *LiftChange
	VUtxoPubKey [33]byte
	Epoch       PoolEpoch
}

// LiftCoin is one on-chain input an order contributes to its lift.
type LiftCoin struct {
	TxID   string
	Index  uint32
	Value  uint64
	Asset  string
	Script []byte
}

// LiftChange is the optional on-chain change an order keeps for
// itself after funding its share of the lift.
type LiftChange struct {
	Script []byte
	Value  uint64
}

// VirtualTransfer is one order in a createPoolTransaction call: a
// sender's vUTXO and its redeem leaf, the recipient, and an optional
// partial amount. A nil Amount transfers the full vUTXO value.
type VirtualTransfer struct {
	VUtxo      VirtualUtxo
	RedeemLeaf LeafProof
	ToPubKey   [33]byte
	Amount     *uint64
	Epoch      PoolEpoch
}

// UnsignedPoolTransaction is the output of createPoolTransaction
// before ASP/user signatures are collected: the PSET, the vUTXO it
// will mint, the per-owner leaf map, and the connector output
// indices reserved for later forfeit use.
type UnsignedPoolTransaction struct {
	PsetBase64 string
	VUtxo      VirtualUtxo
	// Leaves is keyed by the owner's x-only pubkey hex.
	Leaves     map[string]ownerTrees
	Connectors []uint32
}

type ownerTrees struct {
	VUtxoTree  VirtualUtxoTaprootTree
	RedeemTree RedeemTaprootTree
}

// PendingSendRequest is the record PoolManager keeps between
// sendRequest and the batching timer firing: the queued transfer and
// the channel used to resolve the caller's promise once the batch
// either lands or fails.
type PendingSendRequest struct {
	Transfer VirtualTransfer
	Result   chan SendRequestResult
}

// SendRequestResult is what a queued sendRequest caller is ultimately
// handed once its batch resolves.
type SendRequestResult struct {
	NextPoolPset   string
	ForfeitMessage ForfeitMessage
	ReceiverUtxo   ExtendedVirtualUtxo
	ChangeUtxo     *ExtendedVirtualUtxo
	Err            error
}

// ForfeitRecord is a collected signature for one toForfeit entry,
// kept until the pending pool closes and the ASP finalizes.
type ForfeitRecord struct {
	Message            ForfeitMessage
	Signature          []byte
	RedeemScriptPubKey string
}

// PendingPool is the state PoolManager tracks between batching a
// transfer set into a PSET and broadcasting the finalized pool tx.
type PendingPool struct {
	Pset       *psetv2.Pset
	Connectors []uint32
	// ToForfeit is keyed by redeem script pubkey hex; entries are
	// removed as matching send() calls arrive.
	ToForfeit  map[string]ForfeitMessage
	Signatures []ForfeitRecord
	Requests   []*PendingSendRequest
}
