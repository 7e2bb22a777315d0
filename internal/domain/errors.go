package domain

import "fmt"

// ValidationError covers malformed scripts, mismatched keys, invalid
// vUTXO trees, invalid BIP-68 encodings, confidential asset/value, and
// out-of-range amounts. Always fatal for the affected operation.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// SignatureError wraps a Schnorr verification failure on a forfeit
// message. Rejects only the offending send() call.
type SignatureError struct {
	RedeemScriptPubKey string
}

func (e SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed for %s", e.RedeemScriptPubKey)
}

// InsufficientConnectors means the watcher cannot forfeit because the
// promised pool has no connector left. Fatal and operator-visible.
type InsufficientConnectors struct {
	PoolTxID string
}

func (e InsufficientConnectors) Error() string {
	return fmt.Sprintf("pool %s has no connectors left", e.PoolTxID)
}

// ChainError wraps an RPC transport failure. MissingTx marks the
// "missingtransaction" class, which callers retry a bounded number of
// times; every other ChainError propagates immediately.
type ChainError struct {
	Op        string
	MissingTx bool
	Err       error
}

func (e ChainError) Error() string {
	return fmt.Sprintf("chain: %s: %v", e.Op, e.Err)
}

func (e ChainError) Unwrap() error { return e.Err }

// CoinSelectionError means the wallet could not cover the amount a
// request demanded.
type CoinSelectionError struct {
	Amount uint64
	Asset  string
}

func (e CoinSelectionError) Error() string {
	return fmt.Sprintf("coin selection: could not cover %d of asset %s", e.Amount, e.Asset)
}

// PendingPoolNotFound is returned when send() is called with a
// promisedPoolTxID the manager no longer (or never did) have pending.
type PendingPoolNotFound struct {
	PoolTxID string
}

func (e PendingPoolNotFound) Error() string {
	return fmt.Sprintf("no pending pool for promised txid %s", e.PoolTxID)
}

// ForfeitEntryNotFound is returned when send() cannot find a matching
// toForfeit entry for the caller's forfeit message.
type ForfeitEntryNotFound struct {
	RedeemScriptPubKey string
}

func (e ForfeitEntryNotFound) Error() string {
	return fmt.Sprintf("no pending forfeit entry for %s", e.RedeemScriptPubKey)
}
