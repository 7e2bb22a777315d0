package ports

import "context"

// Unspent is one unspent output found by listing a script hash,
// Electrum-convention fields.
type Unspent struct {
	Height int64
	TxPos  int
	TxHash string
}

// FetchedTransaction pairs a txid with its raw hex, the unit
// FetchTransactions returns per requested id.
type FetchedTransaction struct {
	TxID string
	Hex  string
}

// ChainSource is the ASP's read/write path to the Elements network.
// FetchTransactions retries up to 5 times at 1-second spacing on a
// "missingtransaction" response before giving up.
type ChainSource interface {
	ListUnspents(ctx context.Context, scriptHex string) ([]Unspent, error)
	FetchTransactions(ctx context.Context, txIDs []string) ([]FetchedTransaction, error)
	BroadcastTransaction(ctx context.Context, hex string) (string, error)
	Close()
}
