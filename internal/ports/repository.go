package ports

import (
	"context"

	"github.com/louisinger/ark-liquid-poc/internal/domain"
)

// StoredForfeit is what the repository persists per redeem script
// pubkey: the message both parties signed, and the user's signature.
type StoredForfeit struct {
	Message   domain.ForfeitMessage
	Signature []byte
}

// StoredPoolTransaction is what the repository persists per finalized
// pool: the broadcast hex and the connector output indices still
// available for forfeit use.
type StoredPoolTransaction struct {
	Hex        string
	Connectors []uint32
}

// PoolManagerRepository is the capability set PoolManager needs:
// writing a pool's forfeit entries and its finalized transaction.
type PoolManagerRepository interface {
	SetForfeit(ctx context.Context, redeemScriptPubKey string, msg domain.ForfeitMessage, sig []byte) error
	SetPoolTransaction(ctx context.Context, hex string, connectors []uint32) error
}

// PoolWatcherRepository is the capability set PoolWatcher needs:
// reading forfeit entries and pool transactions, and updating the
// remaining connector list as they're consumed.
type PoolWatcherRepository interface {
	GetForfeit(ctx context.Context, scriptPubKey string) (*StoredForfeit, error)
	GetPoolTransaction(ctx context.Context, txID string) (*StoredPoolTransaction, error)
	UpdateConnectors(ctx context.Context, poolID string, connectors []uint32) error
}
