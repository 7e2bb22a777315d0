package ports

import (
	"context"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/psetv2"
)

// UpdaterInput is one coin-selected input, ready to be fed to a
// psetv2.Updater.AddInputs call together with its witness utxo.
type UpdaterInput struct {
	TxID   string
	Index  uint32
	Value  uint64
	Asset  string
	Script []byte
}

// UpdaterOutput is the change output a coin selection produced, if
// any.
type UpdaterOutput struct {
	Value  uint64
	Asset  string
	Script []byte
}

// Wallet is the ASP's on-chain signing and coin-selection authority.
// It is the sole authority over connector outputs and pool
// finalization.
type Wallet interface {
	// GetPublicKey returns the ASP's 33-byte compressed public key.
	GetPublicKey(ctx context.Context) (*secp256k1.PublicKey, error)
	// GetChangeScriptPubKey returns the SegWit script used for
	// connectors and change; the wallet must be able to sign it.
	GetChangeScriptPubKey(ctx context.Context) ([]byte, error)
	// CoinSelect selects coins of asset summing to at least amount.
	CoinSelect(ctx context.Context, amount uint64, asset string) ([]UpdaterInput, *UpdaterOutput, error)
	// Sign signs and finalizes only the inputs the wallet holds keys
	// for, leaving every other input (including ones already carrying
	// a hand-attached final witness) untouched.
	Sign(ctx context.Context, pset *psetv2.Pset) (*psetv2.Pset, error)
	// SignSchnorr produces a BIP-340 signature over a 32-byte message
	// with empty auxiliary randomness.
	SignSchnorr(ctx context.Context, msg32 [32]byte) ([]byte, error)
}
