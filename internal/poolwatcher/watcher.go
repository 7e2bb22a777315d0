// Package poolwatcher scans redeem scripts the ASP has an outstanding
// forfeit obligation for, and punishes any owner who broadcasts a
// unilateral exit against a vUTXO already superseded by a pool.
package poolwatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/ports"
	"github.com/louisinger/ark-liquid-poc/internal/txbuilder"
)

// DefaultScanInterval is how often the watcher rescans every registered
// redeem script for a unilateral exit broadcast.
const DefaultScanInterval = 30 * time.Second

// Config carries the operational parameters Watcher needs to
// reconstruct redeem trees and pace its scan loop.
type Config struct {
	AspPubKey            *secp256k1.PublicKey
	RedeemTimeoutSeconds uint
	ScanInterval         time.Duration
}

// Watcher implements §4.6's watchRedeem as the body of a ticker loop,
// one tick per registered vUTXO public key. Owners are registered via
// Watch once the ASP has recorded a forfeit obligation against their
// redeem script; a caller wiring this against PoolManager should call
// Watch right after a Send call succeeds.
type Watcher struct {
	cfg    Config
	wallet ports.Wallet
	chain  ports.ChainSource
	repo   ports.PoolWatcherRepository

	stop chan struct{}

	mu      sync.Mutex
	watched map[string]*secp256k1.PublicKey
}

// New constructs a Watcher. Callers must invoke Start before it scans
// anything and Stop when shutting down.
func New(cfg Config, wallet ports.Wallet, chain ports.ChainSource, repo ports.PoolWatcherRepository) *Watcher {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	return &Watcher{
		cfg:     cfg,
		wallet:  wallet,
		chain:   chain,
		repo:    repo,
		watched: make(map[string]*secp256k1.PublicKey),
	}
}

// Watch registers vUtxoPubKey for scanning. Registration is idempotent
// and never expires on its own; a caller that knows an owner's vUTXO
// has been fully claimed or forfeited may call Unwatch to stop scanning
// it, but leaving it registered is harmless since a spent redeem script
// simply stops turning up unspents.
func (w *Watcher) Watch(vUtxoPubKey *secp256k1.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[fmt.Sprintf("%x", vUtxoPubKey.SerializeCompressed())] = vUtxoPubKey
}

// Unwatch removes vUtxoPubKey from the scan set.
func (w *Watcher) Unwatch(vUtxoPubKey *secp256k1.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, fmt.Sprintf("%x", vUtxoPubKey.SerializeCompressed()))
}

func (w *Watcher) watchedKeys() []*secp256k1.PublicKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := make([]*secp256k1.PublicKey, 0, len(w.watched))
	for _, k := range w.watched {
		keys = append(keys, k)
	}
	return keys
}

// Start runs the scan loop in the background.
func (w *Watcher) Start() {
	w.stop = make(chan struct{})
	timer := time.NewTicker(w.cfg.ScanInterval)

	go func() {
		for {
			select {
			case <-timer.C:
				w.tick()
			case <-w.stop:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop halts the scan loop.
func (w *Watcher) Stop() {
	close(w.stop)
}

func (w *Watcher) tick() {
	ctx := context.Background()
	for _, key := range w.watchedKeys() {
		if _, err := w.WatchRedeem(ctx, key); err != nil {
			log.WithError(err).Error("poolwatcher: watchRedeem failed")
		}
	}
}

// WatchRedeem implements §4.6: it reconstructs vUtxoPubKey's redeem
// tree, finds every unilateral exit broadcast against it, and forfeits
// each one by spending the promised pool's next connector alongside
// the exited output's forfeit leaf. It returns the forfeit txids
// broadcast this call.
func (w *Watcher) WatchRedeem(ctx context.Context, vUtxoPubKey *secp256k1.PublicKey) ([]string, error) {
	redeemTree, err := covenant.BuildRedeemTree(vUtxoPubKey, w.cfg.AspPubKey, w.cfg.RedeemTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	redeemScriptPubKeyHex := fmt.Sprintf("%x", redeemTree.OutputScript)

	stored, err := w.repo.GetForfeit(ctx, redeemScriptPubKeyHex)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("poolwatcher: no forfeit entry for %s", redeemScriptPubKeyHex)
	}

	msg := covenant.ForfeitMessage{
		VUtxoTxID:        stored.Message.VUtxoTxID,
		VUtxoIndex:       stored.Message.VUtxoIndex,
		PromisedPoolTxID: stored.Message.PromisedPoolTxID,
	}
	digest := covenant.HashForfeitMessage(msg)
	aspSig, err := w.wallet.SignSchnorr(ctx, digest)
	if err != nil {
		return nil, err
	}

	unspents, err := w.chain.ListUnspents(ctx, redeemScriptPubKeyHex)
	if err != nil {
		return nil, err
	}
	if len(unspents) == 0 {
		return nil, nil
	}

	txIDs := make([]string, 0, len(unspents))
	seen := make(map[string]struct{}, len(unspents))
	for _, u := range unspents {
		if _, ok := seen[u.TxHash]; ok {
			continue
		}
		seen[u.TxHash] = struct{}{}
		txIDs = append(txIDs, u.TxHash)
	}
	fetched, err := w.chain.FetchTransactions(ctx, txIDs)
	if err != nil {
		return nil, err
	}
	hexByTxID := make(map[string]string, len(fetched))
	for _, f := range fetched {
		hexByTxID[f.TxID] = f.Hex
	}

	aspChangeScript, err := w.wallet.GetChangeScriptPubKey(ctx)
	if err != nil {
		return nil, err
	}

	broadcastTxIDs := make([]string, 0, len(unspents))
	var errs []error
	for _, unspent := range unspents {
		txid, err := w.forfeitRedeem(ctx, unspent, hexByTxID[unspent.TxHash], msg, redeemTree, aspSig, stored.Signature, aspChangeScript)
		if err != nil {
			log.WithError(err).WithField("txHash", unspent.TxHash).Error("poolwatcher: failed to forfeit unilateral exit, continuing with remaining unspents")
			errs = append(errs, err)
			continue
		}
		broadcastTxIDs = append(broadcastTxIDs, txid)
	}
	return broadcastTxIDs, errors.Join(errs...)
}

// forfeitRedeem is §4.6 step 5: build, sign, finalize and broadcast the
// forfeit tx for one detected redeem broadcast, then advance the
// promised pool's connector list past the one just spent.
func (w *Watcher) forfeitRedeem(
	ctx context.Context,
	unspent ports.Unspent,
	redeemTxHex string,
	msg covenant.ForfeitMessage,
	redeemTree *covenant.RedeemTaprootTree,
	aspSig, userSig []byte,
	aspChangeScript []byte,
) (string, error) {
	promisedPoolTxID := fmt.Sprintf("%x", msg.PromisedPoolTxID[:])
	storedPool, err := w.repo.GetPoolTransaction(ctx, promisedPoolTxID)
	if err != nil {
		return "", err
	}
	if storedPool == nil || len(storedPool.Connectors) == 0 {
		return "", domain.InsufficientConnectors{PoolTxID: promisedPoolTxID}
	}

	poolTx, err := transaction.NewTxFromHex(storedPool.Hex)
	if err != nil {
		return "", err
	}
	connectorIndex := storedPool.Connectors[0]
	connectorOut := poolTx.Outputs[connectorIndex]
	connectorValue, err := elementsutil.ValueFromBytes(connectorOut.Value)
	if err != nil {
		return "", err
	}
	connector := txbuilder.ConnectorInput{
		TxID:   poolTx.TxHash().String(),
		Index:  connectorIndex,
		Value:  connectorValue,
		Asset:  elementsutil.AssetHashFromBytes(connectorOut.Asset),
		Script: connectorOut.Script,
	}

	if redeemTxHex == "" {
		return "", fmt.Errorf("poolwatcher: no fetched tx for redeem outpoint %s", unspent.TxHash)
	}
	redeemTx, err := transaction.NewTxFromHex(redeemTxHex)
	if err != nil {
		return "", err
	}
	redeemOut := redeemTx.Outputs[unspent.TxPos]
	redeemValue, err := elementsutil.ValueFromBytes(redeemOut.Value)
	if err != nil {
		return "", err
	}
	redeem := txbuilder.RedeemInput{
		TxID:   unspent.TxHash,
		Index:  uint32(unspent.TxPos),
		Value:  redeemValue,
		Asset:  elementsutil.AssetHashFromBytes(redeemOut.Asset),
		Script: redeemOut.Script,
	}

	pset, err := txbuilder.BuildForfeitTx(connector, redeem, redeemTree.ForfeitProof, aspChangeScript)
	if err != nil {
		return "", err
	}
	if err := txbuilder.FinalizeForfeitInput1(pset, redeemTree.ForfeitClosure, redeemTree.ForfeitProof, msg, aspSig, userSig); err != nil {
		return "", err
	}

	signedPset, err := w.wallet.Sign(ctx, pset)
	if err != nil {
		return "", err
	}
	hex, err := txbuilder.FinalizeAndExtractHex(signedPset)
	if err != nil {
		return "", err
	}

	txid, err := w.chain.BroadcastTransaction(ctx, hex)
	if err != nil {
		return "", err
	}

	if err := w.repo.UpdateConnectors(ctx, promisedPoolTxID, storedPool.Connectors[1:]); err != nil {
		return "", err
	}

	log.WithField("txid", txid).Info("poolwatcher: broadcast forfeit tx against a unilateral exit")
	return txid, nil
}
