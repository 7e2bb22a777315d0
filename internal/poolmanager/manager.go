// Package poolmanager batches outstanding transfer requests into pool
// transactions and collects the forfeit signatures that let the ASP
// safely finalize and broadcast them.
package poolmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/ports"
	"github.com/louisinger/ark-liquid-poc/internal/txbuilder"
)

// DefaultBatchInterval is how long Manager waits after the first queued
// request before batching everything pending into one pool tx.
const DefaultBatchInterval = 5 * time.Second

// Config carries the operational parameters Manager needs to build
// pool transactions; all fields are required except BatchInterval.
type Config struct {
	AspPubKey            *secp256k1.PublicKey
	Asset                string
	MinerFee             uint64
	ClaimTimeoutSeconds  uint
	RedeemTimeoutSeconds uint
	BatchInterval        time.Duration
}

// Manager implements the batching state machine: requests queue until
// the timer fires, at which point they're built into one pool PSET and
// each caller is handed back its share; forfeit signatures then trickle
// in via Send until the pending pool closes and gets broadcast.
type Manager struct {
	cfg    Config
	wallet ports.Wallet
	repo   ports.PoolManagerRepository

	scheduler  *gocron.Scheduler
	timerArmed bool

	mu        sync.Mutex
	pending   []*domain.PendingSendRequest
	pools     map[string]*domain.PendingPool
	finalized map[string]string
	closed    bool
}

// New constructs a Manager. Callers must invoke Start before queuing
// any requests and Stop when shutting down.
func New(cfg Config, wallet ports.Wallet, repo ports.PoolManagerRepository) *Manager {
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	return &Manager{
		cfg:       cfg,
		wallet:    wallet,
		repo:      repo,
		scheduler: gocron.NewScheduler(time.UTC),
		pools:     make(map[string]*domain.PendingPool),
		finalized: make(map[string]string),
	}
}

// Start runs the batching scheduler in the background.
func (m *Manager) Start() {
	m.scheduler.StartAsync()
}

// Stop halts the scheduler and rejects every request still queued.
func (m *Manager) Stop() {
	m.scheduler.Stop()

	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, req := range pending {
		req.Result <- domain.SendRequestResult{Err: fmt.Errorf("poolmanager: shutting down")}
	}
}

// GetPendingPool returns the pending pool promised under poolTxID, for
// diagnostics and tests.
func (m *Manager) GetPendingPool(poolTxID string) (*domain.PendingPool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[poolTxID]
	return pool, ok
}

// SendRequest validates evu per §4.5.1, queues the transfer it
// describes, and blocks until the batching timer fires and resolves
// it (or the manager shuts down first).
func (m *Manager) SendRequest(ctx context.Context, evu domain.ExtendedVirtualUtxo, toPublicKey [33]byte, amount *uint64) (domain.SendRequestResult, error) {
	if err := domain.Validate(evu, m.cfg.AspPubKey); err != nil {
		return domain.SendRequestResult{}, err
	}

	req := &domain.PendingSendRequest{
		Transfer: domain.VirtualTransfer{
			VUtxo:      evu.VUtxo,
			RedeemLeaf: evu.VUtxoTree.RedeemLeaf,
			ToPubKey:   toPublicKey,
			Amount:     amount,
		},
		Result: make(chan domain.SendRequestResult, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.SendRequestResult{}, fmt.Errorf("poolmanager: shutting down")
	}
	m.pending = append(m.pending, req)
	if !m.timerArmed {
		m.timerArmed = true
		if _, err := m.scheduler.Every(uint64(m.cfg.BatchInterval.Seconds())).Seconds().WaitForSchedule().LimitRunsTo(1).Do(m.processSendOrders); err != nil {
			m.timerArmed = false
			m.mu.Unlock()
			return domain.SendRequestResult{}, err
		}
	}
	m.mu.Unlock()

	select {
	case result := <-req.Result:
		return result, result.Err
	case <-ctx.Done():
		return domain.SendRequestResult{}, ctx.Err()
	}
}

// processSendOrders is the batching timer's callback: it snapshots the
// pending queue, builds one pool transaction for it, and resolves every
// caller's request.
func (m *Manager) processSendOrders() {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.timerArmed = false
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	transfers := make([]domain.VirtualTransfer, len(batch))
	for i, req := range batch {
		transfers[i] = req.Transfer
	}

	ctx := context.Background()
	result, err := txbuilder.CreatePoolTransaction(
		ctx, m.wallet, m.cfg.AspPubKey, transfers, m.cfg.Asset, m.cfg.MinerFee,
		m.cfg.ClaimTimeoutSeconds, m.cfg.RedeemTimeoutSeconds,
	)
	if err != nil {
		log.WithError(err).Warn("poolmanager: failed to build pool transaction")
		for _, req := range batch {
			req.Result <- domain.SendRequestResult{Err: err}
		}
		return
	}

	promisedPoolTxID, err := unsignedTxID(result.PsetBase64)
	if err != nil {
		for _, req := range batch {
			req.Result <- domain.SendRequestResult{Err: err}
		}
		return
	}

	pset, err := decodePset(result.PsetBase64)
	if err != nil {
		for _, req := range batch {
			req.Result <- domain.SendRequestResult{Err: err}
		}
		return
	}

	toForfeit := make(map[string]domain.ForfeitMessage, len(batch))
	failed := make(map[int]error, len(batch))
	for i := range batch {
		transfer := transfers[i]
		redeemScriptPubKeyHex, err := senderRedeemScriptPubKeyHex(transfer, m.cfg.AspPubKey, m.cfg.RedeemTimeoutSeconds)
		if err != nil {
			failed[i] = err
			continue
		}
		toForfeit[redeemScriptPubKeyHex] = domain.ForfeitMessage{
			VUtxoTxID:        txidBytes(transfer.VUtxo.TxID),
			VUtxoIndex:       transfer.VUtxo.Index,
			PromisedPoolTxID: txidBytes(promisedPoolTxID),
		}
	}
	for i, err := range failed {
		batch[i].Result <- domain.SendRequestResult{Err: err}
	}

	pendingPool := &domain.PendingPool{
		Pset:       pset,
		Connectors: result.Connectors,
		ToForfeit:  toForfeit,
		Requests:   batch,
	}

	m.mu.Lock()
	m.pools[promisedPoolTxID] = pendingPool
	m.mu.Unlock()

	for i, req := range batch {
		if _, skip := failed[i]; skip {
			continue
		}
		transfer := transfers[i]
		toKeyHex := fmt.Sprintf("%x", transfer.ToPubKey[1:])
		receiverUtxo, err := buildExtendedVUtxo(result, promisedPoolTxID, toKeyHex, transfer.ToPubKey, m.cfg.AspPubKey, m.cfg.RedeemTimeoutSeconds, m.cfg.Asset)
		if err != nil {
			req.Result <- domain.SendRequestResult{Err: err}
			continue
		}

		var changeUtxo *domain.ExtendedVirtualUtxo
		if transfer.Amount != nil && *transfer.Amount < transfer.VUtxo.WitnessUtxo.Value {
			ok, senderClosure, err := covenant.DecodeFrozenReceiverClosure(transfer.RedeemLeaf.Script)
			if err != nil || !ok {
				req.Result <- domain.SendRequestResult{Err: fmt.Errorf("poolmanager: could not recover sender key for change")}
				continue
			}
			senderKeyHex := fmt.Sprintf("%x", schnorr.SerializePubKey(senderClosure.OwnerPubKey))
			var senderArr [33]byte
			copy(senderArr[:], senderClosure.OwnerPubKey.SerializeCompressed())
			cu, err := buildExtendedVUtxo(result, promisedPoolTxID, senderKeyHex, senderArr, m.cfg.AspPubKey, m.cfg.RedeemTimeoutSeconds, m.cfg.Asset)
			if err != nil {
				req.Result <- domain.SendRequestResult{Err: err}
				continue
			}
			changeUtxo = &cu
		}

		req.Result <- domain.SendRequestResult{
			NextPoolPset: result.PsetBase64,
			ForfeitMessage: domain.ForfeitMessage{
				VUtxoTxID:        txidBytes(transfer.VUtxo.TxID),
				VUtxoIndex:       transfer.VUtxo.Index,
				PromisedPoolTxID: txidBytes(promisedPoolTxID),
			},
			ReceiverUtxo: receiverUtxo,
			ChangeUtxo:   changeUtxo,
		}
	}
}

// Send verifies the sender's signature over the forfeit message,
// records it, and — once every forfeit for this pending pool has been
// collected — co-signs, finalizes and persists the pool transaction,
// resolving every caller with the same hex. It does not broadcast the
// transaction; the returned hex is what gets broadcast.
func (m *Manager) Send(ctx context.Context, msg domain.ForfeitMessage, redeemScriptPubKeyHex string, ownerPubKey *secp256k1.PublicKey, signature []byte) (string, error) {
	promisedPoolTxID := fmt.Sprintf("%x", msg.PromisedPoolTxID[:])

	m.mu.Lock()
	pool, ok := m.pools[promisedPoolTxID]
	m.mu.Unlock()
	if !ok {
		return "", domain.PendingPoolNotFound{PoolTxID: promisedPoolTxID}
	}

	m.mu.Lock()
	_, ok = pool.ToForfeit[redeemScriptPubKeyHex]
	m.mu.Unlock()
	if !ok {
		return "", domain.ForfeitEntryNotFound{RedeemScriptPubKey: redeemScriptPubKeyHex}
	}

	covMsg := covenant.ForfeitMessage{VUtxoTxID: msg.VUtxoTxID, VUtxoIndex: msg.VUtxoIndex, PromisedPoolTxID: msg.PromisedPoolTxID}
	valid, err := covenant.VerifyForfeitMessageSignature(ownerPubKey, covMsg, signature)
	if err != nil || !valid {
		return "", domain.SignatureError{RedeemScriptPubKey: redeemScriptPubKeyHex}
	}

	m.mu.Lock()
	delete(pool.ToForfeit, redeemScriptPubKeyHex)
	pool.Signatures = append(pool.Signatures, domain.ForfeitRecord{
		Message:            msg,
		Signature:          signature,
		RedeemScriptPubKey: redeemScriptPubKeyHex,
	})
	remaining := len(pool.ToForfeit)
	m.mu.Unlock()

	if remaining > 0 {
		// block the caller until whoever closes the pool resolves it
		return m.awaitFinalize(ctx, promisedPoolTxID)
	}

	return m.finalizeAndBroadcast(ctx, promisedPoolTxID, pool)
}

// awaitFinalize polls for the finalized pool hex stored under poolTxID
// by whichever send() call emptied toForfeit. Only that caller performs
// the finalization; every other caller waits here for the same result.
func (m *Manager) awaitFinalize(ctx context.Context, poolTxID string) (string, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			hex, done := m.finalized[poolTxID]
			m.mu.Unlock()
			if done {
				return hex, nil
			}
		}
	}
}

func (m *Manager) finalizeAndBroadcast(ctx context.Context, poolTxID string, pool *domain.PendingPool) (string, error) {
	signedPset, err := m.wallet.Sign(ctx, pool.Pset)
	if err != nil {
		return "", err
	}

	hex, err := finalizedHex(signedPset)
	if err != nil {
		return "", err
	}

	if err := m.repo.SetPoolTransaction(ctx, hex, pool.Connectors); err != nil {
		return "", err
	}
	for _, record := range pool.Signatures {
		if err := m.repo.SetForfeit(ctx, record.RedeemScriptPubKey, record.Message, record.Signature); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	delete(m.pools, poolTxID)
	m.finalized[poolTxID] = hex
	m.mu.Unlock()

	return hex, nil
}
