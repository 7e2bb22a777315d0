package poolmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/ports"
)

const testAsset = "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225"

func mustKey(t *testing.T) *secp256k1.PublicKey {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func mustKeyPair(t *testing.T) (*secp256k1.PrivateKey, *secp256k1.PublicKey) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv, priv.PubKey()
}

func pubKeyArray(pub *secp256k1.PublicKey) [33]byte {
	var out [33]byte
	copy(out[:], pub.SerializeCompressed())
	return out
}

// buildSenderEvu assembles an ExtendedVirtualUtxo the way
// txbuilder.CreatePoolTransaction's caller is expected to hold one: a
// single-stakeholder vUTXO tree and the sender's own redeem tree,
// mutually consistent enough to pass domain.Validate.
func buildSenderEvu(t *testing.T, asp, sender *secp256k1.PublicKey, value uint64, redeemTimeout, claimTimeout uint) domain.ExtendedVirtualUtxo {
	t.Helper()

	redeemTree, err := covenant.BuildRedeemTree(sender, asp, redeemTimeout)
	require.NoError(t, err)

	stakeholder := covenant.Stakeholder{
		Amount: value,
		Closure: &covenant.FrozenReceiverClosure{
			OwnerPubKey:    sender,
			WitnessProgram: redeemTree.WitnessProgram,
		},
	}
	vUtxoTree, err := covenant.BuildVirtualUtxoTree(asp, []covenant.Stakeholder{stakeholder}, claimTimeout)
	require.NoError(t, err)

	senderHex := hexKey(sender)
	redeemLeafProof := vUtxoTree.StakeholderProofs[senderHex]

	var internalKey [32]byte
	copy(internalKey[:], covenant.XHPoint())

	return domain.ExtendedVirtualUtxo{
		VUtxo: domain.VirtualUtxo{
			TxID:           "sender-txid",
			Index:          0,
			TapInternalKey: internalKey,
			WitnessUtxo: domain.WitnessUtxo{
				Asset:  testAsset,
				Value:  value,
				Script: vUtxoTree.OutputScript,
			},
		},
		VUtxoTree: domain.VirtualUtxoTaprootTree{
			OutputScript: vUtxoTree.OutputScript,
			ClaimLeaf:    domain.LeafProof{Script: vUtxoTree.ClaimProof.Script, ControlBlock: vUtxoTree.ClaimProof.ControlBlock},
			RedeemLeaf:   domain.LeafProof{Script: redeemLeafProof.Script, ControlBlock: redeemLeafProof.ControlBlock},
		},
		RedeemTree: domain.RedeemTaprootTree{
			OutputScript: redeemTree.OutputScript,
			ClaimLeaf:    domain.LeafProof{Script: redeemTree.ClaimProof.Script, ControlBlock: redeemTree.ClaimProof.ControlBlock},
			ForfeitLeaf:  domain.LeafProof{Script: redeemTree.ForfeitProof.Script, ControlBlock: redeemTree.ForfeitProof.ControlBlock},
		},
	}
}

func hexKey(pub *secp256k1.PublicKey) string {
	b := pub.SerializeCompressed()
	const hextable = "0123456789abcdef"
	out := make([]byte, 0, 64)
	for _, c := range b[1:] {
		out = append(out, hextable[c>>4], hextable[c&0xf])
	}
	return string(out)
}

type fakeWallet struct {
	pubKey       *secp256k1.PublicKey
	changeScript []byte
	coins        []ports.UpdaterInput
}

func (w *fakeWallet) GetPublicKey(ctx context.Context) (*secp256k1.PublicKey, error) { return w.pubKey, nil }
func (w *fakeWallet) GetChangeScriptPubKey(ctx context.Context) ([]byte, error)      { return w.changeScript, nil }
func (w *fakeWallet) CoinSelect(ctx context.Context, amount uint64, asset string) ([]ports.UpdaterInput, *ports.UpdaterOutput, error) {
	return w.coins, nil, nil
}
func (w *fakeWallet) Sign(ctx context.Context, pset *psetv2.Pset) (*psetv2.Pset, error) { return pset, nil }
func (w *fakeWallet) SignSchnorr(ctx context.Context, msg32 [32]byte) ([]byte, error)   { return nil, nil }

type fakeRepo struct {
	mu         sync.Mutex
	forfeits   map[string]ports.StoredForfeit
	pool       ports.StoredPoolTransaction
	setPoolErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{forfeits: make(map[string]ports.StoredForfeit)}
}

func (r *fakeRepo) SetForfeit(ctx context.Context, redeemScriptPubKey string, msg domain.ForfeitMessage, sig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forfeits[redeemScriptPubKey] = ports.StoredForfeit{Message: msg, Signature: sig}
	return nil
}

func (r *fakeRepo) SetPoolTransaction(ctx context.Context, hex string, connectors []uint32) error {
	if r.setPoolErr != nil {
		return r.setPoolErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = ports.StoredPoolTransaction{Hex: hex, Connectors: connectors}
	return nil
}

func newTestManager(t *testing.T, asp *secp256k1.PublicKey, coins []ports.UpdaterInput) (*Manager, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	wallet := &fakeWallet{pubKey: asp, changeScript: []byte{0x00, 0x14}, coins: coins}
	m := New(Config{
		AspPubKey:            asp,
		Asset:                testAsset,
		MinerFee:             1000,
		ClaimTimeoutSeconds:  covenant.ClaimTimeoutSeconds,
		RedeemTimeoutSeconds: covenant.RedeemTimeoutSeconds,
	}, wallet, repo)
	return m, repo
}

func TestSendRequestRejectsInvalidEvu(t *testing.T) {
	asp := mustKey(t)
	sender := mustKey(t)
	receiver := mustKey(t)

	m, _ := newTestManager(t, asp, nil)

	evu := buildSenderEvu(t, asp, sender, 100_000, covenant.RedeemTimeoutSeconds, covenant.ClaimTimeoutSeconds)
	evu.VUtxo.TapInternalKey = [32]byte{0xff}

	_, err := m.SendRequest(context.Background(), evu, pubKeyArray(receiver), nil)
	require.Error(t, err)
	require.IsType(t, domain.ValidationError{}, err)
}

func TestProcessSendOrdersResolvesFullTransferAndFinalizesOnSend(t *testing.T) {
	asp := mustKey(t)
	senderPriv, sender := mustKeyPair(t)
	receiver := mustKey(t)

	m, repo := newTestManager(t, asp, []ports.UpdaterInput{
		{TxID: "2222222222222222222222222222222222222222222222222222222222222222", Index: 0, Value: 100_000_000 + 10_000, Asset: testAsset, Script: []byte{0x00, 0x14}},
	})

	evu := buildSenderEvu(t, asp, sender, 100_000_000, covenant.RedeemTimeoutSeconds, covenant.ClaimTimeoutSeconds)

	resultCh := make(chan domain.SendRequestResult, 1)
	go func() {
		res, err := m.SendRequest(context.Background(), evu, pubKeyArray(receiver), nil)
		require.NoError(t, err)
		resultCh <- res
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		n := len(m.pending)
		m.mu.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)

	m.processSendOrders()

	var result domain.SendRequestResult
	select {
	case result = <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("sendRequest never resolved")
	}
	require.NoError(t, result.Err)
	require.NotEmpty(t, result.NextPoolPset)
	require.Equal(t, uint64(100_000_000), result.ReceiverUtxo.VUtxo.WitnessUtxo.Value)
	require.Nil(t, result.ChangeUtxo)

	redeemScriptPubKeyHex, err := senderRedeemScriptPubKeyHex(
		domain.VirtualTransfer{VUtxo: evu.VUtxo, RedeemLeaf: evu.VUtxoTree.RedeemLeaf, ToPubKey: pubKeyArray(receiver)},
		asp, covenant.RedeemTimeoutSeconds,
	)
	require.NoError(t, err)

	pool, ok := m.GetPendingPool(hexEncode(result.ForfeitMessage.PromisedPoolTxID[:]))
	require.True(t, ok)
	require.Len(t, pool.ToForfeit, 1)

	sig, err := covenant.SignForfeitMessage(senderPriv, covenant.ForfeitMessage{
		VUtxoTxID:        result.ForfeitMessage.VUtxoTxID,
		VUtxoIndex:       result.ForfeitMessage.VUtxoIndex,
		PromisedPoolTxID: result.ForfeitMessage.PromisedPoolTxID,
	})
	require.NoError(t, err)

	hex, err := m.Send(context.Background(), result.ForfeitMessage, redeemScriptPubKeyHex, sender, sig)
	require.NoError(t, err)
	require.NotEmpty(t, hex)

	_, stillPending := m.GetPendingPool(hexEncode(result.ForfeitMessage.PromisedPoolTxID[:]))
	require.False(t, stillPending)

	require.Equal(t, hex, repo.pool.Hex)
	require.Len(t, repo.forfeits, 1)
}

func TestProcessSendOrdersSynthesizesChangeForPartialTransfer(t *testing.T) {
	asp := mustKey(t)
	sender := mustKey(t)
	receiver := mustKey(t)

	m, _ := newTestManager(t, asp, []ports.UpdaterInput{
		{TxID: "2222222222222222222222222222222222222222222222222222222222222222", Index: 0, Value: 200_000, Asset: testAsset, Script: []byte{0x00, 0x14}},
	})

	evu := buildSenderEvu(t, asp, sender, 100_000, covenant.RedeemTimeoutSeconds, covenant.ClaimTimeoutSeconds)
	amount := uint64(40_000)

	resultCh := make(chan domain.SendRequestResult, 1)
	go func() {
		res, err := m.SendRequest(context.Background(), evu, pubKeyArray(receiver), &amount)
		require.NoError(t, err)
		resultCh <- res
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		n := len(m.pending)
		m.mu.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)

	m.processSendOrders()

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, uint64(40_000), result.ReceiverUtxo.VUtxo.WitnessUtxo.Value)
	require.NotNil(t, result.ChangeUtxo)
	require.Equal(t, uint64(60_000), result.ChangeUtxo.VUtxo.WitnessUtxo.Value)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hextable[c>>4], hextable[c&0xf])
	}
	return string(out)
}
