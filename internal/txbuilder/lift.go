package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
)

// LiftOrderResult is what createLiftTransaction hands back per order:
// the redeem tree its vUTXO leaf points at, and the stakeholder amount
// it was credited after its fee share.
type LiftOrderResult struct {
	RedeemTree        *covenant.RedeemTaprootTree
	StakeholderAmount uint64
}

// LiftResult is the full output of createLiftTransaction: one shared
// covenant output batching every order's lift, keyed back to each
// order's owner pubkey.
type LiftResult struct {
	PsetBase64 string
	VUtxoTree  *covenant.VirtualUtxoTaprootTree
	// Orders is keyed by the order's owner x-only pubkey hex.
	Orders map[string]LiftOrderResult
}

// CreateLiftTransaction batches one or more LiftArgs orders into a
// single on-chain transaction minting one shared vUTXO output. Orders
// share the miner fee equally; any order whose lifted amount does not
// exceed its fee share is rejected.
func CreateLiftTransaction(
	aspPubKey *secp256k1.PublicKey,
	orders []domain.LiftArgs,
	asset string,
	minerFee uint64,
	claimTimeoutSeconds, redeemTimeoutSeconds uint,
) (*LiftResult, error) {
	if len(orders) == 0 {
		return nil, domain.ValidationError{Reason: "createLiftTransaction requires at least one order"}
	}

	ordersCount := uint64(len(orders))
	totalFee := ceilDiv(minerFee, ordersCount) * ordersCount
	feeShare := totalFee / ordersCount

	pset, err := psetv2.New(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	updater, err := psetv2.NewUpdater(pset)
	if err != nil {
		return nil, err
	}

	stakeholders := make([]covenant.Stakeholder, 0, len(orders))
	orderResults := make(map[string]LiftOrderResult, len(orders))
	changeOutputs := make([]psetv2.OutputArgs, 0, len(orders))

	for _, order := range orders {
		ownerPubKey, err := secp256k1.ParsePubKey(order.VUtxoPubKey[:])
		if err != nil {
			return nil, domain.ValidationError{Reason: "invalid vUtxoPublicKey: " + err.Error()}
		}

		var inputsSum uint64
		inputArgs := make([]psetv2.InputArgs, 0, len(order.Coins))
		for _, coin := range order.Coins {
			inputsSum += coin.Value
			inputArgs = append(inputArgs, psetv2.InputArgs{Txid: coin.TxID, TxIndex: coin.Index})
		}
		if err := updater.AddInputs(inputArgs); err != nil {
			return nil, err
		}
		baseIndex := len(updater.Pset.Inputs) - len(inputArgs)
		for i, coin := range order.Coins {
			utxo, err := witnessUtxo(coin.Asset, coin.Value, coin.Script)
			if err != nil {
				return nil, err
			}
			if err := updater.AddInWitnessUtxo(baseIndex+i, utxo); err != nil {
				return nil, err
			}
		}

		var changeValue uint64
		if order.Change != nil {
			changeValue = order.Change.Value
			changeOutputs = append(changeOutputs, psetv2.OutputArgs{
				Asset:  asset,
				Amount: order.Change.Value,
				Script: order.Change.Script,
			})
		}

		if inputsSum <= feeShare+changeValue {
			return nil, domain.ValidationError{Reason: "lifted amount does not exceed its fee share"}
		}
		stakeholderAmount := inputsSum - changeValue - feeShare

		redeemTree, err := covenant.BuildRedeemTree(ownerPubKey, aspPubKey, redeemTimeoutSeconds)
		if err != nil {
			return nil, err
		}

		stakeholders = append(stakeholders, covenant.Stakeholder{
			Amount: stakeholderAmount,
			Closure: &covenant.FrozenReceiverClosure{
				OwnerPubKey:    ownerPubKey,
				WitnessProgram: redeemTree.WitnessProgram,
			},
		})

		orderResults[fmt.Sprintf("%x", schnorr.SerializePubKey(ownerPubKey))] = LiftOrderResult{
			RedeemTree:        redeemTree,
			StakeholderAmount: stakeholderAmount,
		}
	}

	vUtxoTree, err := covenant.BuildVirtualUtxoTree(aspPubKey, stakeholders, claimTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	var sharedAmount uint64
	for _, sh := range stakeholders {
		sharedAmount += sh.Amount
	}

	outputs := make([]psetv2.OutputArgs, 0, 2+len(changeOutputs))
	outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: sharedAmount, Script: vUtxoTree.OutputScript})
	outputs = append(outputs, changeOutputs...)
	outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: totalFee})

	if err := updater.AddOutputs(outputs); err != nil {
		return nil, err
	}

	psetB64, err := pset.ToBase64()
	if err != nil {
		return nil, err
	}

	return &LiftResult{PsetBase64: psetB64, VUtxoTree: vUtxoTree, Orders: orderResults}, nil
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
