package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-elements/psetv2"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/ports"
)

// PoolResult is createPoolTransaction's output: the unsigned PSET,
// the shared vUTXO tree it mints, and the reserved connector indices.
type PoolResult struct {
	PsetBase64 string
	VUtxoTree  *covenant.VirtualUtxoTaprootTree
	// Stakeholders is keyed by owner x-only pubkey hex.
	Stakeholders map[string]covenant.Stakeholder
	Connectors   []uint32
}

// CreatePoolTransaction batches transfers []domain.VirtualTransfer
// into one pool transaction: output 0 is the shared covenant, output
// 1 the miner fee, outputs 2..2+N-1 the per-transfer connectors, and
// an optional trailing ASP change output from coin selection.
func CreatePoolTransaction(
	ctx context.Context,
	wallet ports.Wallet,
	aspPubKey *secp256k1.PublicKey,
	transfers []domain.VirtualTransfer,
	asset string,
	minerFee uint64,
	claimTimeoutSeconds, redeemTimeoutSeconds uint,
) (*PoolResult, error) {
	if len(transfers) == 0 {
		return nil, domain.ValidationError{Reason: "createPoolTransaction requires at least one transfer"}
	}

	stakeholders := make([]covenant.Stakeholder, 0, len(transfers)+1)
	stakeholderByKey := make(map[string]covenant.Stakeholder, len(transfers))

	for _, transfer := range transfers {
		vUtxoValue := transfer.VUtxo.WitnessUtxo.Value

		amount := vUtxoValue
		if transfer.Amount != nil {
			if *transfer.Amount > vUtxoValue {
				return nil, domain.ValidationError{Reason: "transfer amount exceeds vUtxo value"}
			}
			amount = *transfer.Amount
		}

		toPubKey, err := secp256k1.ParsePubKey(transfer.ToPubKey[:])
		if err != nil {
			return nil, domain.ValidationError{Reason: "invalid recipient pubkey: " + err.Error()}
		}

		recipientRedeemTree, err := covenant.BuildRedeemTree(toPubKey, aspPubKey, redeemTimeoutSeconds)
		if err != nil {
			return nil, err
		}
		receiver := covenant.Stakeholder{
			Amount: amount,
			Closure: &covenant.FrozenReceiverClosure{
				OwnerPubKey:    toPubKey,
				WitnessProgram: recipientRedeemTree.WitnessProgram,
			},
		}
		stakeholders = append(stakeholders, receiver)
		stakeholderByKey[fmt.Sprintf("%x", schnorr.SerializePubKey(toPubKey))] = receiver

		if transfer.Amount != nil && *transfer.Amount < vUtxoValue {
			ok, senderClosure, err := covenant.DecodeFrozenReceiverClosure(transfer.RedeemLeaf.Script)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, domain.ValidationError{Reason: "sender redeem leaf does not decompile to FrozenReceiver"}
			}
			senderPubKey := senderClosure.OwnerPubKey
			senderRedeemTree, err := covenant.BuildRedeemTree(senderPubKey, aspPubKey, redeemTimeoutSeconds)
			if err != nil {
				return nil, err
			}
			change := covenant.Stakeholder{
				Amount: vUtxoValue - amount,
				Closure: &covenant.FrozenReceiverClosure{
					OwnerPubKey:    senderPubKey,
					WitnessProgram: senderRedeemTree.WitnessProgram,
				},
			}
			stakeholders = append(stakeholders, change)
			stakeholderByKey[fmt.Sprintf("%x", schnorr.SerializePubKey(senderPubKey))] = change
		}
	}

	var sharedAmount uint64
	for _, sh := range stakeholders {
		sharedAmount += sh.Amount
	}

	vUtxoTree, err := covenant.BuildVirtualUtxoTree(aspPubKey, stakeholders, claimTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	connectorsCount := uint64(len(transfers))
	changeScript, err := wallet.GetChangeScriptPubKey(ctx)
	if err != nil {
		return nil, err
	}

	required := sharedAmount + minerFee + connectorsCount*DustValue
	coins, change, err := wallet.CoinSelect(ctx, required, asset)
	if err != nil {
		return nil, domain.CoinSelectionError{Amount: required, Asset: asset}
	}

	pset, err := psetv2.New(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	updater, err := psetv2.NewUpdater(pset)
	if err != nil {
		return nil, err
	}

	inputArgs := make([]psetv2.InputArgs, 0, len(coins))
	for _, coin := range coins {
		inputArgs = append(inputArgs, psetv2.InputArgs{Txid: coin.TxID, TxIndex: coin.Index})
	}
	if err := updater.AddInputs(inputArgs); err != nil {
		return nil, err
	}
	for i, coin := range coins {
		utxo, err := witnessUtxo(coin.Asset, coin.Value, coin.Script)
		if err != nil {
			return nil, err
		}
		if err := updater.AddInWitnessUtxo(i, utxo); err != nil {
			return nil, err
		}
	}

	outputs := make([]psetv2.OutputArgs, 0, 2+len(transfers)+1)
	outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: sharedAmount, Script: vUtxoTree.OutputScript})
	outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: minerFee})

	connectors := make([]uint32, 0, len(transfers))
	for i := 0; i < len(transfers); i++ {
		connectors = append(connectors, uint32(2+i))
		outputs = append(outputs, psetv2.OutputArgs{Asset: asset, Amount: DustValue, Script: changeScript})
	}

	if change != nil {
		outputs = append(outputs, psetv2.OutputArgs{Asset: change.Asset, Amount: change.Value, Script: change.Script})
	}

	if err := updater.AddOutputs(outputs); err != nil {
		return nil, err
	}

	psetB64, err := pset.ToBase64()
	if err != nil {
		return nil, err
	}

	return &PoolResult{
		PsetBase64:   psetB64,
		VUtxoTree:    vUtxoTree,
		Stakeholders: stakeholderByKey,
		Connectors:   connectors,
	}, nil
}
