package covenant

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
)

const (
	sequenceLocktimeMask        = 0x0000ffff
	sequenceLocktimeTypeFlag    = 1 << 22
	sequenceLocktimeGranularity = 9
	secondsMod                  = 1 << sequenceLocktimeGranularity
	secondsMax                  = sequenceLocktimeMask << sequenceLocktimeGranularity
	sequenceLocktimeDisableFlag = 1 << 31
)

// CLAIM_TIMEOUT is the ASP's claim deadline after pool confirmation:
// 30 days, rounded down to BIP-68's 512-second granularity so that
// BIP68Encode accepts it.
const ClaimTimeoutSeconds = (30 * 24 * 60 * 60 / secondsMod) * secondsMod

// REDEEM_TIMEOUT is the user's claim deadline after broadcasting a redeem
// transaction: 15 days, rounded down to a multiple of 512 seconds. Must
// stay strictly below ClaimTimeoutSeconds so a cooperating user never
// loses funds to the ASP.
const RedeemTimeoutSeconds = (15 * 24 * 60 * 60 / secondsMod) * secondsMod

func init() {
	if RedeemTimeoutSeconds >= ClaimTimeoutSeconds {
		panic("covenant: REDEEM_TIMEOUT must be strictly less than CLAIM_TIMEOUT")
	}
}

// BIP68Encode returns the minimally-encoded script-number push for the
// relative-timelock sequence that locks for the given number of
// seconds, with the time-based flag set. Defined only when seconds is
// a multiple of 512 not exceeding 0xFFFF*512.
func BIP68Encode(seconds uint) ([]byte, error) {
	if seconds%secondsMod != 0 {
		return nil, fmt.Errorf("covenant: seconds must be a multiple of %d", secondsMod)
	}
	if seconds > secondsMax {
		return nil, fmt.Errorf("covenant: seconds too large, max is %d", secondsMax)
	}

	sequence := blockchain.LockTimeToSequence(true, uint32(seconds))

	pushScript, err := txscript.NewScriptBuilder().AddInt64(int64(sequence)).Script()
	if err != nil {
		return nil, err
	}
	pushes, err := txscript.PushedData(pushScript)
	if err != nil {
		return nil, err
	}
	return pushes[0], nil
}

// BIP68Decode decodes a relative-timelock sequence script push back
// into the number of seconds it encodes. Fails if the push is not
// minimally encoded, the disable flag is set, or the sequence is
// block-height-encoded rather than time-encoded.
func BIP68Decode(sequence []byte) (uint, error) {
	scriptNumber, err := txscript.MakeScriptNum(sequence, true, len(sequence))
	if err != nil {
		return 0, err
	}
	asNumber := int64(scriptNumber)

	if asNumber&sequenceLocktimeDisableFlag != 0 {
		return 0, fmt.Errorf("covenant: sequence is disabled")
	}
	if asNumber&sequenceLocktimeTypeFlag == 0 {
		return 0, fmt.Errorf("covenant: sequence is encoded as block number")
	}

	seconds := asNumber & sequenceLocktimeMask << sequenceLocktimeGranularity
	return uint(seconds), nil
}
