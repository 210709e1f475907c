package follower

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cntr-protocol/cntrd/internal/chain"
	"github.com/cntr-protocol/cntrd/pkg/helpers"
)

// ErrCoinbase marks a transaction that spends a coinbase input; these are
// dropped entirely.
var ErrCoinbase = errors.New("coinbase transaction")

// TxInfo is the extractor's view of one chain transaction.
type TxInfo struct {
	// Source is the unique input-side address, empty when the inputs
	// disagree or carry no address.
	Source string

	// Destination is the first output with a valid address; BtcAmount is
	// that output's value.
	Destination string
	BtcAmount   int64

	// Fee is the input total minus the output total.
	Fee int64

	// Payload is the data carried in an OP_RETURN output, nil when absent.
	Payload []byte
}

// Extract derives (source, destination, btc_amount, fee, payload) from a
// decoded transaction, fetching each funding transaction to attribute the
// inputs.
func Extract(ctx context.Context, rpc chain.RPC, tx *chain.Tx) (*TxInfo, error) {
	var info TxInfo

	// Collect all possible source addresses.
	sources := make([]string, 0, len(tx.Vin))
	for _, vin := range tx.Vin {
		if vin.IsCoinbase() {
			return nil, ErrCoinbase
		}

		vinTx, err := rpc.GetRawTransaction(ctx, vin.TxID)
		if err != nil {
			return nil, err
		}
		if int(vin.Vout) >= len(vinTx.Vout) {
			return nil, fmt.Errorf("input %s:%d out of range", vin.TxID, vin.Vout)
		}
		vout := vinTx.Vout[vin.Vout]

		value, err := vout.BaseUnits()
		if err != nil {
			return nil, err
		}
		info.Fee += value

		// Funding outputs are assumed non-multisig: the first address
		// is the one that counts.
		if len(vout.ScriptPubKey.Addresses) > 0 {
			sources = append(sources, vout.ScriptPubKey.Addresses[0])
		} else {
			sources = append(sources, "")
		}
	}

	// The source is defined only when every input agrees on it.
	if len(sources) > 0 {
		source := sources[0]
		for _, s := range sources[1:] {
			if s != source {
				source = ""
				break
			}
		}
		info.Source = source
	}

	// Destination is the first output with a valid address.
	for _, vout := range tx.Vout {
		if len(vout.ScriptPubKey.Addresses) == 0 {
			continue
		}
		address := vout.ScriptPubKey.Addresses[0]
		valid, err := rpc.ValidateAddress(ctx, address)
		if err != nil {
			return nil, err
		}
		if valid {
			value, err := vout.BaseUnits()
			if err != nil {
				return nil, err
			}
			info.Destination = address
			info.BtcAmount = value
			break
		}
	}

	// The fee is whatever the outputs leave behind.
	for _, vout := range tx.Vout {
		value, err := vout.BaseUnits()
		if err != nil {
			return nil, err
		}
		info.Fee -= value
	}

	// The payload rides in an OP_RETURN output with a single data push.
	for _, vout := range tx.Vout {
		parts := strings.Split(vout.ScriptPubKey.Asm, " ")
		if len(parts) == 2 && parts[0] == "OP_RETURN" {
			data, err := helpers.HexToBytes(parts[1])
			if err != nil {
				return nil, fmt.Errorf("bad OP_RETURN push in %s: %w", tx.TxID, err)
			}
			info.Payload = data
		}
	}

	return &info, nil
}
