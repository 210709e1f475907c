// Package engine applies decoded protocol messages to the ledger.
//
// ParseBlock is deterministic: given the same transactions table prefix it
// always produces the same derived state, which is what makes replay from
// genesis safe.
package engine

import (
	"errors"
	"math/big"

	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
	"github.com/cntr-protocol/cntrd/pkg/logging"
)

// Engine routes protocol messages to their handlers.
type Engine struct {
	prefix []byte
	log    *logging.Logger
}

// New creates an engine for the given protocol prefix.
func New(prefix []byte, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Engine{prefix: prefix, log: log}
}

// ParseBlock applies every protocol message recorded for the block, in
// ascending tx_index order, then runs the expirer for that height. It must be
// called inside the same storage transaction that holds the block's rows.
func (e *Engine) ParseBlock(t *storage.Tx, blockIndex int64) error {
	txs, err := t.TransactionsForBlock(blockIndex)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if !message.IsProtocol(e.prefix, tx.Data) {
			continue
		}

		m, err := message.Decode(e.prefix, tx.Data)
		if err != nil {
			// Unknown tags and malformed bodies leave the ledger
			// untouched; the transaction is kept as unsupported.
			var unknown *message.UnknownTagError
			if errors.As(err, &unknown) || errors.Is(err, message.ErrBadBody) {
				e.log.Debug("unsupported payload", "tx", tx.TxHash, "reason", err)
				if err := t.MarkUnsupported(tx.TxHash); err != nil {
					return err
				}
				continue
			}
			return err
		}

		switch m := m.(type) {
		case *message.Send:
			err = e.applySend(t, tx, m)
		case *message.Issuance:
			err = e.applyIssuance(t, tx, m)
		case *message.Order:
			err = e.applyOrder(t, tx, m)
		case *message.BtcPayment:
			err = e.applyBtcPayment(t, tx, m)
		}
		if err != nil {
			return err
		}
	}

	return e.expire(t, blockIndex)
}

// mulDiv returns floor(a*b/c) without intermediate overflow.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(out, big.NewInt(c))
	if !out.IsInt64() {
		return 0
	}
	return out.Int64()
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
