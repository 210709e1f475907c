package engine

import (
	"errors"

	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
)

// applySend debits the source and credits the destination. An invalid send is
// recorded with its rejection reason and changes no balances.
func (e *Engine) applySend(t *storage.Tx, tx *storage.Transaction, m *message.Send) error {
	validity := storage.ValidityValid

	switch {
	case m.Amount <= 0:
		validity = "Invalid: zero amount"
	case tx.Destination == "":
		validity = "Invalid: no destination"
	default:
		if _, err := t.Asset(m.AssetID); err != nil {
			if !errors.Is(err, storage.ErrAssetNotFound) {
				return err
			}
			validity = "Invalid: unknown asset"
		}
	}

	if validity == storage.ValidityValid {
		err := t.Debit(tx.Source, m.AssetID, m.Amount)
		switch {
		case errors.Is(err, storage.ErrInsufficientBalance):
			validity = "Invalid: insufficient funds"
		case err != nil:
			return err
		default:
			if err := t.Credit(tx.Destination, m.AssetID, m.Amount); err != nil {
				return err
			}
		}
	}

	e.log.Debug("send", "tx", tx.TxHash, "asset", m.AssetID, "amount", m.Amount, "validity", validity)

	return t.InsertSend(storage.Send{
		TxIndex:     tx.TxIndex,
		TxHash:      tx.TxHash,
		BlockIndex:  tx.BlockIndex,
		Source:      tx.Source,
		Destination: tx.Destination,
		AssetID:     m.AssetID,
		Amount:      m.Amount,
		Validity:    validity,
	})
}
