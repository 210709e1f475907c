package engine

import (
	"errors"

	"github.com/cntr-protocol/cntrd/internal/config"
	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
)

// applyBtcPayment settles the BTC leg of a pending deal. The payment must
// come from the BTC debtor, go to the counterparty, and carry at least the
// owed amount; the non-BTC leg is then released from escrow.
func (e *Engine) applyBtcPayment(t *storage.Tx, tx *storage.Transaction, m *message.BtcPayment) error {
	validity := storage.ValidityValid

	var payer, payee, creditTo string
	var owed, creditID, creditAmount int64

	deal, err := t.PendingDeal(m.Tx0Hash, m.Tx1Hash)
	switch {
	case errors.Is(err, storage.ErrDealNotFound):
		validity = "Invalid: no pending deal"
	case err != nil:
		return err
	case deal.BackwardID == config.AssetBTC:
		// tx0 owes BTC to tx1; the forward leg is released to tx0.
		payer, payee, owed = deal.Tx0Address, deal.Tx1Address, deal.BackwardAmount
		creditTo, creditID, creditAmount = deal.Tx0Address, deal.ForwardID, deal.ForwardAmount
	case deal.ForwardID == config.AssetBTC:
		// tx1 owes BTC to tx0; the backward leg is released to tx1.
		payer, payee, owed = deal.Tx1Address, deal.Tx0Address, deal.ForwardAmount
		creditTo, creditID, creditAmount = deal.Tx1Address, deal.BackwardID, deal.BackwardAmount
	default:
		validity = "Invalid: no pending deal"
	}

	if validity == storage.ValidityValid {
		switch {
		case tx.Source != payer:
			validity = "Invalid: wrong source"
		case tx.Destination != payee:
			validity = "Invalid: wrong destination"
		case tx.BtcAmount < owed:
			validity = "Invalid: insufficient payment"
		}
	}

	if validity == storage.ValidityValid {
		if err := t.SetDealValidity(m.Tx0Hash, m.Tx1Hash, storage.ValidityValid); err != nil {
			return err
		}
		if err := t.Credit(creditTo, creditID, creditAmount); err != nil {
			return err
		}
	}

	e.log.Debug("btc payment", "tx", tx.TxHash, "deal", m.Tx0Hash+"/"+m.Tx1Hash, "validity", validity)

	return t.InsertBtcPayment(storage.BtcPayment{
		TxIndex:     tx.TxIndex,
		TxHash:      tx.TxHash,
		BlockIndex:  tx.BlockIndex,
		Source:      tx.Source,
		Destination: tx.Destination,
		BtcAmount:   tx.BtcAmount,
		Tx0Hash:     m.Tx0Hash,
		Tx1Hash:     m.Tx1Hash,
		Validity:    validity,
	})
}
