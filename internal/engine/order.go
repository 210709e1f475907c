package engine

import (
	"errors"
	"math/big"

	"github.com/cntr-protocol/cntrd/internal/config"
	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
)

// applyOrder validates and escrows a new order, then runs the matcher
// against the book.
func (e *Engine) applyOrder(t *storage.Tx, tx *storage.Transaction, m *message.Order) error {
	validity := storage.ValidityValid

	switch {
	case m.GiveAmount <= 0 || m.GetAmount <= 0:
		validity = "Invalid: zero amount"
	default:
		for _, assetID := range []int64{m.GiveID, m.GetID} {
			if _, err := t.Asset(assetID); err != nil {
				if !errors.Is(err, storage.ErrAssetNotFound) {
					return err
				}
				validity = "Invalid: unknown asset"
				break
			}
		}
	}

	// Selling BTC needs no ledger escrow: the seller settles the BTC leg
	// on the chain itself.
	if validity == storage.ValidityValid && m.GiveID != config.AssetBTC {
		err := t.Debit(tx.Source, m.GiveID, m.GiveAmount)
		switch {
		case errors.Is(err, storage.ErrInsufficientBalance):
			validity = "Invalid: insufficient funds"
		case err != nil:
			return err
		}
	}

	askPrice := 0.0
	if m.GiveAmount > 0 {
		askPrice = float64(m.GetAmount) / float64(m.GiveAmount)
	}

	order := storage.Order{
		TxIndex:       tx.TxIndex,
		TxHash:        tx.TxHash,
		BlockIndex:    tx.BlockIndex,
		Source:        tx.Source,
		GiveID:        m.GiveID,
		GiveAmount:    m.GiveAmount,
		GiveRemaining: m.GiveAmount,
		GetID:         m.GetID,
		GetAmount:     m.GetAmount,
		AskPrice:      askPrice,
		Expiration:    int64(m.Expiration),
		FeeRequired:   int64(m.FeeRequired),
		FeeProvided:   int64(m.FeeProvided),
		Validity:      validity,
	}

	if err := t.InsertOrder(order); err != nil {
		return err
	}

	e.log.Debug("order", "tx", tx.TxHash,
		"give", m.GiveID, "give_amount", m.GiveAmount,
		"get", m.GetID, "get_amount", m.GetAmount,
		"validity", validity)

	if validity != storage.ValidityValid {
		return nil
	}

	return e.matchOrder(t, &order)
}

// matchOrder fills a newly accepted order against the live counter-orders,
// oldest first. The older order of each pair sets the price.
func (e *Engine) matchOrder(t *storage.Tx, o *storage.Order) error {
	counters, err := t.MatchableOrders(o.GetID, o.GiveID, o.BlockIndex)
	if err != nil {
		return err
	}

	for _, p := range counters {
		if o.GiveRemaining <= 0 {
			break
		}
		if p.TxIndex == o.TxIndex {
			continue
		}
		// A pair with BTC on both legs has nothing on the ledger to
		// settle against.
		if o.GiveID == config.AssetBTC && p.GiveID == config.AssetBTC {
			continue
		}
		if !pricesOverlap(o, p) {
			continue
		}
		// The BTC giver must provide at least the fee its counterparty
		// requires.
		if p.GiveID == config.AssetBTC && p.FeeProvided < o.FeeRequired {
			continue
		}
		if o.GiveID == config.AssetBTC && o.FeeProvided < p.FeeRequired {
			continue
		}

		// Forward is in o's give asset, capped by what p still wants at
		// its own price; backward is the counter-quantity at p's price.
		forward := min64(o.GiveRemaining, mulDiv(p.GetAmount, p.GiveRemaining, p.GiveAmount))
		backward := mulDiv(forward, p.GiveAmount, p.GetAmount)
		if forward <= 0 || backward <= 0 {
			continue
		}

		o.GiveRemaining -= forward
		p.GiveRemaining -= backward

		if err := t.UpdateOrderRemaining(o.TxIndex, o.GiveRemaining); err != nil {
			return err
		}
		if err := t.UpdateOrderRemaining(p.TxIndex, p.GiveRemaining); err != nil {
			return err
		}

		validity := storage.ValidityValid
		if o.GiveID == config.AssetBTC || p.GiveID == config.AssetBTC {
			validity = storage.ValidityPending
		}

		if validity == storage.ValidityValid {
			if err := t.Credit(p.Source, o.GiveID, forward); err != nil {
				return err
			}
			if err := t.Credit(o.Source, p.GiveID, backward); err != nil {
				return err
			}
		}

		deal := storage.Deal{
			Tx0Index:       p.TxIndex,
			Tx0Hash:        p.TxHash,
			Tx0Address:     p.Source,
			Tx1Index:       o.TxIndex,
			Tx1Hash:        o.TxHash,
			Tx1Address:     o.Source,
			ForwardID:      o.GiveID,
			ForwardAmount:  forward,
			BackwardID:     p.GiveID,
			BackwardAmount: backward,
			Tx0BlockIndex:  p.BlockIndex,
			Tx1BlockIndex:  o.BlockIndex,
			Tx0Expiration:  p.Expiration,
			Tx1Expiration:  o.Expiration,
			Validity:       validity,
		}

		if err := t.InsertDeal(deal); err != nil {
			return err
		}

		e.log.Debug("deal", "tx0", p.TxHash, "tx1", o.TxHash,
			"forward", forward, "backward", backward, "validity", validity)
	}

	return nil
}

// pricesOverlap reports whether the two orders' price ranges cross. The
// comparison is integer cross-multiplication; the float ask_price column is
// never consulted.
func pricesOverlap(o, p *storage.Order) bool {
	lhs := new(big.Int).Mul(big.NewInt(o.GetAmount), big.NewInt(p.GetAmount))
	rhs := new(big.Int).Mul(big.NewInt(o.GiveAmount), big.NewInt(p.GiveAmount))
	return lhs.Cmp(rhs) <= 0
}
