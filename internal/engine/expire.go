package engine

import (
	"github.com/cntr-protocol/cntrd/internal/config"
	"github.com/cntr-protocol/cntrd/internal/storage"
)

// expire runs at the end of every block: unmatched escrow flows back to its
// owners once an order or pending deal has outlived its expiration height.
func (e *Engine) expire(t *storage.Tx, blockIndex int64) error {
	orders, err := t.ExpiredOrders(blockIndex)
	if err != nil {
		return err
	}

	for _, o := range orders {
		if o.GiveID != config.AssetBTC && o.GiveRemaining > 0 {
			if err := t.Credit(o.Source, o.GiveID, o.GiveRemaining); err != nil {
				return err
			}
		}
		if err := t.SetOrderValidity(o.TxIndex, storage.ValidityExpired); err != nil {
			return err
		}
		e.log.Debug("order expired", "tx", o.TxHash, "refund", o.GiveRemaining)
	}

	deals, err := t.ExpiredPendingDeals(blockIndex)
	if err != nil {
		return err
	}

	for _, d := range deals {
		// The forward leg was escrowed by tx1, the backward leg by tx0.
		if d.ForwardID != config.AssetBTC {
			if err := t.Credit(d.Tx1Address, d.ForwardID, d.ForwardAmount); err != nil {
				return err
			}
		}
		if d.BackwardID != config.AssetBTC {
			if err := t.Credit(d.Tx0Address, d.BackwardID, d.BackwardAmount); err != nil {
				return err
			}
		}
		if err := t.SetDealValidity(d.Tx0Hash, d.Tx1Hash, storage.ValidityExpired); err != nil {
			return err
		}
		e.log.Debug("deal expired", "tx0", d.Tx0Hash, "tx1", d.Tx1Hash)
	}

	return nil
}
