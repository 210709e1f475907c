package engine

import (
	"errors"

	"github.com/cntr-protocol/cntrd/internal/config"
	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
)

// applyIssuance creates a new asset or augments an existing one, crediting
// the issued amount to the issuer.
func (e *Engine) applyIssuance(t *storage.Tx, tx *storage.Transaction, m *message.Issuance) error {
	validity := storage.ValidityValid
	exists := false

	switch {
	case m.AssetID == config.AssetBTC || m.AssetID == config.AssetXCP:
		validity = "Invalid: reserved asset"
	case m.Amount <= 0:
		validity = "Invalid: zero amount"
	default:
		asset, err := t.Asset(m.AssetID)
		switch {
		case errors.Is(err, storage.ErrAssetNotFound):
			// First issuance of a new asset.
		case err != nil:
			return err
		case asset.Issuer != tx.Source:
			validity = "Invalid: issued by another address"
		case asset.Divisible != m.Divisible:
			validity = "Invalid: divisibility mismatch"
		default:
			exists = true
		}
	}

	if validity == storage.ValidityValid {
		if exists {
			if err := t.AddSupply(m.AssetID, m.Amount); err != nil {
				return err
			}
		} else {
			err := t.CreateAsset(storage.Asset{
				ID:         m.AssetID,
				Amount:     m.Amount,
				Divisible:  m.Divisible,
				TxIndex:    tx.TxIndex,
				TxHash:     tx.TxHash,
				BlockIndex: tx.BlockIndex,
				Issuer:     tx.Source,
				Validity:   storage.ValidityValid,
			})
			if err != nil {
				return err
			}
		}

		if err := t.Credit(tx.Source, m.AssetID, m.Amount); err != nil {
			return err
		}
	}

	e.log.Debug("issuance", "tx", tx.TxHash, "asset", m.AssetID, "amount", m.Amount, "validity", validity)

	return t.InsertIssuance(storage.Issuance{
		TxIndex:    tx.TxIndex,
		TxHash:     tx.TxHash,
		BlockIndex: tx.BlockIndex,
		AssetID:    m.AssetID,
		Amount:     m.Amount,
		Divisible:  m.Divisible,
		Issuer:     tx.Source,
		Validity:   validity,
	})
}
