package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Asset is one fungible token type. The reserved assets 0 (BTC) and 1 (XCP)
// have no issuance origin.
type Asset struct {
	ID        int64
	Amount    int64 // cumulative issued supply
	Divisible bool

	// Issuance origin; zero values for the reserved assets.
	TxIndex    int64
	TxHash     string
	BlockIndex int64
	Issuer     string

	Validity string
}

const assetColumns = `asset_id, amount, divisible, tx_index, tx_hash, block_index, issuer, validity`

func scanAsset(sc scanner) (*Asset, error) {
	var a Asset
	var divisible int
	var txIndex, blockIndex sql.NullInt64
	var txHash, issuer sql.NullString
	err := sc.Scan(&a.ID, &a.Amount, &divisible, &txIndex, &txHash, &blockIndex, &issuer, &a.Validity)
	if err != nil {
		return nil, err
	}
	a.Divisible = divisible != 0
	a.TxIndex = txIndex.Int64
	a.TxHash = txHash.String
	a.BlockIndex = blockIndex.Int64
	a.Issuer = issuer.String
	return &a, nil
}

// CreateAsset records a newly issued asset.
func (t *Tx) CreateAsset(a Asset) error {
	divisible := 0
	if a.Divisible {
		divisible = 1
	}

	_, err := t.tx.Exec(`
		INSERT INTO assets (asset_id, amount, divisible, tx_index, tx_hash, block_index, issuer, validity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Amount, divisible, a.TxIndex, a.TxHash, a.BlockIndex, a.Issuer, a.Validity)
	if err != nil {
		return fmt.Errorf("failed to create asset %d: %w", a.ID, err)
	}
	return nil
}

// AddSupply augments the cumulative issued supply of an existing asset.
func (t *Tx) AddSupply(assetID, amount int64) error {
	result, err := t.tx.Exec(`
		UPDATE assets SET amount = amount + ? WHERE asset_id = ?
	`, amount, assetID)
	if err != nil {
		return fmt.Errorf("failed to add supply to asset %d: %w", assetID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// Asset returns an asset by id.
func (t *Tx) Asset(assetID int64) (*Asset, error) {
	return getAsset(t.tx.QueryRow(`
		SELECT `+assetColumns+` FROM assets WHERE asset_id = ?
	`, assetID))
}

// Asset returns an asset by id.
func (s *Storage) Asset(assetID int64) (*Asset, error) {
	return getAsset(s.db.QueryRow(`
		SELECT `+assetColumns+` FROM assets WHERE asset_id = ?
	`, assetID))
}

func getAsset(row *sql.Row) (*Asset, error) {
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// Assets returns every asset ordered by id.
func (s *Storage) Assets() ([]*Asset, error) {
	rows, err := s.db.Query(`
		SELECT ` + assetColumns + ` FROM assets ORDER BY asset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}
