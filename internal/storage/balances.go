package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Balance is one (address, asset) holding.
type Balance struct {
	Address string
	AssetID int64
	Amount  int64
}

// Credit adds amount to the address's holding of the asset, creating the row
// if needed.
func (t *Tx) Credit(address string, assetID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	_, err := t.tx.Exec(`
		INSERT INTO balances (address, asset_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(address, asset_id) DO UPDATE SET
			amount = amount + excluded.amount
	`, address, assetID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %d of asset %d to %s: %w", amount, assetID, address, err)
	}
	return nil
}

// Debit subtracts amount from the address's holding of the asset. It fails
// with ErrInsufficientBalance rather than ever letting a balance go negative.
func (t *Tx) Debit(address string, assetID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	result, err := t.tx.Exec(`
		UPDATE balances SET amount = amount - ?
		WHERE address = ? AND asset_id = ? AND amount >= ?
	`, amount, address, assetID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit %d of asset %d from %s: %w", amount, assetID, address, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Balance returns the address's holding of the asset (zero when no row
// exists).
func (t *Tx) Balance(address string, assetID int64) (int64, error) {
	return balance(t.tx.QueryRow(`
		SELECT amount FROM balances WHERE address = ? AND asset_id = ?
	`, address, assetID))
}

// Balance returns the address's holding of the asset (zero when no row
// exists).
func (s *Storage) Balance(address string, assetID int64) (int64, error) {
	return balance(s.db.QueryRow(`
		SELECT amount FROM balances WHERE address = ? AND asset_id = ?
	`, address, assetID))
}

func balance(row *sql.Row) (int64, error) {
	var amount int64
	err := row.Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return amount, nil
}

// Balances returns every balance row, ordered for stable comparison.
func (s *Storage) Balances() ([]Balance, error) {
	rows, err := s.db.Query(`
		SELECT address, asset_id, amount FROM balances
		ORDER BY address, asset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Address, &b.AssetID, &b.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// AssetBalanceTotal returns the sum of all holdings of one asset.
func (s *Storage) AssetBalanceTotal(assetID int64) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(amount) FROM balances WHERE asset_id = ?
	`, assetID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	return total.Int64, nil
}
