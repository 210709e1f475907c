package storage

import "fmt"

// Issuance is one recorded issuance message, valid or not.
type Issuance struct {
	TxIndex    int64
	TxHash     string
	BlockIndex int64
	AssetID    int64
	Amount     int64
	Divisible  bool
	Issuer     string
	Validity   string
}

// InsertIssuance records an issuance message outcome.
func (t *Tx) InsertIssuance(i Issuance) error {
	divisible := 0
	if i.Divisible {
		divisible = 1
	}

	_, err := t.tx.Exec(`
		INSERT INTO issuances (tx_index, tx_hash, block_index, asset_id, amount, divisible, issuer, validity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, i.TxIndex, i.TxHash, i.BlockIndex, i.AssetID, i.Amount, divisible, i.Issuer, i.Validity)
	if err != nil {
		return fmt.Errorf("failed to insert issuance %s: %w", i.TxHash, err)
	}
	return nil
}

// Issuances returns every recorded issuance in tx_index order.
func (s *Storage) Issuances() ([]Issuance, error) {
	rows, err := s.db.Query(`
		SELECT tx_index, tx_hash, block_index, asset_id, amount, divisible, issuer, validity
		FROM issuances ORDER BY tx_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	defer rows.Close()

	var issuances []Issuance
	for rows.Next() {
		var iss Issuance
		var divisible int
		err := rows.Scan(&iss.TxIndex, &iss.TxHash, &iss.BlockIndex, &iss.AssetID,
			&iss.Amount, &divisible, &iss.Issuer, &iss.Validity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		iss.Divisible = divisible != 0
		issuances = append(issuances, iss)
	}

	return issuances, rows.Err()
}
