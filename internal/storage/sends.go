package storage

import (
	"database/sql"
	"fmt"
)

// Send is one recorded send message, valid or not.
type Send struct {
	TxIndex     int64
	TxHash      string
	BlockIndex  int64
	Source      string
	Destination string
	AssetID     int64
	Amount      int64
	Validity    string
}

// InsertSend records a send message outcome.
func (t *Tx) InsertSend(s Send) error {
	var destination interface{}
	if s.Destination != "" {
		destination = s.Destination
	}

	_, err := t.tx.Exec(`
		INSERT INTO sends (tx_index, tx_hash, block_index, source, destination, asset_id, amount, validity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.TxIndex, s.TxHash, s.BlockIndex, s.Source, destination, s.AssetID, s.Amount, s.Validity)
	if err != nil {
		return fmt.Errorf("failed to insert send %s: %w", s.TxHash, err)
	}
	return nil
}

// Sends returns every recorded send in tx_index order.
func (s *Storage) Sends() ([]Send, error) {
	rows, err := s.db.Query(`
		SELECT tx_index, tx_hash, block_index, source, destination, asset_id, amount, validity
		FROM sends ORDER BY tx_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sends: %w", err)
	}
	defer rows.Close()

	var sends []Send
	for rows.Next() {
		var snd Send
		var destination sql.NullString
		err := rows.Scan(&snd.TxIndex, &snd.TxHash, &snd.BlockIndex, &snd.Source,
			&destination, &snd.AssetID, &snd.Amount, &snd.Validity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan send: %w", err)
		}
		snd.Destination = destination.String
		sends = append(sends, snd)
	}

	return sends, rows.Err()
}
