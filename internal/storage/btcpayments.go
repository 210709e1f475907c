package storage

import (
	"database/sql"
	"fmt"
)

// BtcPayment is one recorded BTC settlement message, valid or not.
type BtcPayment struct {
	TxIndex     int64
	TxHash      string
	BlockIndex  int64
	Source      string
	Destination string
	BtcAmount   int64
	Tx0Hash     string
	Tx1Hash     string
	Validity    string
}

// InsertBtcPayment records a BTC payment message outcome.
func (t *Tx) InsertBtcPayment(p BtcPayment) error {
	var destination interface{}
	if p.Destination != "" {
		destination = p.Destination
	}

	_, err := t.tx.Exec(`
		INSERT INTO btcpayments (tx_index, tx_hash, block_index, source, destination, btc_amount, tx0_hash, tx1_hash, validity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.TxIndex, p.TxHash, p.BlockIndex, p.Source, destination, p.BtcAmount, p.Tx0Hash, p.Tx1Hash, p.Validity)
	if err != nil {
		return fmt.Errorf("failed to insert btc payment %s: %w", p.TxHash, err)
	}
	return nil
}

// BtcPayments returns every recorded BTC payment in tx_index order.
func (s *Storage) BtcPayments() ([]BtcPayment, error) {
	rows, err := s.db.Query(`
		SELECT tx_index, tx_hash, block_index, source, destination, btc_amount, tx0_hash, tx1_hash, validity
		FROM btcpayments ORDER BY tx_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list btc payments: %w", err)
	}
	defer rows.Close()

	var payments []BtcPayment
	for rows.Next() {
		var p BtcPayment
		var destination sql.NullString
		err := rows.Scan(&p.TxIndex, &p.TxHash, &p.BlockIndex, &p.Source,
			&destination, &p.BtcAmount, &p.Tx0Hash, &p.Tx1Hash, &p.Validity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan btc payment: %w", err)
		}
		p.Destination = destination.String
		payments = append(payments, p)
	}

	return payments, rows.Err()
}
