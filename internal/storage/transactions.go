package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Transaction is one chain transaction that carried a protocol payload.
type Transaction struct {
	TxIndex     int64
	TxHash      string
	BlockIndex  int64
	BlockTime   int64
	Source      string
	Destination string
	BtcAmount   int64
	Fee         int64
	Data        []byte
	Supported   bool
}

func scanTransaction(sc scanner) (*Transaction, error) {
	var tx Transaction
	var destination sql.NullString
	var supported int
	err := sc.Scan(
		&tx.TxIndex, &tx.TxHash, &tx.BlockIndex, &tx.BlockTime,
		&tx.Source, &destination, &tx.BtcAmount, &tx.Fee,
		&tx.Data, &supported,
	)
	if err != nil {
		return nil, err
	}
	tx.Destination = destination.String
	tx.Supported = supported != 0
	return &tx, nil
}

const transactionColumns = `tx_index, tx_hash, block_index, block_time,
	source, destination, btc_amount, fee, data, supported`

// InsertTransaction records one protocol transaction.
func (t *Tx) InsertTransaction(tx Transaction) error {
	var destination interface{}
	if tx.Destination != "" {
		destination = tx.Destination
	}

	_, err := t.tx.Exec(`
		INSERT INTO transactions (
			tx_index, tx_hash, block_index, block_time,
			source, destination, btc_amount, fee, data, supported
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`,
		tx.TxIndex, tx.TxHash, tx.BlockIndex, tx.BlockTime,
		tx.Source, destination, tx.BtcAmount, tx.Fee, tx.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.TxHash, err)
	}
	return nil
}

// HasTransaction reports whether a transaction hash is already recorded.
func (t *Tx) HasTransaction(txHash string) (bool, error) {
	var one int
	err := t.tx.QueryRow(`SELECT 1 FROM transactions WHERE tx_hash = ?`, txHash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return true, nil
}

// MarkUnsupported flags a transaction whose type tag was not recognised.
func (t *Tx) MarkUnsupported(txHash string) error {
	result, err := t.tx.Exec(`
		UPDATE transactions SET supported = 0 WHERE tx_hash = ?
	`, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark transaction unsupported: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTxNotFound
	}
	return nil
}

// TransactionsForBlock returns the block's transactions in ascending
// tx_index order, the order in which messages must be applied.
func (t *Tx) TransactionsForBlock(blockIndex int64) ([]*Transaction, error) {
	rows, err := t.tx.Query(`
		SELECT `+transactionColumns+`
		FROM transactions WHERE block_index = ? ORDER BY tx_index
	`, blockIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list block transactions: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// Transaction returns a transaction by hash.
func (s *Storage) Transaction(txHash string) (*Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions WHERE tx_hash = ?
	`, txHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// MaxTxIndex returns the highest assigned tx_index, or -1 when the
// transactions table is empty.
func (s *Storage) MaxTxIndex() (int64, error) {
	var index sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(tx_index) FROM transactions`).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("failed to query max tx index: %w", err)
	}
	if !index.Valid {
		return -1, nil
	}
	return index.Int64, nil
}
