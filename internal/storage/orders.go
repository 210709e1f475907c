package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Order is one recorded order message. give_remaining shrinks as the matcher
// fills it; an order is live while it is Valid, has give_remaining left and
// has not passed its expiration height.
type Order struct {
	TxIndex       int64
	TxHash        string
	BlockIndex    int64
	Source        string
	GiveID        int64
	GiveAmount    int64
	GiveRemaining int64
	GetID         int64
	GetAmount     int64
	AskPrice      float64 // advisory; matching uses integer cross-multiplication
	Expiration    int64
	FeeRequired   int64
	FeeProvided   int64
	Validity      string
}

const orderColumns = `tx_index, tx_hash, block_index, source, give_id, give_amount,
	give_remaining, get_id, get_amount, ask_price, expiration,
	fee_required, fee_provided, validity`

func scanOrder(sc scanner) (*Order, error) {
	var o Order
	err := sc.Scan(
		&o.TxIndex, &o.TxHash, &o.BlockIndex, &o.Source,
		&o.GiveID, &o.GiveAmount, &o.GiveRemaining,
		&o.GetID, &o.GetAmount, &o.AskPrice, &o.Expiration,
		&o.FeeRequired, &o.FeeProvided, &o.Validity,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOrder records an order message outcome.
func (t *Tx) InsertOrder(o Order) error {
	_, err := t.tx.Exec(`
		INSERT INTO orders (
			tx_index, tx_hash, block_index, source, give_id, give_amount,
			give_remaining, get_id, get_amount, ask_price, expiration,
			fee_required, fee_provided, validity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.TxIndex, o.TxHash, o.BlockIndex, o.Source, o.GiveID, o.GiveAmount,
		o.GiveRemaining, o.GetID, o.GetAmount, o.AskPrice, o.Expiration,
		o.FeeRequired, o.FeeProvided, o.Validity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.TxHash, err)
	}
	return nil
}

// UpdateOrderRemaining sets the unfilled quantity of an order.
func (t *Tx) UpdateOrderRemaining(txIndex, remaining int64) error {
	result, err := t.tx.Exec(`
		UPDATE orders SET give_remaining = ? WHERE tx_index = ?
	`, remaining, txIndex)
	if err != nil {
		return fmt.Errorf("failed to update order remaining: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderValidity updates the validity of an order.
func (t *Tx) SetOrderValidity(txIndex int64, validity string) error {
	result, err := t.tx.Exec(`
		UPDATE orders SET validity = ? WHERE tx_index = ?
	`, validity, txIndex)
	if err != nil {
		return fmt.Errorf("failed to set order validity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MatchableOrders returns the live counter-orders for the given pair in
// ascending tx_index order (FIFO price priority).
func (t *Tx) MatchableOrders(giveID, getID, currentBlock int64) ([]*Order, error) {
	rows, err := t.tx.Query(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE give_id = ? AND get_id = ?
		  AND validity = ?
		  AND give_remaining > 0
		  AND block_index + expiration >= ?
		ORDER BY tx_index
	`, giveID, getID, ValidityValid, currentBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to list matchable orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ExpiredOrders returns the orders whose expiration height has passed and
// which are still marked Valid.
func (t *Tx) ExpiredOrders(currentBlock int64) ([]*Order, error) {
	rows, err := t.tx.Query(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE validity = ? AND give_remaining > 0 AND block_index + expiration < ?
		ORDER BY tx_index
	`, ValidityValid, currentBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Order returns an order by tx_index.
func (s *Storage) Order(txIndex int64) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(`
		SELECT `+orderColumns+` FROM orders WHERE tx_index = ?
	`, txIndex))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// Orders returns every recorded order in tx_index order.
func (s *Storage) Orders() ([]*Order, error) {
	rows, err := s.db.Query(`
		SELECT ` + orderColumns + ` FROM orders ORDER BY tx_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// OpenGiveRemainingTotal sums the unfilled escrow of live Valid orders
// giving one asset. Used for conservation checks.
func (s *Storage) OpenGiveRemainingTotal(assetID, currentBlock int64) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(give_remaining) FROM orders
		WHERE give_id = ? AND validity = ? AND block_index + expiration >= ?
	`, assetID, ValidityValid, currentBlock).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum open orders: %w", err)
	}
	return total.Int64, nil
}
