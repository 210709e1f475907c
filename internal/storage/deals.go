package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Deal is an immutable match between two orders. tx0 is always the older
// order. forward is what tx0's source receives; backward is what tx1's
// source receives. A deal with a BTC leg starts Pending and becomes Valid
// when the owed BTC payment is observed on the chain.
type Deal struct {
	Tx0Index   int64
	Tx0Hash    string
	Tx0Address string
	Tx1Index   int64
	Tx1Hash    string
	Tx1Address string

	ForwardID      int64
	ForwardAmount  int64
	BackwardID     int64
	BackwardAmount int64

	Tx0BlockIndex int64
	Tx1BlockIndex int64
	Tx0Expiration int64
	Tx1Expiration int64

	Validity string
}

const dealColumns = `tx0_index, tx0_hash, tx0_address, tx1_index, tx1_hash, tx1_address,
	forward_id, forward_amount, backward_id, backward_amount,
	tx0_block_index, tx1_block_index, tx0_expiration, tx1_expiration, validity`

func scanDeal(sc scanner) (*Deal, error) {
	var d Deal
	err := sc.Scan(
		&d.Tx0Index, &d.Tx0Hash, &d.Tx0Address,
		&d.Tx1Index, &d.Tx1Hash, &d.Tx1Address,
		&d.ForwardID, &d.ForwardAmount, &d.BackwardID, &d.BackwardAmount,
		&d.Tx0BlockIndex, &d.Tx1BlockIndex, &d.Tx0Expiration, &d.Tx1Expiration,
		&d.Validity,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDeal records a match.
func (t *Tx) InsertDeal(d Deal) error {
	_, err := t.tx.Exec(`
		INSERT INTO deals (
			tx0_index, tx0_hash, tx0_address, tx1_index, tx1_hash, tx1_address,
			forward_id, forward_amount, backward_id, backward_amount,
			tx0_block_index, tx1_block_index, tx0_expiration, tx1_expiration, validity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.Tx0Index, d.Tx0Hash, d.Tx0Address,
		d.Tx1Index, d.Tx1Hash, d.Tx1Address,
		d.ForwardID, d.ForwardAmount, d.BackwardID, d.BackwardAmount,
		d.Tx0BlockIndex, d.Tx1BlockIndex, d.Tx0Expiration, d.Tx1Expiration,
		d.Validity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deal %s/%s: %w", d.Tx0Hash, d.Tx1Hash, err)
	}
	return nil
}

// PendingDeal returns the Pending deal keyed by its two order hashes.
func (t *Tx) PendingDeal(tx0Hash, tx1Hash string) (*Deal, error) {
	d, err := scanDeal(t.tx.QueryRow(`
		SELECT `+dealColumns+`
		FROM deals WHERE tx0_hash = ? AND tx1_hash = ? AND validity = ?
	`, tx0Hash, tx1Hash, ValidityPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDealNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deal: %w", err)
	}
	return d, nil
}

// SetDealValidity updates a deal's validity.
func (t *Tx) SetDealValidity(tx0Hash, tx1Hash, validity string) error {
	result, err := t.tx.Exec(`
		UPDATE deals SET validity = ? WHERE tx0_hash = ? AND tx1_hash = ?
	`, validity, tx0Hash, tx1Hash)
	if err != nil {
		return fmt.Errorf("failed to set deal validity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDealNotFound
	}
	return nil
}

// ExpiredPendingDeals returns Pending deals for which either side's
// expiration height has passed.
func (t *Tx) ExpiredPendingDeals(currentBlock int64) ([]*Deal, error) {
	rows, err := t.tx.Query(`
		SELECT `+dealColumns+`
		FROM deals
		WHERE validity = ?
		  AND (tx0_block_index + tx0_expiration < ? OR tx1_block_index + tx1_expiration < ?)
		ORDER BY tx0_index, tx1_index
	`, ValidityPending, currentBlock, currentBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired deals: %w", err)
	}
	defer rows.Close()

	var deals []*Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}

	return deals, rows.Err()
}

// Deals returns every recorded deal.
func (s *Storage) Deals() ([]*Deal, error) {
	rows, err := s.db.Query(`
		SELECT ` + dealColumns + ` FROM deals ORDER BY tx0_index, tx1_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	var deals []*Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}

	return deals, rows.Err()
}
