package storage

import (
	"database/sql"
	"fmt"
)

// Block is one accepted chain block.
type Block struct {
	Index int64
	Hash  string
	Time  int64
}

// InsertBlock records a block. Written once per block, after its
// transactions.
func (t *Tx) InsertBlock(b Block) error {
	_, err := t.tx.Exec(`
		INSERT INTO blocks (block_index, block_hash, block_time)
		VALUES (?, ?, ?)
	`, b.Index, b.Hash, b.Time)
	if err != nil {
		return fmt.Errorf("failed to insert block %d: %w", b.Index, err)
	}
	return nil
}

// Blocks returns all persisted blocks in ascending index order.
func (s *Storage) Blocks() ([]Block, error) {
	rows, err := s.db.Query(`
		SELECT block_index, block_hash, block_time
		FROM blocks ORDER BY block_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.Index, &b.Hash, &b.Time); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}

	return blocks, rows.Err()
}

// LastBlockIndex returns the highest persisted block index, or ok=false when
// no blocks exist yet.
func (s *Storage) LastBlockIndex() (int64, bool, error) {
	var index sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(block_index) FROM blocks`).Scan(&index)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query last block: %w", err)
	}
	return index.Int64, index.Valid, nil
}
