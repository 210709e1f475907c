// Package storage provides the persistent ledger store using SQLite.
//
// The blocks and transactions tables survive restarts; every derived table
// (sends, issuances, orders, deals, btcpayments, assets, balances) is dropped
// and rebuilt by Init so that parser changes never require re-downloading the
// chain. All mutations for one block happen inside a single Tx.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cntr-protocol/cntrd/internal/config"
)

// Validity values shared by all per-message tables. Anything else stored in a
// validity column is a descriptive rejection reason.
const (
	ValidityValid   = "Valid"
	ValidityPending = "Pending"
	ValidityExpired = "Expired"
)

// Storage errors.
var (
	// ErrVersionMismatch is fatal: a ledger file written by another DB
	// version was found (and deleted). The operator must restart to
	// rebuild from the retained chain data.
	ErrVersionMismatch = errors.New("hard fork: deleted ledger database with stale version, restart to rebuild")

	ErrTxNotFound          = errors.New("transaction not found")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDealNotFound        = errors.New("deal not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// Storage provides persistent storage for the ledger.
type Storage struct {
	db     *sql.DB
	dbPath string
}

// Bootstrap seeds one balance at initialisation.
type Bootstrap struct {
	Address string
	AssetID int64
	Amount  int64
}

// ledgerFileName returns the versioned database file name.
func ledgerFileName() string {
	return fmt.Sprintf("ledger.%d.db", config.DBVersion)
}

// New opens (creating if needed) the ledger database. Any ledger file written
// by a different DB version is deleted and ErrVersionMismatch is returned so
// the operator sees the hard fork explicitly.
func New(cfg *Config) (*Storage, error) {
	dataDir := config.ExpandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := sweepStaleVersions(dataDir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, ledgerFileName())

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer, and the parser is strictly
	// sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// sweepStaleVersions deletes ledger databases written by other DB versions.
func sweepStaleVersions(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	current := strconv.Itoa(config.DBVersion)
	stale := false
	for _, entry := range entries {
		parts := strings.Split(entry.Name(), ".")
		if len(parts) != 3 || parts[0] != "ledger" || parts[2] != "db" {
			continue
		}
		if parts[1] == current {
			continue
		}
		if err := os.Remove(filepath.Join(dataDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove stale ledger %s: %w", entry.Name(), err)
		}
		stale = true
	}

	if stale {
		return ErrVersionMismatch
	}
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the path of the database file.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates the durable tables. Derived tables are owned by Init.
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		block_index INTEGER PRIMARY KEY,
		block_hash TEXT UNIQUE NOT NULL,
		block_time INTEGER NOT NULL
	);

	-- block_index is deliberately NOT unique: a block may carry any number
	-- of protocol transactions.
	CREATE TABLE IF NOT EXISTS transactions (
		tx_index INTEGER PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		block_index INTEGER NOT NULL,
		block_time INTEGER NOT NULL,
		source TEXT NOT NULL,
		destination TEXT,
		btc_amount INTEGER NOT NULL DEFAULT 0,
		fee INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL,
		supported INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_block ON transactions(block_index);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Init rebuilds every derived table, purges chain data from before
// blockFirst, seeds the reserved assets and credits the bootstrap balances.
// Running it twice produces identical state.
func (s *Storage) Init(ctx context.Context, blockFirst int64, bootstrap []Bootstrap) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	derived := `
	DROP TABLE IF EXISTS sends;
	CREATE TABLE sends (
		tx_index INTEGER PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		block_index INTEGER NOT NULL,
		source TEXT NOT NULL,
		destination TEXT,
		asset_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		validity TEXT NOT NULL
	);

	DROP TABLE IF EXISTS issuances;
	CREATE TABLE issuances (
		tx_index INTEGER PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		block_index INTEGER NOT NULL,
		asset_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		divisible INTEGER NOT NULL,
		issuer TEXT NOT NULL,
		validity TEXT NOT NULL
	);

	DROP TABLE IF EXISTS btcpayments;
	CREATE TABLE btcpayments (
		tx_index INTEGER PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		block_index INTEGER NOT NULL,
		source TEXT NOT NULL,
		destination TEXT,
		btc_amount INTEGER NOT NULL,
		tx0_hash TEXT NOT NULL,
		tx1_hash TEXT NOT NULL,
		validity TEXT NOT NULL
	);

	DROP TABLE IF EXISTS orders;
	CREATE TABLE orders (
		tx_index INTEGER PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		block_index INTEGER NOT NULL,
		source TEXT NOT NULL,
		give_id INTEGER NOT NULL,
		give_amount INTEGER NOT NULL,
		give_remaining INTEGER NOT NULL,
		get_id INTEGER NOT NULL,
		get_amount INTEGER NOT NULL,
		ask_price REAL NOT NULL,
		expiration INTEGER NOT NULL,
		fee_required INTEGER NOT NULL,
		fee_provided INTEGER NOT NULL,
		validity TEXT NOT NULL
	);

	CREATE INDEX idx_orders_pair ON orders(give_id, get_id);

	DROP TABLE IF EXISTS deals;
	CREATE TABLE deals (
		tx0_index INTEGER NOT NULL,
		tx0_hash TEXT NOT NULL,
		tx0_address TEXT NOT NULL,
		tx1_index INTEGER NOT NULL,
		tx1_hash TEXT NOT NULL,
		tx1_address TEXT NOT NULL,
		forward_id INTEGER NOT NULL,
		forward_amount INTEGER NOT NULL,
		backward_id INTEGER NOT NULL,
		backward_amount INTEGER NOT NULL,
		tx0_block_index INTEGER NOT NULL,
		tx1_block_index INTEGER NOT NULL,
		tx0_expiration INTEGER NOT NULL,
		tx1_expiration INTEGER NOT NULL,
		validity TEXT NOT NULL,
		PRIMARY KEY (tx0_hash, tx1_hash)
	);

	DROP TABLE IF EXISTS assets;
	CREATE TABLE assets (
		asset_id INTEGER PRIMARY KEY,
		amount INTEGER NOT NULL,
		divisible INTEGER NOT NULL,
		tx_index INTEGER UNIQUE,
		tx_hash TEXT UNIQUE,
		block_index INTEGER,
		issuer TEXT,
		validity TEXT NOT NULL
	);

	DROP TABLE IF EXISTS balances;
	CREATE TABLE balances (
		address TEXT NOT NULL,
		asset_id INTEGER NOT NULL,
		amount INTEGER NOT NULL CHECK (amount >= 0),
		UNIQUE (address, asset_id)
	);
	`

	if _, err := tx.tx.Exec(derived); err != nil {
		return fmt.Errorf("failed to create derived tables: %w", err)
	}

	// Purge chain data from before the first retained block.
	if _, err := tx.tx.Exec(`DELETE FROM blocks WHERE block_index < ?`, blockFirst); err != nil {
		return fmt.Errorf("failed to purge blocks: %w", err)
	}
	if _, err := tx.tx.Exec(`DELETE FROM transactions WHERE block_index < ?`, blockFirst); err != nil {
		return fmt.Errorf("failed to purge transactions: %w", err)
	}

	// Reserved assets: 0 (BTC) and 1 (XCP), no issuer, zero ledger supply.
	for _, assetID := range []int64{config.AssetBTC, config.AssetXCP} {
		_, err := tx.tx.Exec(`
			INSERT INTO assets (asset_id, amount, divisible, tx_index, tx_hash, block_index, issuer, validity)
			VALUES (?, 0, 1, NULL, NULL, NULL, NULL, ?)
		`, assetID, ValidityValid)
		if err != nil {
			return fmt.Errorf("failed to seed asset %d: %w", assetID, err)
		}
	}

	for _, b := range bootstrap {
		if err := tx.Credit(b.Address, b.AssetID, b.Amount); err != nil {
			return fmt.Errorf("failed to credit bootstrap balance: %w", err)
		}
	}

	return tx.Commit()
}

// Tx is a block-scoped database transaction. Either every effect of a block
// commits together or none do.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a block-scoped transaction.
func (s *Storage) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the block's effects.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
