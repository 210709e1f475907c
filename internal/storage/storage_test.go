package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cntr-protocol/cntrd/internal/config"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()

	store, err := New(&Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Init(context.Background(), 0, nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	return store
}

func TestVersionSweep(t *testing.T) {
	dir := t.TempDir()

	stalePath := filepath.Join(dir, "ledger.0.db")
	if err := os.WriteFile(stalePath, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := New(&Config{DataDir: dir})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("New() error = %v, want ErrVersionMismatch", err)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("stale ledger file should have been deleted")
	}

	// A restart after the sweep succeeds.
	store, err := New(&Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() after sweep error = %v", err)
	}
	store.Close()

	want := filepath.Join(dir, fmt.Sprintf("ledger.%d.db", config.DBVersion))
	if _, err := os.Stat(want); err != nil {
		t.Errorf("current ledger file missing: %v", err)
	}
}

func TestInitIdempotent(t *testing.T) {
	store, err := New(&Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	bootstrap := []Bootstrap{
		{Address: "mn6q3dS2EnDUx3bmyWc6D4szJNVGtaR7zc", AssetID: config.AssetXCP, Amount: 10000 * config.Unit},
		{Address: "mnkzHBHRkBWoP9aFtocDe5atxmRfSRHnjR", AssetID: config.AssetXCP, Amount: 10000 * config.Unit},
	}

	snapshot := func() ([]*Asset, []Balance) {
		assets, err := store.Assets()
		if err != nil {
			t.Fatalf("Assets() error = %v", err)
		}
		balances, err := store.Balances()
		if err != nil {
			t.Fatalf("Balances() error = %v", err)
		}
		return assets, balances
	}

	if err := store.Init(context.Background(), 0, bootstrap); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	assets1, balances1 := snapshot()

	if err := store.Init(context.Background(), 0, bootstrap); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	assets2, balances2 := snapshot()

	if !reflect.DeepEqual(assets1, assets2) {
		t.Errorf("assets differ after re-init:\n%+v\n%+v", assets1, assets2)
	}
	if !reflect.DeepEqual(balances1, balances2) {
		t.Errorf("balances differ after re-init:\n%+v\n%+v", balances1, balances2)
	}

	if len(assets1) != 2 {
		t.Fatalf("reserved assets = %d, want 2", len(assets1))
	}
	for i, id := range []int64{config.AssetBTC, config.AssetXCP} {
		if assets1[i].ID != id || assets1[i].Amount != 0 || !assets1[i].Divisible || assets1[i].Issuer != "" {
			t.Errorf("reserved asset %d = %+v", id, assets1[i])
		}
	}

	for _, b := range bootstrap {
		amount, err := store.Balance(b.Address, b.AssetID)
		if err != nil {
			t.Fatalf("Balance() error = %v", err)
		}
		if amount != b.Amount {
			t.Errorf("bootstrap balance %s = %d, want %d", b.Address, amount, b.Amount)
		}
	}
}

func TestCreditDebit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	if err := tx.Credit("addr1", 100, 1000); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := tx.Credit("addr1", 100, 500); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	balance, err := tx.Balance("addr1", 100)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 1500 {
		t.Errorf("balance = %d, want 1500", balance)
	}

	if err := tx.Debit("addr1", 100, 600); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}

	// Debiting more than the balance must fail and change nothing.
	if err := tx.Debit("addr1", 100, 10000); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Debit() error = %v, want ErrInsufficientBalance", err)
	}

	// Debiting an address with no row at all must also fail.
	if err := tx.Debit("addr2", 100, 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Debit(no row) error = %v, want ErrInsufficientBalance", err)
	}

	balance, _ = tx.Balance("addr1", 100)
	if balance != 900 {
		t.Errorf("balance after failed debit = %d, want 900", balance)
	}

	// Unknown holdings read as zero.
	balance, err = tx.Balance("addr3", 100)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 0 {
		t.Errorf("missing balance = %d, want 0", balance)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestBlockAtomicity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Credit("addr1", 100, 1000); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	balance, err := store.Balance("addr1", 100)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 0 {
		t.Errorf("balance after rollback = %d, want 0", balance)
	}
}

func TestTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	// Two protocol transactions in the same block: block_index must not
	// be unique.
	for i := int64(0); i < 2; i++ {
		err := tx.InsertTransaction(Transaction{
			TxIndex:    i,
			TxHash:     fmt.Sprintf("hash%d", i),
			BlockIndex: 5,
			BlockTime:  1000,
			Source:     "addr1",
			Data:       []byte("CNTRdata"),
		})
		if err != nil {
			t.Fatalf("InsertTransaction(%d) error = %v", i, err)
		}
	}

	seen, err := tx.HasTransaction("hash0")
	if err != nil {
		t.Fatalf("HasTransaction() error = %v", err)
	}
	if !seen {
		t.Error("HasTransaction(hash0) = false")
	}

	txs, err := tx.TransactionsForBlock(5)
	if err != nil {
		t.Fatalf("TransactionsForBlock() error = %v", err)
	}
	if len(txs) != 2 || txs[0].TxIndex != 0 || txs[1].TxIndex != 1 {
		t.Errorf("TransactionsForBlock() = %+v", txs)
	}
	if !txs[0].Supported {
		t.Error("new transactions should default to supported")
	}

	if err := tx.MarkUnsupported("hash1"); err != nil {
		t.Fatalf("MarkUnsupported() error = %v", err)
	}
	if err := tx.MarkUnsupported("missing"); !errors.Is(err, ErrTxNotFound) {
		t.Errorf("MarkUnsupported(missing) error = %v, want ErrTxNotFound", err)
	}

	txs, _ = tx.TransactionsForBlock(5)
	if txs[1].Supported {
		t.Error("hash1 should be unsupported")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	maxIndex, err := store.MaxTxIndex()
	if err != nil {
		t.Fatalf("MaxTxIndex() error = %v", err)
	}
	if maxIndex != 1 {
		t.Errorf("MaxTxIndex() = %d, want 1", maxIndex)
	}
}

func TestMaxTxIndexEmpty(t *testing.T) {
	store := newTestStore(t)

	maxIndex, err := store.MaxTxIndex()
	if err != nil {
		t.Fatalf("MaxTxIndex() error = %v", err)
	}
	if maxIndex != -1 {
		t.Errorf("MaxTxIndex() on empty table = %d, want -1", maxIndex)
	}

	if _, ok, err := store.LastBlockIndex(); err != nil || ok {
		t.Errorf("LastBlockIndex() = ok=%v err=%v, want no blocks", ok, err)
	}
}

func TestAssets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	asset := Asset{
		ID: 100, Amount: 1000, Divisible: true,
		TxIndex: 0, TxHash: "hash0", BlockIndex: 5,
		Issuer: "addr1", Validity: ValidityValid,
	}
	if err := tx.CreateAsset(asset); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	if err := tx.AddSupply(100, 500); err != nil {
		t.Fatalf("AddSupply() error = %v", err)
	}
	if err := tx.AddSupply(999, 1); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("AddSupply(999) error = %v, want ErrAssetNotFound", err)
	}

	got, err := tx.Asset(100)
	if err != nil {
		t.Fatalf("Asset() error = %v", err)
	}
	if got.Amount != 1500 || got.Issuer != "addr1" || !got.Divisible {
		t.Errorf("Asset(100) = %+v", got)
	}

	if _, err := tx.Asset(999); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Asset(999) error = %v, want ErrAssetNotFound", err)
	}
}
