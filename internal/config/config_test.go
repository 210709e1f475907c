package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", cfg.Network)
	}
	if cfg.Chain.PollInterval != 20*time.Second {
		t.Errorf("PollInterval = %v, want 20s", cfg.Chain.PollInterval)
	}
	if cfg.BlockFirst() != DefaultBlockFirst {
		t.Errorf("BlockFirst() = %d, want %d", cfg.BlockFirst(), DefaultBlockFirst)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg.Network = "regtest"
	cfg.Chain.RPCURL = "http://127.0.0.1:18443"
	cfg.Ledger.BlockFirst = 1
	cfg.Ledger.BootstrapBalances = []BootstrapBalance{
		{Address: "mn6q3dS2EnDUx3bmyWc6D4szJNVGtaR7zc", AssetID: AssetXCP, Amount: 10000 * Unit},
	}

	if err := cfg.Save(ConfigPath(dir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() after save error = %v", err)
	}

	if got.Network != "regtest" {
		t.Errorf("Network = %q, want regtest", got.Network)
	}
	if got.Chain.RPCURL != "http://127.0.0.1:18443" {
		t.Errorf("RPCURL = %q", got.Chain.RPCURL)
	}
	if got.BlockFirst() != 1 {
		t.Errorf("BlockFirst() = %d, want 1", got.BlockFirst())
	}
	if len(got.Ledger.BootstrapBalances) != 1 {
		t.Fatalf("BootstrapBalances = %v, want one entry", got.Ledger.BootstrapBalances)
	}
	b := got.Ledger.BootstrapBalances[0]
	if b.AssetID != AssetXCP || b.Amount != 10000*Unit {
		t.Errorf("bootstrap = %+v", b)
	}
}

func TestPrefixFrozen(t *testing.T) {
	if string(Prefix) != "CNTR" {
		t.Errorf("Prefix = %q, want CNTR", Prefix)
	}
}
