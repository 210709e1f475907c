// Package main provides the cntrd daemon: it follows the chain and keeps the
// protocol ledger database up to date.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/cntr-protocol/cntrd/internal/chain"
	"github.com/cntr-protocol/cntrd/internal/config"
	"github.com/cntr-protocol/cntrd/internal/engine"
	"github.com/cntr-protocol/cntrd/internal/follower"
	"github.com/cntr-protocol/cntrd/internal/storage"
	"github.com/cntr-protocol/cntrd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.cntrd", "Data directory")
		network     = flag.String("network", "", "Chain network (mainnet, testnet, regtest), overrides config")
		rpcURL      = flag.String("rpc-url", "", "Node JSON-RPC endpoint, overrides config")
		rpcUser     = flag.String("rpc-user", "", "Node RPC username, overrides config")
		rpcPass     = flag.String("rpc-pass", "", "Node RPC password, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("cntrd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	cfg.Storage.DataDir = *dataDir

	// CLI flags take precedence over the config file.
	if *network != "" {
		cfg.Network = *network
	}
	if *rpcURL != "" {
		cfg.Chain.RPCURL = *rpcURL
	}
	if *rpcUser != "" {
		cfg.Chain.RPCUser = *rpcUser
	}
	if *rpcPass != "" {
		cfg.Chain.RPCPass = *rpcPass
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	var params *chaincfg.Params
	if cfg.Chain.OfflineAddressChecks {
		params, err = chain.ParamsForNetwork(cfg.Network)
		if err != nil {
			log.Fatal("Bad network", "error", err)
		}
	}

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		if errors.Is(err, storage.ErrVersionMismatch) {
			log.Fatal("Hard fork: stale ledger databases deleted; re-run cntrd to rebuild")
		}
		log.Fatal("Failed to open ledger database", "error", err)
	}
	defer store.Close()

	log.Info("Ledger database open", "path", store.Path())

	client := chain.NewClient(cfg.Chain.RPCURL, cfg.Chain.RPCUser, cfg.Chain.RPCPass, params)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatal("Failed to reach node", "url", cfg.Chain.RPCURL, "error", err)
	}

	bootstrap := make([]storage.Bootstrap, 0, len(cfg.Ledger.BootstrapBalances))
	for _, b := range cfg.Ledger.BootstrapBalances {
		bootstrap = append(bootstrap, storage.Bootstrap{
			Address: b.Address,
			AssetID: b.AssetID,
			Amount:  b.Amount,
		})
	}

	eng := engine.New(config.Prefix, log.WithPrefix("engine"))
	f := follower.New(client, store, eng, &follower.Config{
		Prefix:       config.Prefix,
		BlockFirst:   cfg.BlockFirst(),
		PollInterval: cfg.Chain.PollInterval,
		Bootstrap:    bootstrap,
	}, log.WithPrefix("follower"))

	log.Info("Following chain", "network", cfg.Network, "block_first", cfg.BlockFirst())

	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Follower stopped", "error", err)
	}

	log.Info("Shutdown complete")
}
