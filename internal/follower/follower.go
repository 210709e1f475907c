// Package follower owns the block pipeline: initialise the ledger, replay
// the persisted blocks, then poll the chain tip and extend one block at a
// time. Every block commits atomically.
package follower

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cntr-protocol/cntrd/internal/chain"
	"github.com/cntr-protocol/cntrd/internal/engine"
	"github.com/cntr-protocol/cntrd/internal/message"
	"github.com/cntr-protocol/cntrd/internal/storage"
	"github.com/cntr-protocol/cntrd/pkg/logging"
)

// errRPC wraps upstream node failures; the follower retries these after its
// poll interval instead of dying.
var errRPC = errors.New("chain rpc failure")

// Config holds follower settings.
type Config struct {
	Prefix       []byte
	BlockFirst   int64
	PollInterval time.Duration
	Bootstrap    []storage.Bootstrap
}

// Follower drives the indexing pipeline.
type Follower struct {
	rpc    chain.RPC
	store  *storage.Storage
	engine *engine.Engine
	log    *logging.Logger

	prefix       []byte
	blockFirst   int64
	pollInterval time.Duration
	bootstrap    []storage.Bootstrap
}

// New creates a follower.
func New(rpc chain.RPC, store *storage.Storage, eng *engine.Engine, cfg *Config, log *logging.Logger) *Follower {
	if log == nil {
		log = logging.GetDefault()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 20 * time.Second
	}
	return &Follower{
		rpc:          rpc,
		store:        store,
		engine:       eng,
		log:          log,
		prefix:       cfg.Prefix,
		blockFirst:   cfg.BlockFirst,
		pollInterval: poll,
		bootstrap:    cfg.Bootstrap,
	}
}

// Run initialises the ledger, replays the persisted blocks and then tails
// the chain until the context is cancelled. Database errors are fatal; node
// errors are logged and retried.
func (f *Follower) Run(ctx context.Context) error {
	if err := f.store.Init(ctx, f.blockFirst, f.bootstrap); err != nil {
		return err
	}

	if err := f.replay(ctx); err != nil {
		return err
	}

	next, txIndex, err := f.resume()
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tip, err := f.rpc.GetBlockCount(ctx)
		if err != nil {
			f.log.Warn("failed to query chain tip", "error", err)
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		for next <= tip {
			newIndex, err := f.processBlock(ctx, next, txIndex)
			if errors.Is(err, errRPC) {
				f.log.Warn("chain unavailable, retrying", "height", next, "error", err)
				if err := f.sleep(ctx); err != nil {
					return err
				}
				break
			}
			if err != nil {
				return fmt.Errorf("block %d: %w", next, err)
			}
			txIndex = newIndex
			next++

			// The tip may have moved while we were catching up.
			if newTip, err := f.rpc.GetBlockCount(ctx); err == nil {
				tip = newTip
			}
		}

		if next > tip {
			if err := f.sleep(ctx); err != nil {
				return err
			}
		}
	}
}

// replay re-parses every persisted block in order. Init has already rebuilt
// the derived tables, so this recomputes all ledger state from the retained
// chain data.
func (f *Follower) replay(ctx context.Context) error {
	blocks, err := f.store.Blocks()
	if err != nil {
		return err
	}

	if len(blocks) > 0 {
		f.log.Info("replaying persisted blocks", "count", len(blocks))
	}

	for _, b := range blocks {
		t, err := f.store.Begin(ctx)
		if err != nil {
			return err
		}
		if err := f.engine.ParseBlock(t, b.Index); err != nil {
			t.Rollback()
			return fmt.Errorf("replay block %d: %w", b.Index, err)
		}
		if err := t.Commit(); err != nil {
			return fmt.Errorf("replay block %d: %w", b.Index, err)
		}
	}

	return nil
}

// resume computes the next block height and tx_index to assign.
func (f *Follower) resume() (next, txIndex int64, err error) {
	last, ok, err := f.store.LastBlockIndex()
	if err != nil {
		return 0, 0, err
	}
	if ok {
		next = last + 1
	} else {
		next = f.blockFirst
	}

	maxIndex, err := f.store.MaxTxIndex()
	if err != nil {
		return 0, 0, err
	}

	return next, maxIndex + 1, nil
}

// processBlock ingests one block: extract and store its protocol
// transactions, record the block, parse its messages and run the expirer,
// all inside a single storage transaction. It returns the next tx_index to
// assign; on error nothing is persisted and the caller's tx_index stands.
func (f *Follower) processBlock(ctx context.Context, height, txIndex int64) (int64, error) {
	hash, err := f.rpc.GetBlockHash(ctx, height)
	if err != nil {
		return 0, fmt.Errorf("%w: getblockhash %d: %v", errRPC, height, err)
	}

	block, err := f.rpc.GetBlock(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("%w: getblock %s: %v", errRPC, hash, err)
	}

	t, err := f.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer t.Rollback()

	inserted := 0
	for _, txHash := range block.Tx {
		seen, err := t.HasTransaction(txHash)
		if err != nil {
			return 0, err
		}
		if seen {
			txIndex++
			continue
		}

		raw, err := f.rpc.GetRawTransaction(ctx, txHash)
		if err != nil {
			return 0, fmt.Errorf("%w: getrawtransaction %s: %v", errRPC, txHash, err)
		}

		info, err := Extract(ctx, f.rpc, raw)
		if errors.Is(err, ErrCoinbase) {
			txIndex++
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: extract %s: %v", errRPC, txHash, err)
		}

		// Only transactions with a determinable source and a
		// protocol-prefixed payload are retained; the index still
		// advances for every hash examined.
		if info.Source != "" && message.IsProtocol(f.prefix, info.Payload) {
			err := t.InsertTransaction(storage.Transaction{
				TxIndex:     txIndex,
				TxHash:      txHash,
				BlockIndex:  height,
				BlockTime:   block.Time,
				Source:      info.Source,
				Destination: info.Destination,
				BtcAmount:   info.BtcAmount,
				Fee:         info.Fee,
				Data:        info.Payload,
			})
			if err != nil {
				return 0, err
			}
			inserted++
		}
		txIndex++
	}

	if err := t.InsertBlock(storage.Block{Index: height, Hash: hash, Time: block.Time}); err != nil {
		return 0, err
	}

	if err := f.engine.ParseBlock(t, height); err != nil {
		return 0, err
	}

	if err := t.Commit(); err != nil {
		return 0, err
	}

	f.log.Info("block", "height", height, "txs", len(block.Tx), "protocol", inserted)

	return txIndex, nil
}

func (f *Follower) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.pollInterval):
		return nil
	}
}
