// Package chain provides the adapter for the upstream Bitcoin-like node.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/cntr-protocol/cntrd/pkg/helpers"
)

// Chain errors.
var (
	ErrNotConnected   = errors.New("not connected to node")
	ErrTxNotFound     = errors.New("transaction not found")
	ErrUnknownNetwork = errors.New("unknown network")
)

// RPC is the interface the follower consumes. The production implementation
// is Client; tests substitute a fake.
type RPC interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlock(ctx context.Context, hash string) (*Block, error)
	GetRawTransaction(ctx context.Context, txid string) (*Tx, error)
	ValidateAddress(ctx context.Context, address string) (bool, error)
}

// Block is the subset of getblock output the indexer needs.
type Block struct {
	Hash string   `json:"hash"`
	Time int64    `json:"time"`
	Tx   []string `json:"tx"`
}

// Tx is a decoded raw transaction (getrawtransaction verbose=1).
type Tx struct {
	TxID string `json:"txid"`
	Vin  []Vin  `json:"vin"`
	Vout []Vout `json:"vout"`
}

// Vin is one transaction input.
type Vin struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Coinbase string `json:"coinbase"`
}

// IsCoinbase returns true for coinbase inputs.
func (v *Vin) IsCoinbase() bool {
	return v.Coinbase != ""
}

// Vout is one transaction output.
type Vout struct {
	// Value is the output amount in decimal coins, kept as json.Number so
	// the conversion to base units stays exact.
	Value        json.Number  `json:"value"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// ScriptPubKey is the decoded output script.
type ScriptPubKey struct {
	Asm       string   `json:"asm"`
	Addresses []string `json:"addresses"`
}

// BaseUnits converts the decimal value to integer base units.
func (v *Vout) BaseUnits() (int64, error) {
	sat, err := helpers.ParseAmount(v.Value.String(), 8)
	if err != nil {
		return 0, fmt.Errorf("bad output value %q: %w", v.Value, err)
	}
	return sat, nil
}

// ParamsForNetwork maps a network name to btcd chain parameters.
func ParamsForNetwork(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
}
