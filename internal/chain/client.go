package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Client talks to a Bitcoin-Core-style node over JSON-RPC.
type Client struct {
	rpcURL     string
	rpcUser    string
	rpcPass    string
	httpClient *http.Client
	requestID  atomic.Uint64

	// params enables offline address validation; when nil every
	// ValidateAddress call goes to the node.
	params *chaincfg.Params
}

// NewClient creates a new JSON-RPC client. params may be nil to validate
// addresses through the node instead of locally.
func NewClient(rpcURL, user, pass string, params *chaincfg.Params) *Client {
	return &Client{
		rpcURL:  rpcURL,
		rpcUser: user,
		rpcPass: pass,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		params: params,
	}
}

// Connect tests the connection to the node.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.GetBlockCount(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// GetBlockCount returns the height of the chain tip.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "getblockcount", []interface{}{})
	if err != nil {
		return 0, err
	}

	var height int64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, err
	}

	return height, nil
}

// GetBlockHash returns the hash of the block at the given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	result, err := c.call(ctx, "getblockhash", []interface{}{height})
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", err
	}

	return hash, nil
}

// GetBlock returns the block with the given hash.
func (c *Client) GetBlock(ctx context.Context, hash string) (*Block, error) {
	result, err := c.call(ctx, "getblock", []interface{}{hash})
	if err != nil {
		return nil, err
	}

	var block Block
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, fmt.Errorf("failed to parse block: %w", err)
	}
	if block.Hash == "" {
		block.Hash = hash
	}

	return &block, nil
}

// GetRawTransaction returns the decoded transaction with the given id.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*Tx, error) {
	result, err := c.call(ctx, "getrawtransaction", []interface{}{txid, 1})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}

	var tx Tx
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}

	return &tx, nil
}

// ValidateAddress reports whether the address is valid for the network.
// With chain parameters configured the check runs locally; otherwise it is
// delegated to the node's validateaddress call.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	if c.params != nil {
		_, err := btcutil.DecodeAddress(address, c.params)
		return err == nil, nil
	}

	result, err := c.call(ctx, "validateaddress", []interface{}{address})
	if err != nil {
		return false, err
	}

	var res struct {
		IsValid bool `json:"isvalid"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return false, err
	}

	return res.IsValid, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if c.rpcUser != "" {
		req.SetBasicAuth(c.rpcUser, c.rpcPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}

// Ensure Client implements RPC.
var _ RPC = (*Client)(nil)
