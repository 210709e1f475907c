package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
)

// newTestServer serves canned JSON-RPC responses keyed by method.
func newTestServer(t *testing.T, results map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64        `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		result, ok := results[req.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     req.ID,
				"result": nil,
				"error":  map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     req.ID,
			"result": result,
			"error":  nil,
		})
	}))
}

func TestGetBlockCount(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{"getblockcount": 278300})
	defer srv.Close()

	client := NewClient(srv.URL, "user", "pass", nil)

	height, err := client.GetBlockCount(context.Background())
	if err != nil {
		t.Fatalf("GetBlockCount() error = %v", err)
	}
	if height != 278300 {
		t.Errorf("GetBlockCount() = %d, want 278300", height)
	}
}

func TestGetBlock(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		"getblockhash": "00000000abcdef",
		"getblock": map[string]interface{}{
			"hash": "00000000abcdef",
			"time": 1386325540,
			"tx":   []string{"aa", "bb"},
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "", "", nil)
	ctx := context.Background()

	hash, err := client.GetBlockHash(ctx, 278300)
	if err != nil {
		t.Fatalf("GetBlockHash() error = %v", err)
	}
	if hash != "00000000abcdef" {
		t.Errorf("GetBlockHash() = %q", hash)
	}

	block, err := client.GetBlock(ctx, hash)
	if err != nil {
		t.Fatalf("GetBlock() error = %v", err)
	}
	if block.Time != 1386325540 || len(block.Tx) != 2 {
		t.Errorf("GetBlock() = %+v", block)
	}
}

func TestGetRawTransactionValues(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		"getrawtransaction": map[string]interface{}{
			"txid": "aa",
			"vin":  []map[string]interface{}{{"txid": "bb", "vout": 0}},
			"vout": []map[string]interface{}{
				{
					"value": json.Number("0.1"),
					"scriptPubKey": map[string]interface{}{
						"asm":       "OP_DUP OP_HASH160 x OP_EQUALVERIFY OP_CHECKSIG",
						"addresses": []string{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
					},
				},
			},
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "", "", nil)

	tx, err := client.GetRawTransaction(context.Background(), "aa")
	if err != nil {
		t.Fatalf("GetRawTransaction() error = %v", err)
	}
	if len(tx.Vin) != 1 || tx.Vin[0].TxID != "bb" {
		t.Errorf("Vin = %+v", tx.Vin)
	}

	sat, err := tx.Vout[0].BaseUnits()
	if err != nil {
		t.Fatalf("BaseUnits() error = %v", err)
	}
	if sat != 10000000 {
		t.Errorf("BaseUnits() = %d, want 10000000", sat)
	}
}

func TestValidateAddressRPC(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		"validateaddress": map[string]interface{}{"isvalid": true},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "", "", nil)

	valid, err := client.ValidateAddress(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("ValidateAddress() error = %v", err)
	}
	if !valid {
		t.Error("ValidateAddress() = false, want true")
	}
}

func TestValidateAddressOffline(t *testing.T) {
	// No server: offline validation must not touch the network.
	client := NewClient("http://127.0.0.1:0", "", "", &chaincfg.MainNetParams)
	ctx := context.Background()

	valid, err := client.ValidateAddress(ctx, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	if err != nil {
		t.Fatalf("ValidateAddress() error = %v", err)
	}
	if !valid {
		t.Error("genesis address should validate")
	}

	valid, err = client.ValidateAddress(ctx, "not-an-address")
	if err != nil {
		t.Fatalf("ValidateAddress() error = %v", err)
	}
	if valid {
		t.Error("garbage should not validate")
	}
}

func TestRPCError(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{})
	defer srv.Close()

	client := NewClient(srv.URL, "", "", nil)
	if _, err := client.GetBlockCount(context.Background()); err == nil {
		t.Error("GetBlockCount() should surface RPC errors")
	}
}

func TestVinIsCoinbase(t *testing.T) {
	vin := Vin{Coinbase: "04ffff001d"}
	if !vin.IsCoinbase() {
		t.Error("IsCoinbase() = false for coinbase input")
	}
	if (&Vin{TxID: "aa"}).IsCoinbase() {
		t.Error("IsCoinbase() = true for regular input")
	}
}

func TestParamsForNetwork(t *testing.T) {
	for _, network := range []string{"mainnet", "testnet", "regtest"} {
		if _, err := ParamsForNetwork(network); err != nil {
			t.Errorf("ParamsForNetwork(%q) error = %v", network, err)
		}
	}
	if _, err := ParamsForNetwork("banana"); err == nil {
		t.Error("ParamsForNetwork(banana) should fail")
	}
}
