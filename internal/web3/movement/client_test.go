package movement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/web3"
)

type fakeFullnode struct {
	mu          sync.Mutex
	submitted   *SignedTransaction
	encoded     *Transaction
	polls       int
	finalStatus string
}

func (f *fakeFullnode) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chain_id":250,"epoch":"10","ledger_version":"999","block_height":"55","node_role":"full_node"}`))
	})
	mux.HandleFunc("/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, testAddress) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Account not found","error_code":"account_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"sequence_number":"7","authentication_key":"` + testAddress + `"}`))
	})
	mux.HandleFunc("/v1/estimate_gas_price", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"gas_estimate":150}`))
	})
	mux.HandleFunc("/v1/transactions/encode_submission", func(w http.ResponseWriter, r *http.Request) {
		var tx Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			t.Errorf("decode encode_submission: %v", err)
		}
		f.mu.Lock()
		f.encoded = &tx
		f.mu.Unlock()
		_, _ = w.Write([]byte(`"0x68656c6c6f"`))
	})
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		var signed SignedTransaction
		if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		f.mu.Lock()
		f.submitted = &signed
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"type":"pending_transaction","hash":"0xdead"}`))
	})
	mux.HandleFunc("/v1/transactions/by_hash/0xdead", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls++
		polls := f.polls
		f.mu.Unlock()
		switch polls {
		case 1:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found","error_code":"transaction_not_found"}`))
		case 2:
			_, _ = w.Write([]byte(`{"type":"pending_transaction","hash":"0xdead"}`))
		default:
			status := f.finalStatus
			success := status == "Executed successfully"
			body, _ := json.Marshal(map[string]any{
				"type": "user_transaction", "hash": "0xdead", "version": "1000",
				"sender": testAddress, "success": success, "vm_status": status, "gas_used": "12",
			})
			_, _ = w.Write(body)
		}
	})
	mux.HandleFunc("/v1/view", func(w http.ResponseWriter, r *http.Request) {
		var req viewRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Function != "0x1::coin::balance" || len(req.TypeArguments) != 1 || req.TypeArguments[0] != AptosCoin {
			t.Errorf("unexpected view request: %+v", req)
		}
		_, _ = w.Write([]byte(`["250000000"]`))
	})
	return mux
}

func newTestClient(t *testing.T, node *fakeFullnode) *Client {
	t.Helper()
	srv := httptest.NewServer(node.handler(t))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		Network: web3.Network{
			Name:            "bardock",
			FullnodeURL:     srv.URL + "/v1",
			ExplorerURL:     web3.DefaultExplorerURL,
			ExplorerNetwork: "bardock+testnet",
		},
		PollInterval: 5 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitEntryFunction(t *testing.T) {
	node := &fakeFullnode{finalStatus: "Executed successfully"}
	client := newTestClient(t, node)
	acc, err := ParsePrivateKey(testSeed)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}

	fn := web3.NewEntryFunction("0xabc", "PredictionMarkets", "create_market", "Will BTC hit 100k?", "alice")
	result, err := client.SubmitEntryFunction(context.Background(), acc, fn)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Hash != "0xdead" || !result.Success || result.Version != "1000" {
		t.Fatalf("unexpected result: %+v", result)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	if node.encoded == nil || node.submitted == nil {
		t.Fatalf("transaction was not encoded and submitted")
	}
	tx := node.encoded
	if tx.Sender != testAddress || tx.SequenceNumber != "7" || tx.GasUnitPrice != "150" || tx.MaxGasAmount != "200000" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.ExpirationTimestampSecs != "1700000020" {
		t.Fatalf("unexpected expiration: %s", tx.ExpirationTimestampSecs)
	}
	if tx.Payload.Type != "entry_function_payload" || tx.Payload.Function != "0xabc::PredictionMarkets::create_market" {
		t.Fatalf("unexpected payload: %+v", tx.Payload)
	}
	sig := node.submitted.Signature
	if sig.Type != "ed25519_signature" || sig.PublicKey != testPubKey {
		t.Fatalf("unexpected signature envelope: %+v", sig)
	}
	if !strings.HasPrefix(sig.Signature, "0xe1a7fca9") {
		t.Fatalf("signature does not cover the encoded message: %s", sig.Signature)
	}
}

func TestSubmitEntryFunctionVMFailure(t *testing.T) {
	node := &fakeFullnode{finalStatus: "Move abort in 0xabc::PredictionMarkets: 0x1"}
	client := newTestClient(t, node)
	acc, _ := ParsePrivateKey(testSeed)

	result, err := client.SubmitEntryFunction(context.Background(), acc, web3.NewEntryFunction("0xabc", "PredictionMarkets", "create_market"))
	if err == nil {
		t.Fatalf("expected failure for aborted transaction")
	}
	if xerrors.CodeOf(err) != xerrors.CodeChainFailure {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
	if result == nil || result.Success {
		t.Fatalf("failed result should be returned: %+v", result)
	}
	if !strings.Contains(err.Error(), "Move abort") {
		t.Fatalf("vm status missing from error: %v", err)
	}
}

func TestUnknownAccountSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, &fakeFullnode{})
	_, err := client.AccountSequence(context.Background(), "0x1")
	if err == nil {
		t.Fatalf("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorCode != "account_not_found" {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestLedgerInfoAndBalance(t *testing.T) {
	client := newTestClient(t, &fakeFullnode{})
	info, err := client.LedgerInfo(context.Background())
	if err != nil {
		t.Fatalf("ledger info: %v", err)
	}
	if info.ChainID != 250 || info.BlockHeight != "55" {
		t.Fatalf("unexpected ledger info: %+v", info)
	}
	balance, err := client.Balance(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 250000000 {
		t.Fatalf("unexpected balance: %d", balance)
	}
	if got := client.ExplorerURL("0xdead"); got != "https://explorer.movementnetwork.xyz/txn/0xdead?network=bardock+testnet" {
		t.Fatalf("unexpected explorer url: %s", got)
	}
}

func TestNormalizeArguments(t *testing.T) {
	in := []any{json.Number("42"), float64(7), 1.5, "text", true, []any{json.Number("18446744073709551615"), float64(3)}, uint64(9)}
	got := NormalizeArguments(in)
	want := []any{"42", "7", 1.5, "text", true, []any{"18446744073709551615", "3"}, "9"}
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Fatalf("normalize mismatch:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without fullnode url")
	}
}
