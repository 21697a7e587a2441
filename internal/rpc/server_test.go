package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Klingon-tech/powledger/config"
	"github.com/Klingon-tech/powledger/internal/ledger"
	klog "github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server *Server
	ledger *ledger.Ledger
	url    string
	saves  atomic.Int32
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithConfig(t, config.RPCConfig{})
}

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	opts := ledger.DefaultOptions()
	opts.Difficulty = "0"
	l, err := ledger.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	env := &testEnv{ledger: l}
	srv := New("127.0.0.1:0", l, rpcCfg)
	srv.SetPersist(func() error {
		env.saves.Add(1)
		return nil
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	env.server = srv
	env.url = fmt.Sprintf("http://%s/", srv.Addr())
	return env
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// decodeResult re-encodes resp.Result into out.
func decodeResult(t *testing.T, resp Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

// withUsers creates alice and bob and funds alice.
func withUsers(t *testing.T, env *testEnv, funds types.Amount) (alice, bob UserResult) {
	t.Helper()
	decodeResult(t, rpcCall(t, env.url, "user_create", UserCreateParam{Name: "alice"}), &alice)
	decodeResult(t, rpcCall(t, env.url, "user_create", UserCreateParam{Name: "bob"}), &bob)
	if funds > 0 {
		decodeResult(t, rpcCall(t, env.url, "ledger_fund", FundParam{Name: "alice", Amount: funds}), &FundResult{})
	}
	return alice, bob
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result ChainInfoResult
	decodeResult(t, rpcCall(t, env.url, "chain_getInfo", nil), &result)

	if result.Height != 0 {
		t.Errorf("height = %d, want 0", result.Height)
	}
	if result.TipHash != env.ledger.Chain().Last().Hash {
		t.Errorf("tip_hash = %q", result.TipHash)
	}
	if result.Difficulty != "0" {
		t.Errorf("difficulty = %q, want 0", result.Difficulty)
	}
	if result.Miner != types.MinerAddress {
		t.Errorf("miner = %q", result.Miner)
	}
}

func TestRPC_ChainGetBlock(t *testing.T) {
	env := setupTestEnv(t)
	genesis := env.ledger.Chain().Last()

	var byHeight BlockResult
	decodeResult(t, rpcCall(t, env.url, "chain_getBlockByHeight", HeightParam{Height: 0}), &byHeight)
	if byHeight.Hash != genesis.Hash || byHeight.Reward != types.Coins(1000) {
		t.Errorf("by height: hash=%s reward=%s", byHeight.Hash, byHeight.Reward)
	}

	var byHash BlockResult
	decodeResult(t, rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: genesis.Hash}), &byHash)
	if byHash.Index != 0 {
		t.Errorf("by hash: index=%d", byHash.Index)
	}

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"height past tip", "chain_getBlockByHeight", HeightParam{Height: 5}, CodeNotFound},
		{"unknown hash", "chain_getBlockByHash", HashParam{Hash: "abcd"}, CodeNotFound},
		{"empty hash", "chain_getBlockByHash", HashParam{}, CodeInvalidParams},
		{"no params", "chain_getBlockByHash", nil, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, env.url, tt.method, tt.params)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}
}

func TestRPC_SendMineFlow(t *testing.T) {
	env := setupTestEnv(t)
	_, bob := withUsers(t, env, types.Coins(10))

	var sent TxResult
	decodeResult(t, rpcCall(t, env.url, "tx_send", SendParam{
		From: "alice", To: "bob", Amount: types.Coins(4), Fee: types.MustParseAmount("0.25"),
	}), &sent)
	if !sent.Pending || sent.Transaction.TxID == "" {
		t.Fatalf("tx_send result = %+v", sent)
	}

	var info MempoolInfoResult
	decodeResult(t, rpcCall(t, env.url, "mempool_getInfo", nil), &info)
	if info.Count != 1 || info.TotalFees != types.MustParseAmount("0.25") {
		t.Errorf("mempool info = %+v, want 1 tx with 0.25 fees", info)
	}

	var blk BlockResult
	decodeResult(t, rpcCall(t, env.url, "mining_mine", nil), &blk)
	if blk.Index != 1 || len(blk.Transactions) != 2 {
		t.Fatalf("mined block index=%d txs=%d", blk.Index, len(blk.Transactions))
	}

	var found TxResult
	decodeResult(t, rpcCall(t, env.url, "chain_getTransaction", TxIDParam{TxID: sent.Transaction.TxID}), &found)
	if found.Pending || found.BlockIndex == nil || *found.BlockIndex != 1 {
		t.Errorf("chain_getTransaction = %+v", found)
	}

	var bal BalanceResult
	decodeResult(t, rpcCall(t, env.url, "utxo_getBalance", AddressParam{Address: bob.Address}), &bal)
	if bal.Balance != types.Coins(4) {
		t.Errorf("bob balance = %s, want 4", bal.Balance)
	}
	var miner BalanceResult
	decodeResult(t, rpcCall(t, env.url, "utxo_getBalance", AddressParam{Address: types.MinerAddress}), &miner)
	if miner.Balance != types.MustParseAmount("3.25") {
		t.Errorf("miner balance = %s, want 3.25", miner.Balance)
	}

	var list UTXOListResult
	decodeResult(t, rpcCall(t, env.url, "utxo_getByAddress", AddressParam{Address: "alice"}), &list)
	if len(list.UTXOs) != 1 || list.UTXOs[0].Amount != types.MustParseAmount("5.75") {
		t.Errorf("alice utxos = %+v", list.UTXOs)
	}

	var valid ValidateResult
	decodeResult(t, rpcCall(t, env.url, "chain_validate", nil), &valid)
	if !valid.Valid {
		t.Errorf("chain_validate = %+v", valid)
	}

	// user_create x2, ledger_fund, tx_send, mining_mine.
	if n := env.saves.Load(); n != 5 {
		t.Errorf("saves = %d, want 5", n)
	}
}

func TestRPC_ChainValidate_Tampered(t *testing.T) {
	env := setupTestEnv(t)
	withUsers(t, env, types.Coins(1))
	decodeResult(t, rpcCall(t, env.url, "tx_send", SendParam{From: "alice", To: "bob", Amount: types.Coins(1)}), &TxResult{})
	decodeResult(t, rpcCall(t, env.url, "mining_mine", nil), &BlockResult{})

	blk, err := env.ledger.Chain().BlockAt(1)
	if err != nil {
		t.Fatalf("BlockAt: %v", err)
	}
	blk.Transactions[1].Outputs[0].Amount = types.Coins(100)

	var res ValidateResult
	decodeResult(t, rpcCall(t, env.url, "chain_validate", nil), &res)
	if res.Valid || res.Index == nil || *res.Index != 1 {
		t.Errorf("chain_validate = %+v, want failure at block 1", res)
	}
}

func TestRPC_LedgerErrors(t *testing.T) {
	env := setupTestEnv(t)
	withUsers(t, env, types.Coins(1))

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"duplicate user", "user_create", UserCreateParam{Name: "alice"}, CodeRejected},
		{"empty user name", "user_create", UserCreateParam{}, CodeInvalidParams},
		{"bad mnemonic", "user_recover", UserRecoverParam{Name: "carol", Mnemonic: "not a phrase"}, CodeInvalidParams},
		{"fund unknown", "ledger_fund", FundParam{Name: "carol", Amount: 1}, CodeNotFound},
		{"fund zero", "ledger_fund", FundParam{Name: "alice"}, CodeInvalidParams},
		{"insufficient", "tx_send", SendParam{From: "alice", To: "bob", Amount: types.Coins(2)}, CodeRejected},
		{"unknown recipient", "tx_send", SendParam{From: "alice", To: "carol", Amount: 1}, CodeNotFound},
		{"zero amount", "tx_send", SendParam{From: "alice", To: "bob"}, CodeInvalidParams},
		{"nothing to mine", "mining_mine", nil, CodeRejected},
		{"drop unknown", "mempool_drop", TxIDParam{TxID: "nope"}, CodeNotFound},
		{"unknown tx", "chain_getTransaction", TxIDParam{TxID: "nope"}, CodeNotFound},
		{"bad address", "utxo_getBalance", AddressParam{Address: "carol"}, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, env.url, tt.method, tt.params)
			if resp.Error == nil {
				t.Fatalf("%s: expected error", tt.method)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("%s: code = %d (%s), want %d", tt.method, resp.Error.Code, resp.Error.Message, tt.code)
			}
		})
	}
	// Only the two user_create calls and the funding in withUsers saved.
	if n := env.saves.Load(); n != 3 {
		t.Errorf("saves = %d, want 3", n)
	}
}

func TestRPC_MempoolDrop(t *testing.T) {
	env := setupTestEnv(t)
	withUsers(t, env, types.Coins(2))

	var sent TxResult
	decodeResult(t, rpcCall(t, env.url, "tx_send", SendParam{From: "alice", To: "bob", Amount: types.Coins(2)}), &sent)

	var content MempoolContentResult
	decodeResult(t, rpcCall(t, env.url, "mempool_getContent", nil), &content)
	if len(content.Transactions) != 1 || content.Transactions[0].TxID != sent.Transaction.TxID {
		t.Fatalf("mempool content = %+v", content.Transactions)
	}

	var dropped bool
	decodeResult(t, rpcCall(t, env.url, "mempool_drop", TxIDParam{TxID: sent.Transaction.TxID}), &dropped)
	if !dropped || len(env.ledger.Pending()) != 0 {
		t.Errorf("drop = %v, pending = %d", dropped, len(env.ledger.Pending()))
	}
}

func TestRPC_MineTransactions(t *testing.T) {
	env := setupTestEnv(t)
	withUsers(t, env, types.Coins(3))

	var sent TxResult
	decodeResult(t, rpcCall(t, env.url, "tx_send", SendParam{From: "alice", To: "bob", Amount: types.Coins(1)}), &sent)

	var blk BlockResult
	decodeResult(t, rpcCall(t, env.url, "mining_mineTransactions",
		TxSubmitParam{Transactions: []*tx.Transaction{sent.Transaction}}), &blk)
	if len(blk.Transactions) != 2 || blk.Transactions[1].TxID != sent.Transaction.TxID {
		t.Errorf("mined txs = %d", len(blk.Transactions))
	}

	// Spending it again is rejected.
	resp := rpcCall(t, env.url, "mining_mineTransactions", TxSubmitParam{Transactions: []*tx.Transaction{sent.Transaction}})
	if resp.Error == nil || resp.Error.Code != CodeRejected {
		t.Errorf("replay error = %+v, want CodeRejected", resp.Error)
	}
}

func TestRPC_UserList(t *testing.T) {
	env := setupTestEnv(t)
	withUsers(t, env, types.Coins(7))

	var mn UserResult
	decodeResult(t, rpcCall(t, env.url, "user_create", UserCreateParam{Name: "carol", Mnemonic: true}), &mn)
	if len(strings.Fields(mn.Mnemonic)) != 24 {
		t.Fatalf("mnemonic has %d words", len(strings.Fields(mn.Mnemonic)))
	}

	var users []UserResult
	decodeResult(t, rpcCall(t, env.url, "user_list", nil), &users)
	if len(users) != 3 || users[0].Name != "alice" || users[0].Balance != types.Coins(7) {
		t.Errorf("user_list = %+v", users)
	}
	for _, u := range users {
		if u.Mnemonic != "" {
			t.Errorf("user_list leaked a mnemonic for %s", u.Name)
		}
	}
}

func TestRPC_PersistFailure(t *testing.T) {
	klog.Init("error", false, "")
	opts := ledger.DefaultOptions()
	opts.Difficulty = "0"
	l, err := ledger.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	srv := New("127.0.0.1:0", l)
	srv.SetPersist(func() error { return fmt.Errorf("disk full") })
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	resp := rpcCall(t, "http://"+srv.Addr()+"/", "user_create", UserCreateParam{Name: "alice"})
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("error = %+v, want CodeInternalError", resp.Error)
	}
	if _, err := l.User("alice"); err != nil {
		t.Errorf("change should stay applied: %v", err)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "nonexistent_method", nil)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v, want CodeMethodNotFound", resp.Error)
	}
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeParseError {
		t.Errorf("error = %+v, want CodeParseError", rpcResp.Error)
	}
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", strings.NewReader(`{"jsonrpc":"1.0","method":"chain_getInfo","id":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error = %+v, want CodeInvalidRequest", rpcResp.Error)
	}
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for GET request")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// --- IP Filtering ---

func TestRPC_IPFilter(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		blocked bool
	}{
		{"loopback allowed", []string{"127.0.0.1"}, false},
		{"cidr excludes loopback", []string{"10.0.0.0/8"}, true},
		{"empty allows all", nil, false},
		{"garbage entries ignored", []string{"not-an-ip", "127.0.0.0/8"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvWithConfig(t, config.RPCConfig{AllowedIPs: tt.allowed})

			body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1})
			resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()

			if got := resp.StatusCode == http.StatusForbidden; got != tt.blocked {
				t.Errorf("status = %d, blocked = %v, want %v", resp.StatusCode, got, tt.blocked)
			}
		})
	}
}

// --- CORS ---

func TestRPC_CORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://example.com", "*"},
		{"specific match", []string{"http://localhost:3000"}, "http://localhost:3000", "http://localhost:3000"},
		{"specific mismatch", []string{"http://localhost:3000"}, "http://evil.com", ""},
		{"disabled", nil, "http://example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvWithConfig(t, config.RPCConfig{CORSOrigins: tt.origins})

			body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1})
			req, _ := http.NewRequest(http.MethodPost, env.url, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{CORSOrigins: []string{"*"}})

	req, _ := http.NewRequest(http.MethodOptions, env.url, nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}
