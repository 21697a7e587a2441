package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/Klingon-tech/powledger/internal/ledger"
	"github.com/Klingon-tech/powledger/internal/rpc"
)

// run executes the CLI against datadir and returns its standard output.
func run(t *testing.T, datadir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--datadir", datadir,
		"--backend", "bolt",
		"--difficulty", "0",
		"--log-level", "error",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, datadir string, args ...string) string {
	t.Helper()
	out, err := run(t, datadir, args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	out := mustRun(t, dir, "init")
	if !strings.Contains(out, "Height:     0") {
		t.Errorf("init output missing height 0:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "powledger.conf")); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "state", "state.db")); err != nil {
		t.Errorf("state file not written: %v", err)
	}

	again := mustRun(t, dir, "init")
	genesis := regexp.MustCompile(`Genesis:\s+(\w+)`)
	if genesis.FindString(out) != genesis.FindString(again) {
		t.Errorf("second init replaced the genesis block")
	}
}

func TestPaymentFlow(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "user", "create", "alice")
	mustRun(t, dir, "user", "create", "bob")
	mustRun(t, dir, "fund", "alice", "10")

	out := mustRun(t, dir, "send", "alice", "bob", "4", "--fee", "0.25")
	if !strings.HasPrefix(out, "Payment queued: ") {
		t.Fatalf("send output = %q", out)
	}
	if out := mustRun(t, dir, "pending", "list"); strings.Count(out, "\n") != 2 {
		t.Errorf("pending list should show one payment:\n%s", out)
	}

	out = mustRun(t, dir, "mine")
	if !strings.Contains(out, "Block 1 mined") || !strings.Contains(out, "Payments: 1") {
		t.Errorf("mine output:\n%s", out)
	}

	tests := []struct {
		owner string
		want  string
	}{
		{"alice", "5.75"},
		{"bob", "4"},
		{"MINER", "3.25"},
	}
	for _, tt := range tests {
		t.Run(tt.owner, func(t *testing.T) {
			got := strings.TrimSpace(mustRun(t, dir, "balance", tt.owner))
			if got != tt.want {
				t.Errorf("balance %s = %s, want %s", tt.owner, got, tt.want)
			}
		})
	}

	if _, err := run(t, dir, "mine"); err == nil {
		t.Error("mining an empty pool should fail")
	}
	if out := mustRun(t, dir, "chain", "validate"); !strings.Contains(out, "2 blocks") {
		t.Errorf("chain validate output = %q", out)
	}
	if out := mustRun(t, dir, "chain", "show", "--txs"); !strings.Contains(out, "-> MINER") {
		t.Errorf("chain show --txs missing reward output:\n%s", out)
	}
}

func TestSendErrors(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "user", "create", "alice")
	mustRun(t, dir, "user", "create", "bob")
	mustRun(t, dir, "fund", "alice", "1")

	tests := []struct {
		name string
		args []string
	}{
		{"insufficient", []string{"send", "alice", "bob", "2"}},
		{"unknown sender", []string{"send", "carol", "bob", "1"}},
		{"unknown recipient", []string{"send", "alice", "carol", "1"}},
		{"self", []string{"send", "alice", "alice", "1"}},
		{"bad amount", []string{"send", "alice", "bob", "-1"}},
		{"bad fee", []string{"send", "alice", "bob", "1", "--fee", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, dir, tt.args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}
	if out := mustRun(t, dir, "pending", "list"); strings.Count(out, "\n") != 1 {
		t.Errorf("failed sends left pending payments:\n%s", out)
	}
}

func TestPendingDrop(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "user", "create", "alice")
	mustRun(t, dir, "user", "create", "bob")
	mustRun(t, dir, "fund", "alice", "6")
	txid := strings.TrimSpace(strings.TrimPrefix(mustRun(t, dir, "send", "alice", "bob", "5"), "Payment queued: "))

	lines := strings.Split(strings.TrimSpace(mustRun(t, dir, "pending", "list")), "\n")
	if len(lines) != 2 {
		t.Fatalf("pending list:\n%s", strings.Join(lines, "\n"))
	}
	if row := strings.Fields(lines[1]); len(row) != 4 || row[0] != txid || row[2] != "5" || row[3] != "1" {
		t.Errorf("pending row = %q, want %s with output 5 and the default fee of 1", row, txid)
	}

	if _, err := run(t, dir, "send", "alice", "bob", "1"); err == nil {
		t.Fatal("reserved output was spent twice")
	}
	mustRun(t, dir, "pending", "drop", txid)
	mustRun(t, dir, "send", "alice", "bob", "1")

	if _, err := run(t, dir, "pending", "drop", txid); err == nil {
		t.Error("dropping an unknown txid should fail")
	}
}

func TestUserRecoverAndExport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envKeyfilePassphrase, "keyfile pass")

	out := mustRun(t, dir, "user", "create", "alice", "--mnemonic")
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		t.Fatalf("unexpected output:\n%s", out)
	}
	mnemonic := strings.TrimSpace(lines[1])
	addr := regexp.MustCompile(`Address: (\w+)`).FindStringSubmatch(out)[1]

	out = mustRun(t, dir, "user", "recover", "alice2", "--mnemonic", mnemonic)
	if !strings.Contains(out, addr) {
		t.Errorf("recovered address differs:\n%s", out)
	}

	out = mustRun(t, dir, "user", "export", "alice")
	path := strings.TrimSpace(strings.TrimPrefix(out, "Key exported: "))

	mustRun(t, dir, "reset", "--yes")
	if out := mustRun(t, dir, "user", "list"); strings.Contains(out, "alice") {
		t.Fatalf("reset kept users:\n%s", out)
	}
	if out := mustRun(t, dir, "user", "import", path); !strings.Contains(out, addr) {
		t.Errorf("imported address differs:\n%s", out)
	}

	t.Setenv(envKeyfilePassphrase, "wrong")
	mustRun(t, dir, "reset", "--yes")
	if _, err := run(t, dir, "user", "import", path); err == nil {
		t.Error("import with wrong passphrase should fail")
	}
}

func TestReset_RequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "user", "create", "alice")
	if _, err := run(t, dir, "reset"); err == nil {
		t.Fatal("reset without --yes should fail")
	}
	if out := mustRun(t, dir, "user", "list"); !strings.Contains(out, "alice") {
		t.Errorf("unconfirmed reset removed users:\n%s", out)
	}
}

func TestEncryptedState(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envPassphrase, "state pass")
	mustRun(t, dir, "--encrypt", "user", "create", "alice")
	if out := mustRun(t, dir, "--encrypt", "user", "list"); !strings.Contains(out, "alice") {
		t.Errorf("encrypted state lost users:\n%s", out)
	}

	t.Setenv(envPassphrase, "wrong")
	if _, err := run(t, dir, "--encrypt", "user", "list"); err == nil {
		t.Error("wrong state passphrase should fail")
	}
}

func TestRPCCommand(t *testing.T) {
	opts := ledger.DefaultOptions()
	opts.Difficulty = "0"
	l, err := ledger.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	srv := rpc.New("127.0.0.1:0", l)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	endpoint := "http://" + srv.Addr() + "/"

	dir := t.TempDir()
	mustRun(t, dir, "rpc", "--endpoint", endpoint, "user_create", `{"name":"alice"}`)
	if _, err := l.User("alice"); err != nil {
		t.Fatalf("user_create over rpc: %v", err)
	}
	out := mustRun(t, dir, "rpc", "--endpoint", endpoint, "chain_getInfo")
	if !strings.Contains(out, `"height": 0`) {
		t.Errorf("chain_getInfo output:\n%s", out)
	}

	if _, err := run(t, dir, "rpc", "--endpoint", endpoint, "user_create", "{bad"); err == nil {
		t.Error("malformed params accepted")
	}
	if _, err := run(t, dir, "rpc", "--endpoint", endpoint, "no_such_method"); err == nil {
		t.Error("unknown method should fail")
	}
}
