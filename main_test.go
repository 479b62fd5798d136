package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"walletsync/pkg/config"
	"walletsync/pkg/models"
	"walletsync/pkg/repository"
	"walletsync/pkg/store"
	"walletsync/pkg/stores"
)

const (
	addrA = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	addrB = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want options
	}{
		{"defaults", nil, options{}},
		{"short test", []string{"-t", "-json"}, options{test: true, json: true}},
		{"long test", []string{"-test"}, options{test: true}},
		{"server", []string{"-server", "-port", "9090"}, options{server: true, port: 9090}},
		{"config flag", []string{"-config", "/tmp/a.json"}, options{configPath: "/tmp/a.json"}},
		{"positional config", []string{"/tmp/b.json"}, options{configPath: "/tmp/b.json"}},
		{"flag wins", []string{"-config", "/tmp/a.json", "/tmp/b.json"}, options{configPath: "/tmp/a.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if err != nil {
				t.Fatalf("parseFlags(%v) error: %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseFlags(%v) = %+v; want %+v", tt.args, got, tt.want)
			}
		})
	}

	if _, err := parseFlags([]string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.StreamingURL = "ws://localhost:9000/stream"
	cfg.RPCURLs = []string{"http://rpc-1", "http://rpc-2"}
	cfg.TestnetRPCURLs = []string{"http://testnet-rpc"}
	cfg.Wallets = []config.WalletConfig{{Address: addrA, Label: "Main"}, {Address: addrB, Network: "testnet"}}
	return cfg
}

func TestBuildReport(t *testing.T) {
	var checked []string
	checkRPC := func(ctx context.Context, url string) models.RPCResult {
		checked = append(checked, url)
		return models.RPCResult{URL: url, Status: "ok", ChainID: 1}
	}
	var streamed models.Wallet
	checkStream := func(ctx context.Context, cfg config.Config, w models.Wallet) models.RPCResult {
		streamed = w
		return models.RPCResult{URL: cfg.StreamingURL, Status: "ok"}
	}

	report := buildReport(context.Background(), "/tmp/cfg.json", validConfig(), checkRPC, checkStream)

	if !report.ValidStructure {
		t.Fatalf("expected valid structure, got errors %v", report.StructureErrors)
	}
	if report.WalletCount != 2 {
		t.Errorf("WalletCount = %d; want 2", report.WalletCount)
	}
	want := []string{"http://rpc-1", "http://rpc-2", "http://testnet-rpc"}
	if strings.Join(checked, ",") != strings.Join(want, ",") {
		t.Errorf("checked RPCs %v; want %v", checked, want)
	}
	if len(report.RPCs) != 3 {
		t.Errorf("expected 3 RPC results, got %d", len(report.RPCs))
	}
	if report.Streaming == nil || report.Streaming.Status != "ok" {
		t.Errorf("expected streaming result, got %+v", report.Streaming)
	}
	if !strings.EqualFold(streamed.Address, addrA) {
		t.Errorf("stream checked for %s; want first wallet", streamed.Address)
	}
}

func TestBuildReport_Invalid(t *testing.T) {
	cfg := validConfig()
	cfg.StreamingURL = "http://wrong"
	called := false
	checkRPC := func(ctx context.Context, url string) models.RPCResult {
		called = true
		return models.RPCResult{}
	}

	report := buildReport(context.Background(), "/tmp/cfg.json", cfg, checkRPC, nil)

	if report.ValidStructure {
		t.Error("expected invalid structure")
	}
	if len(report.StructureErrors) != 1 {
		t.Errorf("expected 1 structure error, got %v", report.StructureErrors)
	}
	if called {
		t.Error("RPCs must not be probed for an invalid config")
	}
}

func TestPrintReport(t *testing.T) {
	report := models.ConfigReport{
		ConfigPath:     "/tmp/cfg.json",
		ValidStructure: true,
		WalletCount:    2,
		RPCs: []models.RPCResult{
			{URL: "http://rpc-1", Status: "ok", ChainID: 1, LatencyMS: 12},
			{URL: "http://rpc-2", Status: "error", Error: "refused"},
		},
		Streaming: &models.RPCResult{URL: "ws://stream", Status: "ok", LatencyMS: 3},
	}

	var buf bytes.Buffer
	printReport(&buf, report, false)
	out := buf.String()
	for _, want := range []string{
		"Found 2 wallets.",
		"RPC: http://rpc-1 ... OK (ChainID: 1, 12ms)",
		"RPC: http://rpc-2 ... Failed: refused",
		"Stream: ws://stream ... OK (3ms)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printReport(&buf, report, true)
	var decoded models.ConfigReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	if decoded.WalletCount != 2 || len(decoded.RPCs) != 2 {
		t.Errorf("unexpected decoded report %+v", decoded)
	}
}

func TestSeedWallets(t *testing.T) {
	q := store.NewQueue()
	defer q.Close()
	ws := stores.NewWalletsStore(repository.NewMemory[stores.WalletsState](), q)

	seed, err := validConfig().ParseWallets()
	if err != nil {
		t.Fatalf("ParseWallets: %v", err)
	}
	if err := seedWallets(ws, seed, strings.ToLower(addrB)); err != nil {
		t.Fatalf("seedWallets: %v", err)
	}
	// Seeding again keeps the existing wallets.
	if err := seedWallets(ws, seed, ""); err != nil {
		t.Fatalf("second seedWallets: %v", err)
	}

	st := ws.State()
	if len(st.Wallets) != 2 {
		t.Fatalf("expected 2 wallets, got %d", len(st.Wallets))
	}
	if st.Active != seed[1].Identity() {
		t.Errorf("active = %s; want %s", st.Active, seed[1].Identity())
	}

	if err := seedWallets(ws, nil, "0x0000000000000000000000000000000000000001"); err != nil {
		t.Errorf("unknown active wallet should be ignored, got %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	content := `{"streaming_url": "ws://file/stream", "rpc_urls": ["http://file-rpc"], "wallets": [{"address": "` + addrA + `"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WALLETSYNC_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WALLETSYNC_LOG_LEVEL") })
	t.Setenv("WALLETSYNC_STREAMING_URL", "wss://env/stream")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.StreamingURL != "wss://env/stream" {
		t.Errorf("StreamingURL = %q; want env override", cfg.StreamingURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug from .env", cfg.LogLevel)
	}
	if len(cfg.RPCURLs) != 1 || cfg.RPCURLs[0] != "http://file-rpc" {
		t.Errorf("RPCURLs = %v", cfg.RPCURLs)
	}
}

func TestLogOutput(t *testing.T) {
	w, closeLog, err := logOutput(config.Default(), true)
	if err != nil {
		t.Fatalf("logOutput: %v", err)
	}
	closeLog()
	if w != os.Stderr {
		t.Error("headless mode should log to stderr")
	}

	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	w, closeLog, err = logOutput(cfg, false)
	if err != nil {
		t.Fatalf("logOutput: %v", err)
	}
	defer closeLog()
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "walletsync.log")); err != nil {
		t.Errorf("expected log file in data dir: %v", err)
	}
}

func TestCheckStreaming(t *testing.T) {
	accounts := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accounts <- r.URL.Query().Get("accounts")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	wallet, err := models.NewWallet(addrA, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.StreamingURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	res := checkStreaming(context.Background(), cfg, wallet)
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %+v", res)
	}
	if got := <-accounts; got != wallet.Address {
		t.Errorf("accounts = %q; want %q", got, wallet.Address)
	}

	srv.Close()
	res = checkStreaming(context.Background(), cfg, wallet)
	if res.Status != "error" || res.Error == "" {
		t.Errorf("expected error after server shutdown, got %+v", res)
	}
}
