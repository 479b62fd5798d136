package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"walletsync/pkg/backgroundupdate"
	"walletsync/pkg/config"
	"walletsync/pkg/logger"
	"walletsync/pkg/models"
	"walletsync/pkg/repository"
	"walletsync/pkg/rpc"
	"walletsync/pkg/server"
	"walletsync/pkg/store"
	"walletsync/pkg/stores"
	"walletsync/pkg/streaming"
	"walletsync/pkg/tui"
	"walletsync/pkg/watcher"
)

// Version should be set during build
var Version = "dev"

type options struct {
	test       bool
	json       bool
	configPath string
	version    bool
	server     bool
	port       int
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("walletsync", flag.ContinueOnError)
	fs.BoolVar(&o.test, "t", false, "Test configuration and exit")
	fs.BoolVar(&o.test, "test", false, "Test configuration and exit")
	fs.BoolVar(&o.json, "json", false, "Output test results as JSON")
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.BoolVar(&o.server, "server", false, "Run in headless server mode")
	fs.IntVar(&o.port, "port", 0, "Port for API server (overrides config)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.configPath == "" && fs.NArg() > 0 {
		o.configPath = fs.Arg(0)
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Printf("walletsync version %s\n", Version)
		return 0
	}

	path, err := config.GetConfigPath(opts.configPath)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		return 1
	}
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		return 1
	}
	if opts.port > 0 {
		cfg.Port = opts.port
	}

	if opts.test {
		report := buildReport(context.Background(), path, cfg, rpc.CheckRPC, checkStreaming)
		printReport(os.Stdout, report, opts.json)
		if !report.ValidStructure {
			return 1
		}
		return 0
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("Config error: %s\n", p)
		}
		fmt.Printf("Please fix the config file at %s.\n", path)
		return 1
	}

	logOut, closeLog, err := logOutput(cfg, opts.server)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		return 1
	}
	defer closeLog()
	logger.Configure(cfg.LogLevel, cfg.LogFormat == "json", logOut)
	log := logger.For("main")

	app, err := newApp(cfg)
	if err != nil {
		log.WithError(err).Error("failed to start")
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.watcher.Start(ctx)

	srv := server.NewServer(app.watcher, app.nfts)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start(ctx, cfg.Port) }()

	if opts.server {
		fmt.Printf("Running in server mode on port %d...\n", cfg.Port)
		select {
		case <-ctx.Done():
		case err := <-srvErr:
			if err != nil {
				log.WithError(err).Error("server stopped")
				return 1
			}
		}
		return 0
	}

	if err := tui.Start(app.watcher, Version); err != nil {
		log.WithError(err).Error("dashboard stopped")
		return 1
	}
	return 0
}

// loadConfig reads the optional .env next to the config file, the config
// file and then WALLETSYNC_* overrides.
func loadConfig(path string) (config.Config, error) {
	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// logOutput keeps the dashboard's screen clean by logging to a file unless
// running headless.
func logOutput(cfg config.Config, headless bool) (io.Writer, func(), error) {
	if headless && cfg.LogFile == "" {
		return os.Stderr, func() {}, nil
	}
	file := cfg.LogFile
	if file == "" {
		dir, err := cfg.ResolveDataDir()
		if err != nil {
			return nil, nil, err
		}
		file = filepath.Join(dir, "walletsync.log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

type app struct {
	queue    *store.Queue
	wallets  *stores.WalletsStore
	updates  *backgroundupdate.BackgroundUpdate
	balances *stores.BalanceStore
	nfts     *stores.NFTRegistry
	watcher  *watcher.Watcher
}

func newApp(cfg config.Config) (*app, error) {
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	seed, err := cfg.ParseWallets()
	if err != nil {
		return nil, err
	}

	queue := store.NewQueue()
	wallets := stores.NewWalletsStore(repository.NewJSONFile[stores.WalletsState](dir), queue)
	if err := seedWallets(wallets, seed, cfg.ActiveWallet); err != nil {
		queue.Close()
		return nil, err
	}

	updates := backgroundupdate.New(
		wallets,
		streaming.NewClient(cfg.StreamingURL, streaming.Options{}),
		queue,
		backgroundupdate.Options{ReconnectDelay: cfg.ReconnectDelay()},
	)
	balances := stores.NewBalanceStore(rpc.NewClient(cfg.RPCURLsByNetwork()), 0, queue)
	balances.Attach(updates.Events())

	return &app{
		queue:    queue,
		wallets:  wallets,
		updates:  updates,
		balances: balances,
		nfts:     stores.NewNFTRegistry(wallets, repository.NewJSONFile[models.NFTManagementState](dir), queue),
		watcher:  watcher.NewWatcher(wallets, updates, balances, watcher.Options{}),
	}, nil
}

// Close tears down in dependency order and drains the store queue last.
func (a *app) Close() {
	a.watcher.Close()
	a.nfts.Close()
	a.balances.Close()
	a.updates.Close()
	a.queue.Close()
}

// seedWallets adds the configured wallets the store does not know yet and
// selects the configured active wallet.
func seedWallets(ws *stores.WalletsStore, seed []models.Wallet, active string) error {
	for _, w := range seed {
		if err := ws.AddWallets(w); err != nil && !errors.Is(err, stores.ErrWalletExists) {
			return err
		}
	}
	if active == "" {
		return nil
	}
	w, ok := ws.FindByAddress(active)
	if !ok {
		logger.For("main").WithField("address", active).Warn("configured active wallet not found")
		return nil
	}
	return ws.SetActive(w.Identity())
}

type (
	rpcChecker    func(ctx context.Context, url string) models.RPCResult
	streamChecker func(ctx context.Context, cfg config.Config, wallet models.Wallet) models.RPCResult
)

// buildReport validates cfg and probes every RPC endpoint and the streaming
// endpoint.
func buildReport(ctx context.Context, path string, cfg config.Config, checkRPC rpcChecker, checkStream streamChecker) models.ConfigReport {
	report := models.ConfigReport{
		ConfigPath:      path,
		ValidStructure:  true,
		WalletCount:     len(cfg.Wallets),
		ActiveWallet:    cfg.ActiveWallet,
		StructureErrors: cfg.Validate(),
	}
	if len(report.StructureErrors) > 0 {
		report.ValidStructure = false
		return report
	}

	for _, url := range append(append([]string{}, cfg.RPCURLs...), cfg.TestnetRPCURLs...) {
		report.RPCs = append(report.RPCs, checkRPC(ctx, url))
	}

	wallets, err := cfg.ParseWallets()
	if err == nil && len(wallets) > 0 {
		res := checkStream(ctx, cfg, wallets[0])
		report.Streaming = &res
	}
	return report
}

func checkStreaming(ctx context.Context, cfg config.Config, wallet models.Wallet) models.RPCResult {
	res := models.RPCResult{URL: cfg.StreamingURL, Status: "error"}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	s, err := streaming.NewClient(cfg.StreamingURL, streaming.Options{}).Open(ctx, wallet)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	_ = s.Close()
	res.Status = "ok"
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

func printReport(w io.Writer, report models.ConfigReport, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Fprintf(w, "Testing configuration at: %s\n", report.ConfigPath)
	if !report.ValidStructure {
		for _, e := range report.StructureErrors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
		return
	}
	fmt.Fprintf(w, "Found %d wallets.\n", report.WalletCount)
	for _, r := range report.RPCs {
		printResult(w, "RPC", r)
	}
	if report.Streaming != nil {
		printResult(w, "Stream", *report.Streaming)
	}
}

func printResult(w io.Writer, kind string, r models.RPCResult) {
	if r.Status != "ok" {
		fmt.Fprintf(w, "  %s: %s ... Failed: %s\n", kind, r.URL, r.Error)
		return
	}
	if r.ChainID != 0 {
		fmt.Fprintf(w, "  %s: %s ... OK (ChainID: %d, %dms)\n", kind, r.URL, r.ChainID, r.LatencyMS)
		return
	}
	fmt.Fprintf(w, "  %s: %s ... OK (%dms)\n", kind, r.URL, r.LatencyMS)
}
