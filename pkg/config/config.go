package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"walletsync/pkg/models"
)

const (
	ConfigFileName = ".walletsync.json"
	DataDirName    = ".walletsync"
	EnvPrefix      = "WALLETSYNC_"

	DefaultReconnectDelaySeconds = 3
	DefaultPort                  = 8080
)

// WalletConfig seeds a wallet into the wallet store on first start.
type WalletConfig struct {
	Address string `json:"address"`
	Kind    string `json:"kind,omitempty"`
	Network string `json:"network,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	Wallets               []WalletConfig `json:"wallets"`
	ActiveWallet          string         `json:"active_wallet,omitempty"`
	StreamingURL          string         `json:"streaming_url"`
	RPCURLs               []string       `json:"rpc_urls"`
	TestnetRPCURLs        []string       `json:"testnet_rpc_urls,omitempty"`
	ReconnectDelaySeconds int            `json:"reconnect_delay_seconds"`
	DataDir               string         `json:"data_dir,omitempty"`
	LogLevel              string         `json:"log_level,omitempty"`
	LogFormat             string         `json:"log_format,omitempty"`
	LogFile               string         `json:"log_file,omitempty"`
	Port                  int            `json:"port,omitempty"`
}

func Default() Config {
	return Config{
		Wallets:               []WalletConfig{},
		ReconnectDelaySeconds: DefaultReconnectDelaySeconds,
		LogLevel:              "info",
		LogFormat:             "text",
		Port:                  DefaultPort,
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// LoadConfigFromFile reads path. A missing file yields the defaults.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw struct {
		Config
		Addresses json.RawMessage `json:"addresses"` // Legacy
	}
	raw.Config = Default()
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}
	cfg := raw.Config

	// Migration for legacy config: a plain address list.
	if len(cfg.Wallets) == 0 && len(raw.Addresses) > 0 {
		var strAddrs []string
		if err := json.Unmarshal(raw.Addresses, &strAddrs); err == nil {
			for _, a := range strAddrs {
				cfg.Wallets = append(cfg.Wallets, WalletConfig{Address: a})
			}
		} else {
			var objs []WalletConfig
			if err := json.Unmarshal(raw.Addresses, &objs); err == nil {
				cfg.Wallets = objs
			}
		}
	}
	if cfg.Wallets == nil {
		cfg.Wallets = []WalletConfig{}
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides fields from WALLETSYNC_* variables. WALLETSYNC_WALLETS
// holds a JSON wallet list.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("WALLETS"); ok {
		var wallets []WalletConfig
		if err := json.Unmarshal([]byte(v), &wallets); err != nil {
			return fmt.Errorf("invalid %sWALLETS: %w", EnvPrefix, err)
		}
		c.Wallets = wallets
	}
	if v, ok := get("ACTIVE_WALLET"); ok {
		c.ActiveWallet = v
	}
	if v, ok := get("STREAMING_URL"); ok {
		c.StreamingURL = v
	}
	if v, ok := get("RPC_URLS"); ok {
		c.RPCURLs = splitList(v)
	}
	if v, ok := get("TESTNET_RPC_URLS"); ok {
		c.TestnetRPCURLs = splitList(v)
	}
	if v, ok := get("RECONNECT_DELAY"); ok {
		secs, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %sRECONNECT_DELAY: %w", EnvPrefix, err)
		}
		c.ReconnectDelaySeconds = secs
	}
	if v, ok := get("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := get("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", EnvPrefix, err)
		}
		c.Port = port
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseSeconds accepts "5" or a duration such as "1500ms", rounded up to
// whole seconds.
func parseSeconds(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int((d + time.Second - 1) / time.Second), nil
}

// ReconnectDelay returns the delay before reconnecting a failed stream.
func (c Config) ReconnectDelay() time.Duration {
	if c.ReconnectDelaySeconds <= 0 {
		return DefaultReconnectDelaySeconds * time.Second
	}
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// ResolveDataDir returns DataDir or ~/.walletsync.
func (c Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DataDirName), nil
}

// RPCURLsByNetwork groups the RPC endpoints by network.
func (c Config) RPCURLsByNetwork() map[models.Network][]string {
	return map[models.Network][]string{
		models.NetworkMainnet: c.RPCURLs,
		models.NetworkTestnet: c.TestnetRPCURLs,
	}
}

// ParseWallets validates the configured wallets.
func (c Config) ParseWallets() ([]models.Wallet, error) {
	wallets := make([]models.Wallet, 0, len(c.Wallets))
	for i, wc := range c.Wallets {
		w, err := models.NewWallet(wc.Address, models.WalletKind(wc.Kind), models.Network(wc.Network), wc.Label)
		if err != nil {
			return nil, fmt.Errorf("wallet at index %d: %w", i, err)
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// Validate returns every structural problem of the configuration.
func (c Config) Validate() []string {
	var problems []string
	if strings.TrimSpace(c.StreamingURL) == "" {
		problems = append(problems, "streaming_url is required")
	} else if !strings.HasPrefix(c.StreamingURL, "ws://") && !strings.HasPrefix(c.StreamingURL, "wss://") {
		problems = append(problems, fmt.Sprintf("streaming_url %q must use ws:// or wss://", c.StreamingURL))
	}
	seen := make(map[models.WalletIdentity]bool, len(c.Wallets))
	for i, wc := range c.Wallets {
		w, err := models.NewWallet(wc.Address, models.WalletKind(wc.Kind), models.Network(wc.Network), wc.Label)
		if err != nil {
			problems = append(problems, fmt.Sprintf("wallet at index %d: %v", i, err))
			continue
		}
		if seen[w.Identity()] {
			problems = append(problems, fmt.Sprintf("wallet at index %d is a duplicate", i))
		}
		seen[w.Identity()] = true
	}
	if c.ReconnectDelaySeconds < 0 {
		problems = append(problems, "reconnect_delay_seconds must not be negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", c.Port))
	}
	return problems
}

func SaveConfig(cfg Config, path string) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}
