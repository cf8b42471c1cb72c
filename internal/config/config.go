package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"txstatus-backend/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	NATS           NATSConfig           `yaml:"nats"`
	Blockchain     BlockchainConfig     `yaml:"blockchain"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Sweep          SweepConfig          `yaml:"sweep"`
	Admin          AdminConfig          `yaml:"admin"` // Admin API access control configuration
	CORS           CORSConfig           `yaml:"cors"`
	Log            LogConfig            `yaml:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Driver       string `yaml:"driver"` // postgres (default) or sqlite
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
}

// BlockchainConfig Blockchain configuration
type BlockchainConfig struct {
	LookupTimeout time.Duration            `yaml:"lookupTimeout"`
	Networks      map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig one supported ledger network
type NetworkConfig struct {
	ChainID           int64    `yaml:"chainId"`
	Name              string   `yaml:"name"`
	DisplayName       string   `yaml:"displayName"`
	Symbol            string   `yaml:"symbol"`
	Aliases           []string `yaml:"aliases"`
	IsTestnet         bool     `yaml:"isTestnet"`
	RPCEndpoints      []string `yaml:"rpcEndpoints"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	Burst             int      `yaml:"burst"`
}

// ReconciliationConfig polling policy for discovery and confirmation
type ReconciliationConfig struct {
	DiscoveryInterval       time.Duration `yaml:"discoveryInterval"`
	DiscoveryMaxAttempts    int           `yaml:"discoveryMaxAttempts"`
	ConfirmationInterval    time.Duration `yaml:"confirmationInterval"`
	ConfirmationMaxAttempts int           `yaml:"confirmationMaxAttempts"`
	RequiredConfirmations   uint64        `yaml:"requiredConfirmations"`
	NotifyTimeout           time.Duration `yaml:"notifyTimeout"`
}

// SweepConfig periodic stuck-record sweep
type SweepConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	MaxRecords int           `yaml:"maxRecords"`
	StaleAfter time.Duration `yaml:"staleAfter"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges (localhost is always allowed)
	Token      string   `yaml:"token"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// LogConfig logrus level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration with every tunable set to its built-in value.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig Load configuration file, apply defaults and environment overrides, then validate.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Loaded configuration from %s (%d networks)", configPath, len(cfg.Blockchain.Networks))
	return cfg, nil
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultNetworks the built-in network table, without RPC endpoints
func defaultNetworks() map[string]NetworkConfig {
	networks := make(map[string]NetworkConfig)
	for _, info := range utils.DefaultNetworks() {
		networks[info.Name] = NetworkConfig{
			ChainID:     info.NetworkID,
			Name:        info.Name,
			DisplayName: info.DisplayName,
			Symbol:      info.Symbol,
			Aliases:     info.Aliases,
			IsTestnet:   info.IsTestnet,
		}
	}
	return networks
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.NATS.Timeout == 0 {
		cfg.NATS.Timeout = 10
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = 5
	}
	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = -1
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "txstatus"
	}
	if cfg.Blockchain.LookupTimeout == 0 {
		cfg.Blockchain.LookupTimeout = 10 * time.Second
	}
	if len(cfg.Blockchain.Networks) == 0 {
		cfg.Blockchain.Networks = defaultNetworks()
	}
	for key, network := range cfg.Blockchain.Networks {
		if network.Name == "" {
			network.Name = key
		}
		if network.RequestsPerSecond == 0 {
			network.RequestsPerSecond = 10
		}
		if network.Burst == 0 {
			network.Burst = 5
		}
		cfg.Blockchain.Networks[key] = network
	}

	r := &cfg.Reconciliation
	if r.DiscoveryInterval == 0 {
		r.DiscoveryInterval = 2 * time.Second
	}
	if r.DiscoveryMaxAttempts == 0 {
		r.DiscoveryMaxAttempts = 60
	}
	if r.ConfirmationInterval == 0 {
		r.ConfirmationInterval = 10 * time.Second
	}
	if r.ConfirmationMaxAttempts == 0 {
		r.ConfirmationMaxAttempts = 10
	}
	if r.RequiredConfirmations == 0 {
		r.RequiredConfirmations = 1
	}
	if r.NotifyTimeout == 0 {
		r.NotifyTimeout = 5 * time.Second
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 5 * time.Minute
	}
	if cfg.Sweep.MaxRecords == 0 {
		cfg.Sweep.MaxRecords = 50
	}
	if cfg.Sweep.StaleAfter == 0 {
		cfg.Sweep.StaleAfter = 2 * time.Hour
	}

	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = 86400
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// overrideFromEnv Override configuration from environment variables
func overrideFromEnv(cfg *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.NATS.URL = natsURL
		cfg.NATS.Enabled = true
	}
	if natsEnabled := os.Getenv("NATS_ENABLED"); natsEnabled != "" {
		cfg.NATS.Enabled = natsEnabled == "true"
	}

	// Per-network RPC override, e.g. SEPOLIA_RPC_URL=https://a,https://b
	for key, network := range cfg.Blockchain.Networks {
		envRPC := strings.ToUpper(key) + "_RPC_URL"
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			var endpoints []string
			for _, endpoint := range strings.Split(rpcEndpoints, ",") {
				if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
					endpoints = append(endpoints, endpoint)
				}
			}
			network.RPCEndpoints = endpoints
			cfg.Blockchain.Networks[key] = network
		}
	}

	if enabled := os.Getenv("SWEEP_ENABLED"); enabled != "" {
		cfg.Sweep.Enabled = enabled == "true"
	}
	if interval := os.Getenv("SWEEP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Sweep.Interval = d
		}
	}
	if maxRecords := os.Getenv("SWEEP_MAX_RECORDS"); maxRecords != "" {
		if n, err := strconv.Atoi(maxRecords); err == nil {
			cfg.Sweep.MaxRecords = n
		}
	}

	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(corsOrigins, ",")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}

	seen := make(map[int64]string)
	for key, network := range c.Blockchain.Networks {
		if network.ChainID <= 0 {
			errs = append(errs, fmt.Errorf("blockchain.networks.%s.chainId must be positive", key))
			continue
		}
		if other, dup := seen[network.ChainID]; dup {
			errs = append(errs, fmt.Errorf("chainId %d configured twice (%s, %s)", network.ChainID, other, key))
		}
		seen[network.ChainID] = key
		if network.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Errorf("blockchain.networks.%s.requestsPerSecond must not be negative", key))
		}
	}

	r := c.Reconciliation
	if r.DiscoveryInterval < 0 || r.ConfirmationInterval < 0 {
		errs = append(errs, errors.New("reconciliation intervals must not be negative"))
	}
	if r.DiscoveryMaxAttempts < 1 || r.ConfirmationMaxAttempts < 1 {
		errs = append(errs, errors.New("reconciliation max attempts must be at least 1"))
	}

	if c.Sweep.Interval < 0 || c.Sweep.StaleAfter < 0 {
		errs = append(errs, errors.New("sweep durations must not be negative"))
	}
	if c.Sweep.MaxRecords < 1 {
		errs = append(errs, errors.New("sweep.maxRecords must be at least 1"))
	}

	return errors.Join(errs...)
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
