package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"FiscalAgent/app/security"
)

// AppConfig holds all agent configuration
type AppConfig struct {
	// Backend is the invoicing backend the agent polls
	Backend BackendConfig `json:"backend"`

	// Printing selects and tunes the delivery adapter
	Printing PrintingConfig `json:"printing"`

	// Bridge configures the embedded local print bridge
	Bridge BridgeConfig `json:"bridge"`

	// Control configures the loopback operations API (status, NCF ranges,
	// manual reprint)
	Control ControlConfig `json:"control"`

	// First run flag
	FirstRun bool `json:"first_run"`
}

// BackendConfig holds the invoicing backend connection settings
type BackendConfig struct {
	URL          string `json:"url"`
	Database     string `json:"database"` // backend database name for the RPC envelope
	APIKey       string `json:"api_key"`
	PollInterval int    `json:"poll_interval_seconds"`
}

// PollIntervalDuration returns the poll interval, defaulting to 5 seconds.
func (c *BackendConfig) PollIntervalDuration() time.Duration {
	if c.PollInterval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollInterval) * time.Second
}

// PrintingConfig selects the delivery adapter and its destination
type PrintingConfig struct {
	// Adapter is "bridge" or "automation"
	Adapter string `json:"adapter"`

	// BridgeURL is the print bridge address; empty with Discover set uses
	// mDNS to find one on the LAN
	BridgeURL   string `json:"bridge_url"`
	BridgeToken string `json:"bridge_token"`
	Discover    bool   `json:"discover"`

	// AutomationURL is the websocket endpoint of the print-automation service
	AutomationURL     string `json:"automation_url"`
	AutomationAPIKey  string `json:"automation_api_key"`
	AutomationPrinter string `json:"automation_printer"`

	// RasterQR switches the fiscal QR to a bitmap for printers without
	// native QR commands
	RasterQR bool `json:"raster_qr"`
}

// BridgeConfig enables and configures the embedded print bridge
type BridgeConfig struct {
	Enabled      bool   `json:"enabled"`
	ListenAddr   string `json:"listen_addr"`
	TokenHash    string `json:"token_hash"`
	Announce     bool   `json:"announce"`
	InstanceName string `json:"instance_name"`

	PrinterType    string `json:"printer_type"`
	PrinterAddress string `json:"printer_address"`
	PrinterPort    int    `json:"printer_port"`
}

// ControlConfig enables and binds the local operations API
type ControlConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// GetConfigDir returns the agent's data directory, creating it if needed
func GetConfigDir() (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		appData = filepath.Join(homeDir, ".config")
	}

	configDir := filepath.Join(appData, "FiscalAgent")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}
	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadConfig loads configuration from config.json, decrypts sensitive fields
// and applies environment overrides
func LoadConfig() (*AppConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := cfg.decryptSensitiveFields(); err != nil {
		return nil, fmt.Errorf("could not decrypt sensitive fields: %w", err)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveConfig saves configuration to config.json after encrypting sensitive fields
func SaveConfig(cfg *AppConfig) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	cfgCopy := *cfg
	if err := cfgCopy.encryptSensitiveFields(); err != nil {
		return fmt.Errorf("could not encrypt sensitive fields: %w", err)
	}

	data, err := json.MarshalIndent(&cfgCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	return nil
}

// ConfigExists checks if config file exists
func ConfigExists() (bool, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDefaultConfig creates a default configuration file
func CreateDefaultConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		Backend: BackendConfig{
			URL:          "http://localhost:8069",
			Database:     "",
			APIKey:       "",
			PollInterval: 5,
		},
		Printing: PrintingConfig{
			Adapter:   "bridge",
			BridgeURL: "http://127.0.0.1:5001",
		},
		Bridge: BridgeConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1:5001",
			PrinterType:    "network",
			PrinterAddress: "192.168.1.100",
			PrinterPort:    9100,
		},
		Control: ControlConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:5002",
		},
		FirstRun: true,
	}

	if err := SaveConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override config.json without
// editing it. Values come from the process environment; main loads .env first.
func (cfg *AppConfig) applyEnvOverrides() {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("BACKEND_DB"); v != "" {
		cfg.Backend.Database = v
	}
	if v := os.Getenv("BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Backend.PollInterval = n
		}
	}
	if v := os.Getenv("PRINT_ADAPTER"); v != "" {
		cfg.Printing.Adapter = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		cfg.Printing.BridgeURL = v
	}
	if v := os.Getenv("AUTOMATION_URL"); v != "" {
		cfg.Printing.AutomationURL = v
	}
	if v := os.Getenv("CONTROL_ADDR"); v != "" {
		cfg.Control.Enabled = true
		cfg.Control.ListenAddr = v
	}
}

// encryptSensitiveFields encrypts sensitive configuration fields
func (cfg *AppConfig) encryptSensitiveFields() error {
	var err error

	if cfg.Backend.APIKey != "" {
		cfg.Backend.APIKey, err = security.Encrypt(cfg.Backend.APIKey)
		if err != nil {
			return fmt.Errorf("could not encrypt backend API key: %w", err)
		}
	}

	if cfg.Printing.BridgeToken != "" {
		cfg.Printing.BridgeToken, err = security.Encrypt(cfg.Printing.BridgeToken)
		if err != nil {
			return fmt.Errorf("could not encrypt bridge token: %w", err)
		}
	}

	if cfg.Printing.AutomationAPIKey != "" {
		cfg.Printing.AutomationAPIKey, err = security.Encrypt(cfg.Printing.AutomationAPIKey)
		if err != nil {
			return fmt.Errorf("could not encrypt automation API key: %w", err)
		}
	}

	return nil
}

// decryptSensitiveFields decrypts sensitive configuration fields.
// If a field is not encrypted (plain text), it leaves it as-is (useful for
// development)
func (cfg *AppConfig) decryptSensitiveFields() error {
	if cfg.Backend.APIKey != "" {
		decrypted, err := security.Decrypt(cfg.Backend.APIKey)
		if err != nil {
			decrypted = cfg.Backend.APIKey
		}
		cfg.Backend.APIKey = decrypted
	}

	if cfg.Printing.BridgeToken != "" {
		decrypted, err := security.Decrypt(cfg.Printing.BridgeToken)
		if err != nil {
			decrypted = cfg.Printing.BridgeToken
		}
		cfg.Printing.BridgeToken = decrypted
	}

	if cfg.Printing.AutomationAPIKey != "" {
		decrypted, err := security.Decrypt(cfg.Printing.AutomationAPIKey)
		if err != nil {
			decrypted = cfg.Printing.AutomationAPIKey
		}
		cfg.Printing.AutomationAPIKey = decrypted
	}

	return nil
}
