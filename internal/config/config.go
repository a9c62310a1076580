package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for socratic.
type Config struct {
	Treasury   string           `toml:"treasury"` // Identity receiving currency on token purchases
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Fees       FeesConfig       `toml:"fees"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Content    ContentConfig    `toml:"content"`
	Payment    PaymentConfig    `toml:"payment"`
	Server     ServerConfig     `toml:"server"`
}

// FeesConfig overrides the default fee schedule. Zero values fall back to the
// defaults at wiring time.
type FeesConfig struct {
	UploadDocumentCost   uint64 `toml:"upload_document_cost"`
	ChatQueryCost        uint64 `toml:"chat_query_cost"`
	QuizGenerationCost   uint64 `toml:"quiz_generation_cost"`
	ShareDocumentCost    uint64 `toml:"share_document_cost"`
	MinimumStakeAmount   uint64 `toml:"minimum_stake_amount"`
	TokenExchangeRate    uint64 `toml:"token_exchange_rate"`
	StakeCooldownSeconds int64  `toml:"stake_cooldown_seconds"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt document
// content at rest.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig configures the ledger/record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ContentConfig configures the document content store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ContentConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// PaymentConfig configures the payment rail used for token purchases.
type PaymentConfig struct {
	Type string `toml:"type"` // "memory" (development) — production rails plug in here
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           string   `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// NewConfig creates a Config with the provided treasury identity, default
// paths under baseDir, and development-friendly backends.
func NewConfig(treasury, baseDir string) *Config {
	return &Config{
		Treasury: treasury,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "socratic.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "socratic.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Content:  ContentConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "content")},
		Payment:  PaymentConfig{Type: "memory"},
		Server:   ServerConfig{Port: "8080"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
