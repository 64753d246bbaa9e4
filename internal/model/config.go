package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const appName = "mailcheck"

// IMAPConfig holds the mail server settings shared by every account.
type IMAPConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// CommandTimeout bounds every network call of a session.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`

	// ConnectRetries is how many extra dial attempts are made before a
	// connection failure is reported. Authentication is never retried.
	ConnectRetries int `mapstructure:"connect_retries" yaml:"connect_retries"`

	Folders FolderPaths `mapstructure:"folders" yaml:"folders"`
}

// PollConfig holds the default poll window.
type PollConfig struct {
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
	Limit        int `mapstructure:"limit" yaml:"limit"`
}

// SweepConfig controls polling of many accounts at once.
type SweepConfig struct {
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	AccountTimeout time.Duration `mapstructure:"account_timeout" yaml:"account_timeout"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AdminConfig holds the password gating catalog changes.
type AdminConfig struct {
	Password string `mapstructure:"password" yaml:"password"`
}

// StorageConfig locates the catalog database and the bulk import file.
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path" yaml:"db_path"`
	ImportFile string `mapstructure:"import_file" yaml:"import_file"`
}

// KeyringConfig selects where account secrets are kept.
type KeyringConfig struct {
	Backends []string `mapstructure:"backends" yaml:"backends"`
	FileDir  string   `mapstructure:"file_dir" yaml:"file_dir"`

	// FilePassword encrypts the file backend. When empty the passphrase
	// is asked for on the terminal. It is never written back to disk.
	FilePassword string `mapstructure:"file_password" yaml:"-"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Sweep   SweepConfig   `mapstructure:"sweep" yaml:"sweep"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Admin   AdminConfig   `mapstructure:"admin" yaml:"admin"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Keyring KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":       "http.addr",
	"db":         "storage.db_path",
	"host":       "imap.host",
	"port":       "imap.port",
	"lookback":   "poll.lookback_days",
	"limit":      "poll.limit",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// DataDir returns the directory holding the catalog database and the
// import file, ~/.mailcheck.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailcheck/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := DataDir()
	return &AppConfig{
		IMAP: IMAPConfig{
			Host:           "imap.gmail.com",
			Port:           993,
			CommandTimeout: 30 * time.Second,
			ConnectRetries: 2,
		},
		Poll: PollConfig{
			LookbackDays: 1,
			Limit:        5,
		},
		Sweep: SweepConfig{
			Concurrency:    4,
			AccountTimeout: 2 * time.Minute,
		},
		HTTP:  HTTPConfig{Addr: "127.0.0.1:5000"},
		Admin: AdminConfig{Password: "admin"},
		Storage: StorageConfig{
			DBPath:     filepath.Join(dataDir, "accounts.db"),
			ImportFile: filepath.Join(dataDir, "boites.txt"),
		},
		Keyring: KeyringConfig{
			Backends: []string{"keychain", "secret-service", "wincred", "pass", "file"},
			FileDir:  filepath.Join(dataDir, "credentials"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.command_timeout", cfg.IMAP.CommandTimeout)
	v.SetDefault("imap.connect_retries", cfg.IMAP.ConnectRetries)
	v.SetDefault("imap.folders.inbox", "")
	v.SetDefault("imap.folders.spam", "")
	v.SetDefault("imap.folders.promotions", "")
	v.SetDefault("imap.folders.updates", "")
	v.SetDefault("poll.lookback_days", cfg.Poll.LookbackDays)
	v.SetDefault("poll.limit", cfg.Poll.Limit)
	v.SetDefault("sweep.concurrency", cfg.Sweep.Concurrency)
	v.SetDefault("sweep.account_timeout", cfg.Sweep.AccountTimeout)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("admin.password", cfg.Admin.Password)
	v.SetDefault("storage.db_path", cfg.Storage.DBPath)
	v.SetDefault("storage.import_file", cfg.Storage.ImportFile)
	v.SetDefault("keyring.backends", cfg.Keyring.Backends)
	v.SetDefault("keyring.file_dir", cfg.Keyring.FileDir)
	v.SetDefault("keyring.file_password", "")
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILCHECK_ override the file, and
// any flag in flags that maps to a configuration key overrides both.
// If the file does not exist, defaults are used.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v, defaultAppConfig())

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("admin.password", "MAILCHECK_ADMIN_PASSWORD", "ADMIN_PASSWORD"); err != nil {
		return nil, fmt.Errorf("binding admin password env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the poller cannot work with.
func (c *AppConfig) Validate() error {
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port %d out of range", c.IMAP.Port)
	}
	if c.IMAP.ConnectRetries < 0 {
		return fmt.Errorf("imap.connect_retries must not be negative")
	}
	if c.Poll.LookbackDays < 1 {
		return fmt.Errorf("poll.lookback_days must be at least 1")
	}
	if c.Poll.Limit < 1 {
		return fmt.Errorf("poll.limit must be at least 1")
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be at least 1")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap", map[string]interface{}{
		"host":            cfg.IMAP.Host,
		"port":            cfg.IMAP.Port,
		"command_timeout": cfg.IMAP.CommandTimeout.String(),
		"connect_retries": cfg.IMAP.ConnectRetries,
		"folders":         cfg.IMAP.Folders,
	})
	v.Set("poll", cfg.Poll)
	v.Set("sweep", map[string]interface{}{
		"concurrency":     cfg.Sweep.Concurrency,
		"account_timeout": cfg.Sweep.AccountTimeout.String(),
	})
	v.Set("http", cfg.HTTP)
	v.Set("storage", cfg.Storage)
	v.Set("keyring", map[string]interface{}{
		"backends": cfg.Keyring.Backends,
		"file_dir": cfg.Keyring.FileDir,
	})
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
