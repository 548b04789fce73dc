package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Account AccountConfig `mapstructure:"account"`
	API     APIConfig     `mapstructure:"api"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AccountConfig identifies the iNaturalist account being mirrored
type AccountConfig struct {
	Username string `mapstructure:"username"` // Login whose observations are synced
	Locale   string `mapstructure:"locale"`   // Locale for localized common names
	PlaceID  int64  `mapstructure:"place_id"` // Preferred place for regional common names
}

// APIConfig holds remote API configuration
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SyncConfig holds synchronization tuning
type SyncConfig struct {
	Workers  int  `mapstructure:"workers"`   // Background worker count
	PageSize int  `mapstructure:"page_size"` // Rows per sync request
	Casual   bool `mapstructure:"casual"`    // Include casual-grade observations
}

// StorageConfig holds local data locations
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"` // Databases and the photo cache live here
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Username: "",
			Locale:   "en",
			PlaceID:  1,
		},
		API: APIConfig{
			BaseURL: "https://api.inaturalist.org/v1",
		},
		Sync: SyncConfig{
			Workers:  1,
			PageSize: 50,
			Casual:   true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataPath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "vireo")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "vireo")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "vireo.log")
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "vireo")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "vireo")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VIREO")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set account fields individually to ensure correct key names (snake_case)
	viper.Set("account.username", cfg.Account.Username)
	viper.Set("account.locale", cfg.Account.Locale)
	viper.Set("account.place_id", cfg.Account.PlaceID)

	// Set API fields
	viper.Set("api.base_url", cfg.API.BaseURL)

	// Set sync fields
	viper.Set("sync.workers", cfg.Sync.Workers)
	viper.Set("sync.page_size", cfg.Sync.PageSize)
	viper.Set("sync.casual", cfg.Sync.Casual)

	// Set storage fields
	viper.Set("storage.data_dir", cfg.Storage.DataDir)

	// Set logging fields
	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveUsername updates just the account username in the configuration
func SaveUsername(username string) error {
	viper.Set("account.username", username)

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if a sync account is set
func (c *Config) IsConfigured() bool {
	return c.Account.Username != ""
}

// DataPath returns the resolved data directory, creating it if needed
func (c *Config) DataPath() (string, error) {
	dir := c.Storage.DataDir
	if dir == "" {
		dir = defaultDataPath()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
