package config

import (
	"encoding/json"
	"os"
)

// DBConfig holds the database connection parameters.
type DBConfig struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	TimeZone string `json:"timezone"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level      string `json:"level"`  // e.g., "debug", "info", "warn", "error"
	Format     string `json:"format"` // "text" or "json"
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// EscrowConfig holds the parameters of the escrow workflow itself.
type EscrowConfig struct {
	// DefaultVotingPeriodSeconds is used when a reveal request does not
	// specify its own voting period.
	DefaultVotingPeriodSeconds int `json:"default_voting_period_seconds"`
	// CoordinatorKeyFile points at a hex-encoded secp256k1 private key used
	// to receive re-encrypted shares during a reveal. The coordinator key
	// must be distinct from every holder key.
	CoordinatorKeyFile string `json:"coordinator_key_file"`
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string       `json:"server_port"`
	Database   DBConfig     `json:"database"`
	Logger     LoggerConfig `json:"logger"`
	Escrow     EscrowConfig `json:"escrow"`
}

// LoadConfig reads the configuration from a file and returns a Config struct.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
