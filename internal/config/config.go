package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Market   MarketConfig   `json:"market"`
}

// ServerConfig contains server related configurations
type ServerConfig struct {
	Port int `json:"port"`
}

// DatabaseConfig contains database related configurations
type DatabaseConfig struct {
	Driver   string `json:"driver"` // "postgres" or "sqlite"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	File     string `json:"file"` // sqlite only
}

// AuthConfig contains authentication related configurations
type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	JWTExpiration int    `json:"jwt_expiration"` // in hours
}

// MarketConfig describes the fixed catalogue the market is deployed
// with. Prices and amounts are in satoshis. The catalogue is read once
// at first boot; afterward the persisted state wins.
type MarketConfig struct {
	RoyaltyFee      int64   `json:"royalty_fee"`
	Artist          string  `json:"artist"`
	Deployer        string  `json:"deployer"`
	Deposit         int64   `json:"deposit"`
	MetadataBaseURI string  `json:"metadata_base_uri"`
	Prices          []int64 `json:"prices"`
	Faucet          bool    `json:"faucet"` // enable the dev-mode faucet endpoint
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	// Default config
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   5432,
			Name:   "mintfolio",
		},
		Auth: AuthConfig{
			JWTExpiration: 24,
		},
		Market: MarketConfig{
			RoyaltyFee:      1000,
			Deposit:         8000,
			MetadataBaseURI: "https://assets.mintfolio.dev/tokens/",
			Prices:          []int64{100000, 200000, 300000, 400000, 500000, 600000, 700000, 800000},
		},
	}

	// Look for config file
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		// Use default config file path
		configFile = filepath.Join("configs", "config.json")
	}

	// Try to load config from file
	if _, err := os.Stat(configFile); err == nil {
		file, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables if present
	if port := os.Getenv("SERVER_PORT"); port != "" {
		var serverPort int
		if _, err := fmt.Sscanf(port, "%d", &serverPort); err == nil {
			cfg.Server.Port = serverPort
		}
	}

	if dbDriver := os.Getenv("DB_DRIVER"); dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		var databasePort int
		if _, err := fmt.Sscanf(dbPort, "%d", &databasePort); err == nil {
			cfg.Database.Port = databasePort
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if dbFile := os.Getenv("DB_FILE"); dbFile != "" {
		cfg.Database.File = dbFile
	}

	if artist := os.Getenv("MARKET_ARTIST"); artist != "" {
		cfg.Market.Artist = artist
	}
	if deployer := os.Getenv("MARKET_DEPLOYER"); deployer != "" {
		cfg.Market.Deployer = deployer
	}
	if fee := os.Getenv("MARKET_ROYALTY_FEE"); fee != "" {
		if parsed, err := strconv.ParseInt(fee, 10, 64); err == nil {
			cfg.Market.RoyaltyFee = parsed
		}
	}
	if deposit := os.Getenv("MARKET_DEPOSIT"); deposit != "" {
		if parsed, err := strconv.ParseInt(deposit, 10, 64); err == nil {
			cfg.Market.Deposit = parsed
		}
	}
	if baseURI := os.Getenv("MARKET_METADATA_BASE_URI"); baseURI != "" {
		cfg.Market.MetadataBaseURI = baseURI
	}
	if prices := os.Getenv("MARKET_PRICES"); prices != "" {
		parsed, err := parsePrices(prices)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKET_PRICES: %w", err)
		}
		cfg.Market.Prices = parsed
	}
	if faucet := os.Getenv("MARKET_FAUCET"); faucet != "" {
		cfg.Market.Faucet = faucet == "true" || faucet == "1"
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	} else if cfg.Auth.JWTSecret == "" {
		// Generate a random JWT secret if not provided
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(randomBytes)
	}

	return cfg, nil
}

// parsePrices parses a comma-separated satoshi price list
func parsePrices(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	prices := make([]int64, 0, len(parts))
	for _, part := range parts {
		price, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, nil
}
