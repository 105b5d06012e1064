package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string

	// OperatorAddress is the one actor allowed to trigger and cancel draws,
	// retry settlement, and move the treasury. Round creation is public.
	OperatorAddress string
	TreasuryAddress string
	TreasuryFeeBps  int64

	OracleURL     string
	OracleSecret  string
	OracleTimeout time.Duration

	// StartingBalance is credited to demo wallets on first access.
	StartingBalance int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:       getEnv("REDIS_PASS", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		OperatorAddress: getEnv("OPERATOR_ADDRESS", ""),
		TreasuryAddress: getEnv("TREASURY_ADDRESS", ""),
		OracleURL:       getEnv("ORACLE_URL", ""),
		OracleSecret:    getEnv("ORACLE_SECRET", ""),
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %v", err)
	}
	cfg.RedisDB = db

	feeBps, err := strconv.ParseInt(getEnv("TREASURY_FEE_BPS", "500"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TREASURY_FEE_BPS: %v", err)
	}
	if feeBps < 0 || feeBps > 10000 {
		return nil, fmt.Errorf("TREASURY_FEE_BPS must be between 0 and 10000, got %d", feeBps)
	}
	cfg.TreasuryFeeBps = feeBps

	timeoutSec, err := strconv.Atoi(getEnv("ORACLE_TIMEOUT_SECONDS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_TIMEOUT_SECONDS: %v", err)
	}
	cfg.OracleTimeout = time.Duration(timeoutSec) * time.Second

	starting, err := strconv.ParseInt(getEnv("STARTING_BALANCE", "10000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: %v", err)
	}
	cfg.StartingBalance = starting

	if cfg.Env == "production" {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		if cfg.OperatorAddress == "" {
			return nil, fmt.Errorf("OPERATOR_ADDRESS is required in production")
		}
		if cfg.TreasuryAddress == "" {
			return nil, fmt.Errorf("TREASURY_ADDRESS is required in production")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
	}
	if cfg.TreasuryAddress == "" {
		cfg.TreasuryAddress = "0xtreasury_dev"
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
