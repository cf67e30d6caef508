package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime knob, sourced from the environment (a local
// .env is loaded first, without overriding variables already set).
type Config struct {
	Env  string
	Port int

	DBDSN         string
	DBAutoMigrate bool

	JWTSecret     string
	AdminPassword string

	LedgerURL          string
	LedgerConfirmWait  time.Duration
	LedgerPollInterval time.Duration
	// DefaultCollectorAddress is anchored as the collector identity for
	// officers with no wallet address. Leave empty to disable the fallback.
	DefaultCollectorAddress string

	IPFSURL        string
	IPFSGatewayURL string
	IPFSTimeout    time.Duration

	MaxUploadBytes int64
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 5000)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("JWT_SECRET", "dev-insecure-secret-change")
	v.SetDefault("ADMIN_PASSWORD", "admin123")
	v.SetDefault("LEDGER_URL", "http://localhost:8545")
	v.SetDefault("LEDGER_CONFIRM_WAIT", 2*time.Minute)
	v.SetDefault("LEDGER_POLL_INTERVAL", 3*time.Second)
	v.SetDefault("DEFAULT_COLLECTOR_ADDRESS", "")
	v.SetDefault("IPFS_URL", "http://localhost:5001")
	v.SetDefault("IPFS_GATEWAY_URL", "http://localhost:8080")
	v.SetDefault("IPFS_TIMEOUT", 30*time.Second)
	v.SetDefault("MAX_UPLOAD_BYTES", int64(100*1024*1024))

	cfg := &Config{
		Env:                     v.GetString("APP_ENV"),
		Port:                    v.GetInt("PORT"),
		DBDSN:                   v.GetString("DB_DSN"),
		DBAutoMigrate:           v.GetBool("DB_AUTO_MIGRATE"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		AdminPassword:           v.GetString("ADMIN_PASSWORD"),
		LedgerURL:               v.GetString("LEDGER_URL"),
		LedgerConfirmWait:       v.GetDuration("LEDGER_CONFIRM_WAIT"),
		LedgerPollInterval:      v.GetDuration("LEDGER_POLL_INTERVAL"),
		DefaultCollectorAddress: v.GetString("DEFAULT_COLLECTOR_ADDRESS"),
		IPFSURL:                 v.GetString("IPFS_URL"),
		IPFSGatewayURL:          v.GetString("IPFS_GATEWAY_URL"),
		IPFSTimeout:             v.GetDuration("IPFS_TIMEOUT"),
		MaxUploadBytes:          v.GetInt64("MAX_UPLOAD_BYTES"),
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is not set; this service requires a Postgres DSN")
	}
	if cfg.LedgerConfirmWait <= 0 {
		return nil, fmt.Errorf("LEDGER_CONFIRM_WAIT must be positive")
	}
	return cfg, nil
}
