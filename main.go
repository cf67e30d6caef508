package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/custody"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ipfs"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ledger"
)

var jwtSecret []byte // loaded from config in main

func main() {
	// Load ./.env if present; never overrides variables that are already set.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	jwtSecret = []byte(cfg.JWTSecret)

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Lightweight migrate command: `./trustchain migrate` runs AutoMigrate and
	// seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB(cfg, logger)
		logger.Info("migration and seeding completed")
		return
	}

	initDB(cfg, logger)

	store := ipfs.NewClient(cfg.IPFSURL, cfg.IPFSGatewayURL, cfg.IPFSTimeout, logger)
	chain := ledger.NewClient(cfg.LedgerURL, cfg.LedgerConfirmWait, cfg.LedgerPollInterval, logger)
	svc := custody.NewService(db, store, chain, logger, cfg.DefaultCollectorAddress)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	setupRoutes(r, &app{cfg: cfg, logger: logger, custody: svc, store: store})

	logger.Info("TrustChain server starting",
		zap.Int("port", cfg.Port),
		zap.String("ledger_url", cfg.LedgerURL),
		zap.String("ipfs_url", cfg.IPFSURL))
	if err := r.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
