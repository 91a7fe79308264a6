package main

import (
	"encoding/hex"
	"flag"
	"os"
	"strings"
	"time"

	"escrow-node/api"
	"escrow-node/internal/config"
	"escrow-node/internal/escrow"
	"escrow-node/internal/ledger"
	"escrow-node/internal/logger"
	"escrow-node/internal/storage"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config from %s: %v", *configPath, err)
	}
	if err := logger.InitLogger(cfg.Logger); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}

	storage.InitDB(cfg.Database)

	coordinator, err := loadCoordinatorKey(cfg.Escrow.CoordinatorKeyFile)
	if err != nil {
		logger.Log.Fatalf("Failed to load coordinator key: %v", err)
	}

	votingPeriod := time.Duration(cfg.Escrow.DefaultVotingPeriodSeconds) * time.Second
	if votingPeriod <= 0 {
		votingPeriod = 72 * time.Hour
	}

	// The in-memory ledger stands in for the on-chain registry in local
	// deployments; a chain-backed implementation plugs in here.
	svc := escrow.NewService(storage.DB, ledger.NewMemoryLedger(), coordinator, votingPeriod)

	router := api.SetupRouter(svc)
	logger.Log.Infof("Escrow node listening on %s", cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		logger.Log.Fatalf("Server exited: %v", err)
	}
}

// loadCoordinatorKey reads a hex-encoded secp256k1 private key from a file,
// or generates an ephemeral one when no file is configured.
func loadCoordinatorKey(path string) (*secp256k1.PrivateKey, error) {
	if path == "" {
		logger.Log.Warn("No coordinator key file configured; generating an ephemeral key")
		return secp256k1.GeneratePrivateKey()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	priv := secp256k1.PrivKeyFromBytes(keyBytes)
	return priv, nil
}
