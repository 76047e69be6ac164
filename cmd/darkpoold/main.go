// main.go - Settlement daemon for the dark pool escrow ledger.
//
// The daemon loads the last ledger snapshot, wires the settlement engine to
// its collaborators and serves the REST API:
//   - balance operations: deposit, withdraw, lock, unlock
//   - settlement submission with Groth16 proof verification
//   - read endpoints for balances, nullifiers and settlement records
//
// Usage:
//   darkpoold -config darkpoold.yaml
//
// Backends are selected by configuration: token custody runs against an
// ERC-20 chain when chain_rpc_url is set and in memory otherwise, the
// whitelist registry is remote when registry_url is set, and snapshots go
// to Badger or a JSON file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"darkpool/internal/auth"
	"darkpool/internal/ledger"
	"darkpool/internal/registry"
	"darkpool/internal/settlement"
	"darkpool/internal/store"
	"darkpool/internal/token"
	"darkpool/internal/verifier"
)

const version = "0.4.1"

func main() {
	configPath := flag.String("config", "darkpoold.yaml", "path to the configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	audit, err := NewAuditLogger(cfg)
	if err != nil {
		logger.Fatalf("failed to set up audit logging: %v", err)
	}

	if err := run(cfg, logger, audit); err != nil {
		logger.Fatalf("daemon failed: %v", err)
	}
}

func run(cfg *Config, logger, audit *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vk, err := os.ReadFile(cfg.VerifyingKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read verifying key: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	l, err := loadLedger(st, logger)
	if err != nil {
		return err
	}

	collab, reg, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}

	engine, err := settlement.New(l, settlement.Config{
		Admin:            cfg.Admin(),
		VerificationKey:  vk,
		EnforceWhitelist: cfg.EnforceWhitelist,
	}, collab)
	if err != nil {
		return fmt.Errorf("failed to build settlement engine: %w", err)
	}

	health := NewHealthChecker(version)
	health.RegisterComponent("store", func(ctx context.Context) error {
		if _, err := st.Load(); err != nil && !errors.Is(err, store.ErrNoSnapshot) {
			return err
		}
		return nil
	})
	if reg != nil {
		health.RegisterComponent("registry", func(ctx context.Context) error {
			_, err := reg.WhitelistRoot(ctx)
			return err
		})
	}

	var limiter *ClientRateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = NewClientRateLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSecond, time.Second)
	}

	server := NewServer(engine, st, logger, audit, NewMetricsCollector(), health, limiter)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    cfg.ListenAddr,
			"version": version,
		}).Info("settlement daemon listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("forced shutdown: %v", err)
	}

	// Final snapshot so a clean stop never loses committed state.
	if err := st.Save(engine.Ledger().Snapshot()); err != nil {
		logger.Errorf("failed to save final snapshot: %v", err)
	}
	return nil
}

func openStore(cfg *Config) (store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.SnapshotBackend {
	case "badger":
		return store.OpenBadger(filepath.Join(cfg.DataDir, "ledger"))
	case "file":
		return store.NewFileStore(filepath.Join(cfg.DataDir, "snapshot.json")), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

func loadLedger(st store.Store, logger *logrus.Logger) (*ledger.Ledger, error) {
	snap, err := st.Load()
	if errors.Is(err, store.ErrNoSnapshot) {
		logger.Info("no snapshot found, starting with an empty ledger")
		return ledger.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	l, err := ledger.NewFromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore ledger: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"nullifiers":  len(snap.Nullifiers),
		"settlements": len(snap.Settlements),
	}).Info("ledger restored from snapshot")
	return l, nil
}

// buildCollaborators selects the token, registry and auth backends from
// configuration. The returned registry is nil when none is configured.
func buildCollaborators(ctx context.Context, cfg *Config, logger *logrus.Logger) (settlement.Collaborators, settlement.WhitelistRegistry, error) {
	var collab settlement.Collaborators

	if cfg.ChainRPCURL != "" {
		key, err := crypto.HexToECDSA(cfg.OperatorKey)
		if err != nil {
			return collab, nil, fmt.Errorf("failed to parse operator key: %w", err)
		}
		erc20, err := token.NewERC20Client(ctx, cfg.ChainRPCURL, key)
		if err != nil {
			return collab, nil, fmt.Errorf("failed to connect token backend: %w", err)
		}
		logger.WithField("custody", erc20.Custody().Hex()).Info("token custody on chain")
		collab.Token = erc20
	} else {
		logger.Info("token custody in memory")
		collab.Token = token.NewMemory(cfg.Admin())
	}

	var reg settlement.WhitelistRegistry
	if cfg.RegistryURL != "" {
		reg = registry.NewHTTPClient(cfg.RegistryURL)
		logger.WithField("url", cfg.RegistryURL).Info("whitelist registry remote")
	} else if cfg.EnforceWhitelist || len(cfg.WhitelistParticipants) > 0 || len(cfg.WhitelistAssets) > 0 {
		mem := registry.NewMemory()
		for _, addr := range cfg.WhitelistParticipants {
			mem.AddParticipant(common.HexToAddress(addr))
		}
		for _, addr := range cfg.WhitelistAssets {
			mem.AddAsset(common.HexToAddress(addr))
		}
		reg = mem
		logger.WithFields(logrus.Fields{
			"participants": len(cfg.WhitelistParticipants),
			"assets":       len(cfg.WhitelistAssets),
		}).Info("whitelist registry in memory")
	}
	collab.Registry = reg

	if cfg.RequireSignatures {
		collab.Auth = auth.NewEIP191()
	} else {
		logger.Warn("signature checks disabled, all credentials accepted")
		collab.Auth = auth.AllowAll{}
	}

	collab.Verifier = verifier.NewGroth16()
	return collab, reg, nil
}
