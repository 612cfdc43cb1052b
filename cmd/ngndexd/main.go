package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ngndex/config"
	"ngndex/native/amm"
	"ngndex/observability"
	"ngndex/observability/logging"
	telemetry "ngndex/observability/otel"
	"ngndex/rpc"
	"ngndex/storage"
	"ngndex/token"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to ngndexd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NGNDEX_ENV"))
	logger := logging.Setup("ngndexd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ngndexd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("ngndexd: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("ngndexd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("ngndexd: open storage: %v", err)
	}
	defer store.Close()

	bank := token.NewBank()
	treasury := cfg.TreasuryAddress()
	if err := seedBank(bank, treasury, cfg); err != nil {
		log.Fatalf("ngndexd: seed balances: %v", err)
	}

	engine := amm.NewEngine(cfg.NGNTokenAddress(), treasury, bank)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.DEX())
	engine.SetHistoryLimit(cfg.HistoryLimit)
	for _, admin := range cfg.AdminAddresses() {
		engine.SetAdmin(admin, true)
	}
	if err := store.Restore(context.Background(), engine); err != nil {
		log.Fatalf("ngndexd: restore state: %v", err)
	}
	engine.SetStore(store)

	server := rpc.NewServer(engine, cfg.AdminToken, rpc.RateLimit{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ngndexd listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", slog.Any("err", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("err", err))
	}
}

// seedBank credits dev/test balances from configuration and pre-approves the
// engine treasury where an allowance is supplied.
func seedBank(bank *token.Bank, treasury common.Address, cfg config.Config) error {
	for i, seed := range cfg.Seed {
		tokenAddr := common.HexToAddress(strings.TrimSpace(seed.Token))
		account := common.HexToAddress(strings.TrimSpace(seed.Account))
		amount, ok := new(big.Int).SetString(strings.TrimSpace(seed.Amount), 10)
		if !ok {
			return fmt.Errorf("seed[%d]: invalid amount %q", i, seed.Amount)
		}
		if err := bank.Mint(tokenAddr, account, amount); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		if allowanceStr := strings.TrimSpace(seed.Allowance); allowanceStr != "" {
			allowance, ok := new(big.Int).SetString(allowanceStr, 10)
			if !ok {
				return fmt.Errorf("seed[%d]: invalid allowance %q", i, seed.Allowance)
			}
			if err := bank.Approve(tokenAddr, account, treasury, allowance); err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
		}
	}
	return nil
}
