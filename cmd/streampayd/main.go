// Command streampayd runs the streaming-protocol node: it loads the TOML
// configuration, opens the LevelDB-backed ledgers, wires the stream and
// campaign engines and serves protocol metrics over HTTP until terminated.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streampay/config"
	"streampay/native/campaign"
	"streampay/native/stream"
	"streampay/observability/logging"
	"streampay/observability/metrics"
	"streampay/state/access"
	"streampay/state/bank"
	"streampay/state/campaigns"
	"streampay/state/ownership"
	"streampay/state/streams"
	"streampay/storage"
)

const metricsRefreshInterval = 15 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	metricsAddr := flag.String("metrics-addr", ":9464", "Listen address for the metrics endpoint")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STREAMPAY_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Setup("streampayd", env, logging.Options{})
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.LogEnv
	}
	logger := logging.Setup("streampayd", env, logging.Options{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	vault, err := cfg.VaultAddress()
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	collector, err := cfg.FeeCollectorAddress()
	if err != nil {
		logger.Error("Invalid fee collector address", slog.Any("error", err))
		os.Exit(1)
	}
	policy, err := cfg.FeePolicy()
	if err != nil {
		logger.Error("Invalid fee policy", slog.Any("error", err))
		os.Exit(1)
	}
	admins, err := cfg.AdminAddresses()
	if err != nil {
		logger.Error("Invalid admin addresses", slog.Any("error", err))
		os.Exit(1)
	}

	roles := access.NewRoles()
	for _, admin := range admins {
		roles.Grant(stream.RoleStreamAdmin, admin)
	}

	tokens := bank.NewLedger(db)
	ledger := streams.NewStore(db)

	engine := stream.NewEngine()
	engine.SetLedger(ledger)
	engine.SetTokenLedger(tokens)
	engine.SetOwnership(ownership.NewRegistry(db))
	engine.SetAccessControl(roles)
	engine.SetVault(vault)
	engine.SetFeeCollector(collector)
	engine.SetFeePolicy(policy)

	exporter := metrics.Streams()
	engine.SetEmitter(metrics.NewEventObserver(exporter))

	campaignEngine := campaign.NewEngine()
	campaignEngine.SetState(campaigns.NewStore(db))
	campaignEngine.SetTokenLedger(tokens)
	campaignEngine.SetVault(vault)

	aggregator := stream.NewMetrics(ledger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go refreshMetrics(ctx, logger, aggregator, exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		logger.Info("Metrics endpoint listening", slog.String("addr", *metricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", slog.Any("error", err))
		}
	}()

	logger.Info("Node started", slog.String("dataDir", cfg.DataDir))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics endpoint shutdown failed", slog.Any("error", err))
	}
	logger.Info("Node stopped")
}

func refreshMetrics(ctx context.Context, logger *slog.Logger, aggregator *stream.Metrics, exporter *metrics.StreamsMetrics) {
	ticker := time.NewTicker(metricsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm, err := aggregator.ProtocolMetrics()
			if err != nil {
				logger.Error("Protocol metrics refresh failed", slog.Any("error", err))
				continue
			}
			exporter.Update(pm)
		}
	}
}
