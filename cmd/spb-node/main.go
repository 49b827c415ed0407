package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/sparkplug-edge/internal/buffer"
	"github.com/szibis/sparkplug-edge/internal/config"
	"github.com/szibis/sparkplug-edge/internal/health"
	"github.com/szibis/sparkplug-edge/internal/host"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/node"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowHelp {
		config.PrintUsage()
		os.Exit(0)
	}

	if cfg.ShowVersion {
		config.PrintVersion()
		os.Exit(0)
	}

	if cfg.ValidateOnly {
		result := &config.ValidationResult{Valid: true, File: cfg.ConfigFile}
		config.ValidateConfig(cfg, result)
		fmt.Println(result.JSON())
		if !result.Valid {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLevel(level)
	logging.SetResource(map[string]string{
		"service.name":   "spb-node",
		"sparkplug.node": cfg.GroupID + "/" + cfg.NodeID,
	})

	if cfg.MemoryLimitRatio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(cfg.MemoryLimitRatio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logging.Warn("memory limit not set", logging.F("error", err.Error()))
		} else {
			logging.Info("memory limit set", logging.F("gomemlimit", limit, "ratio", cfg.MemoryLimitRatio))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal("spb-node failed", logging.F("error", err.Error()))
	}
	logging.Info("spb-node stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	g, gctx := errgroup.WithContext(ctx)

	var dial transport.Dialer
	switch cfg.TransportKind {
	case config.TransportMemory:
		// a local host application follows the node so the output is visible
		broker := transport.NewBroker()
		dial = broker.Dialer()
		h, err := host.New(host.Config{GroupID: cfg.GroupID}, dial, host.WithObserver(logObservation))
		if err != nil {
			return err
		}
		g.Go(func() error { return h.Run(gctx) })
	default:
		dial = transport.MQTTDialer(cfg.MQTTConfig())
	}

	n, err := node.New(cfg.NodeConfig(), dial,
		node.WithQueue(buffer.NewQueue(cfg.StoreForwardConfig())),
		node.WithWriteHandler(func(tag string, v sparkplug.Value) {
			logging.Info("tag written", logging.F("tag", tag, "value", v.Interface()))
		}),
	)
	if err != nil {
		return err
	}
	g.Go(func() error { return n.Run(gctx) })

	if cfg.StatsAddr != "" {
		checker := health.New()
		checker.RegisterReadiness("sparkplug_session", func() error {
			if !n.Online() {
				return errors.New("births not published")
			}
			return nil
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		checker.Register(mux)
		srv := &http.Server{
			Addr:              cfg.StatsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logging.Info("stats endpoint started", logging.F("addr", cfg.StatsAddr, "path", "/metrics"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("stats server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			checker.SetShuttingDown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logging.Info("spb-node started", logging.F(
		"transport", cfg.TransportKind,
		"broker", cfg.Broker,
		"group_id", cfg.GroupID,
		"node_id", cfg.NodeID,
		"device_id", cfg.DeviceID,
		"tags", len(cfg.Tags),
		"stats_addr", cfg.StatsAddr,
	))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logObservation(o host.Observation) {
	logging.Debug("observation", logging.F(
		"type", string(o.Type),
		"device_id", o.Device,
		"metric", o.Name,
		"value", o.Value.Interface(),
		"seq", o.Seq,
	))
}
