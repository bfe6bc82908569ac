package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/cache"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/clock"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/config"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/forwarder"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/listener"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/stats"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/transport"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/zone"
)

const (
	version = "0.1.0-dev"

	defaultCacheSize  = 4096
	defaultStatsPath  = "/var/lib/dnsrelay/stats.db"
	defaultConfigPath = "/etc/dnsrelay/dnsrelay.yaml"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	statsPath := flag.String("stats-db", defaultStatsPath, "path to the bbolt database backing per-upstream counters")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"listen":    cfg.Listen,
	}, "starting dnsrelayd")

	app, err := buildApplication(cfg, *statsPath)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "server failed")
	}

	log.Info(nil, "dnsrelayd stopped gracefully")
}

// Application is the fully wired server: one forwarder and transport pair
// per protocol, a shared zone router, and a durable counter store, closed
// together on shutdown.
type Application struct {
	server  *listener.Server
	counter *stats.Counters
}

// buildApplication wires every component together the way the teacher's
// buildApplication assembles repos/gateways/services: router first
// (shared across protocols), then one forwarder and transport per wire
// protocol, then the listener that owns both.
func buildApplication(cfg *config.AppConfig, statsPath string) (*Application, error) {
	domainCfg, err := config.ToDomain(*cfg)
	if err != nil {
		return nil, fmt.Errorf("translate configuration: %w", err)
	}

	logger := log.GetLogger()
	clk := clock.RealClock{}
	router := zone.NewRouter(domainCfg)

	answerCache, err := cache.New(defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build answer cache: %w", err)
	}

	counters, err := stats.Open(statsPath)
	if err != nil {
		return nil, fmt.Errorf("open stats store at %s: %w", statsPath, err)
	}

	udpForwarder := forwarder.New(forwarder.Options{
		Router: router, Network: "udp", Dial: transport.DefaultDial,
		Clock: clk, Logger: logger, Cache: answerCache, Stats: counters,
	})
	tcpForwarder := forwarder.New(forwarder.Options{
		Router: router, Network: "tcp", Dial: transport.DefaultDial,
		Clock: clk, Logger: logger, Cache: answerCache, Stats: counters,
	})

	udpTransport := transport.NewUDPTransport(cfg.Listen, logger)
	tcpTransport := transport.NewTCPTransport(cfg.Listen, logger)

	srv := listener.New(udpTransport, tcpTransport, udpForwarder, tcpForwarder, logger)

	return &Application{server: srv, counter: counters}, nil
}

// Run starts the listener and blocks until ctx is cancelled, then shuts
// down within a fixed budget.
func (app *Application) Run(ctx context.Context) error {
	if err := app.server.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	<-ctx.Done()
	log.Info(nil, "shutdown initiated")

	stopErr := app.server.Stop()
	closeErr := app.counter.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
