package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/aasm-exporter/aasm/exporter/internal/api"
	"github.com/aasm-exporter/aasm/exporter/internal/config"
	"github.com/aasm-exporter/aasm/exporter/internal/outcome"
	"github.com/aasm-exporter/aasm/exporter/internal/scraper"
	"github.com/aasm-exporter/aasm/exporter/internal/token"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; AASM_* environment variables override it")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("aasm-exporter failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("aasm-exporter starting", "version", version, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level.Set(cfg.Log.SlogLevel())
	if cfg.Log.Format == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	}

	slog.Info("config loaded",
		"source", cfg.Source,
		"tenant_id", cfg.Azure.TenantID,
		"client_id", cfg.Azure.ClientID,
		"auth_mode", cfg.Azure.AuthMode,
		"addr", cfg.Exporter.Addr(),
		"request_timeout", cfg.Exporter.RequestTimeout,
	)

	client := scraper.NewHTTPClient(cfg.Exporter.RequestTimeout, "aasm-exporter/"+version)

	src, err := newSource(cfg, client)
	if err != nil {
		return err
	}
	cache := token.NewCache(src)

	gs := scraper.NewGraphScraper(cache, client, cfg.Azure.GraphEndpoint)
	tracker, err := outcome.New(cache)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.Exporter.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Exporter.Addr(), err)
	}
	srv := &http.Server{Handler: api.New(gs, tracker)}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// The server starts without waiting for the first token.
	g.Go(func() error {
		cache.Run(gctx)
		return nil
	})

	if cfg.Source != "" {
		g.Go(func() error {
			err := config.Watch(gctx, cfg.Source, func(updated *config.Config) {
				level.Set(updated.Log.SlogLevel())
				slog.Info("log level updated", "level", updated.Log.Level)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", lis.Addr().String(), "exporter", gs.Name())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("aasm-exporter shutting down")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func newSource(cfg *config.Config, client *http.Client) (token.Source, error) {
	az := cfg.Azure
	switch az.AuthMode {
	case config.AuthModeAzIdentity:
		src, err := token.NewAzureIdentitySource(az.AuthorityHost, az.TenantID, az.ClientID, az.ClientSecret, client)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return token.NewClientCredentialsSource(az.TokenURL(), az.ClientID, az.ClientSecret, client), nil
	}
}
