package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bridgarr/bridgarr/internal/api"
	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/config"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/myjd"
	"github.com/bridgarr/bridgarr/internal/provider/darki"
	"github.com/bridgarr/bridgarr/internal/reconciler"
	"github.com/bridgarr/bridgarr/internal/registry"
	"github.com/bridgarr/bridgarr/internal/verifier"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v\n", err)
	}

	err = os.MkdirAll(cfg.DataDir, 0o755)
	if err != nil {
		log.Fatalf("Error creating data directory: %v\n", err)
	}

	err = logger.Init(*debug || cfg.Debug, filepath.Join(cfg.DataDir, "bridgarr.log"))
	if err != nil {
		log.Fatalf("Error initializing logging: %v\n", err)
	}
	defer logger.Close()

	store, err := registry.NewStore(filepath.Join(cfg.DataDir, "bridgarr.db"))
	if err != nil {
		log.Fatalf("Error opening job store: %v\n", err)
	}

	engine := myjd.NewEngine(myjd.NewClient(myjd.Config{
		BaseURL:    cfg.Engine.BaseURL,
		Email:      cfg.Engine.Email,
		Password:   cfg.Engine.Password,
		DeviceName: cfg.Engine.DeviceName,
		Timeout:    cfg.Engine.Timeout,
	}))

	br := bridge.New(engine, cfg.Engine.MaxRetries, cfg.Engine.RetryDelay)

	reg, err := registry.New(store, br, cfg.OutputDir)
	if err != nil {
		log.Fatalf("Error loading job registry: %v\n", err)
	}
	defer reg.Close()

	source := darki.New(darki.Config{
		BaseURL:     cfg.Provider.BaseURL,
		CookieName:  cfg.Provider.CookieName,
		CookieValue: cfg.Provider.CookieValue,
		Timeout:     cfg.Provider.Timeout,
	})

	v := verifier.New(source, cfg.Verify.Timeout, cfg.Verify.MaxParallel, cfg.Verify.Freshness)

	srv := api.New(api.Options{
		APIKey:    cfg.APIKey,
		Listen:    cfg.Listen,
		OutputDir: cfg.OutputDir,
		SearchLimit: api.SearchLimits{
			MaxTitles:        cfg.Search.MaxTitles,
			MaxLinksPerTitle: cfg.Search.MaxLinksPerTitle,
		},
	}, source, nil, v, reg, br)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := reconciler.New(reg, br, cfg.Reconciler.PollInterval)
	go rec.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v\n", err)
		}
	}()

	err = srv.Run()
	if err != nil {
		log.Fatalf("Server error: %v\n", err)
	}
}
