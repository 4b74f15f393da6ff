package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llmgate/internal/admission"
	"llmgate/internal/config"
	_ "llmgate/internal/docs"
	"llmgate/internal/engine"
	"llmgate/internal/gateway"
	"llmgate/internal/httpapi"
	"llmgate/internal/registry"
	"llmgate/internal/session"
	"llmgate/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var addr string
	root := &cobra.Command{
		Use:           "llmgate",
		Short:         "Chat completion gateway over local llama.cpp models",
		Long:          "llmgate serves an OpenAI-compatible chat API over locally loaded GGUF models,\nwith admission control, per-model serialization and session transcripts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, addr)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "llmgate.yaml", "config file (.yaml, .json or .toml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides the config file")
	return root
}

func run(cfgPath, addrOverride string) error {
	log := httpapi.NewLogger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	cfg.ApplyDefaults()
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Base context canceled on SIGINT/SIGTERM; joined with every request
	// context so draining also cancels in-flight generations.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.RedisURL != "" {
		rs, err := store.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rs.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		log.Info().Str("store", "redis").Msg("shared store connected")
		st = rs
	} else {
		log.Warn().Msg("no redis_url configured; in-memory store limits leases and sessions to this process")
		st = store.NewMemory()
	}
	defer st.Close()

	adm := admission.New(st, admission.Config{
		Capacity:     cfg.MaxConcurrent,
		MaxWait:      cfg.AdmitWait.Std(),
		LeaseTTL:     cfg.LeaseTTL.Std(),
		ReapInterval: cfg.ReapInterval.Std(),
		Key:          cfg.KeyPrefix + ":leases",
	}, log)
	go adm.Run(ctx)

	reg, err := registry.New(&cfg, engine.NewLlama, log)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	defer reg.Close()

	sess := session.NewStore(st, cfg.KeyPrefix, cfg.SessionTTL.Std())
	orch := gateway.New(adm, reg, sess, cfg.HistoryBudgetTokens, log)

	httpapi.SetLogger(log)
	httpapi.SetAuthToken(cfg.AuthToken)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetBaseContext(ctx)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins)
	httpapi.SetReadinessProbe(st.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(orch),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int("models", len(cfg.Models)).Int("max_concurrent", cfg.MaxConcurrent).Msg("llmgate listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
		return err
	}
	return nil
}
