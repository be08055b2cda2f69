package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/approval"
	"github.com/dagbolade/toolguard/internal/audit"
	"github.com/dagbolade/toolguard/internal/auth"
	"github.com/dagbolade/toolguard/internal/mediator"
	"github.com/dagbolade/toolguard/internal/policy"
	"github.com/dagbolade/toolguard/internal/server"
	"github.com/dagbolade/toolguard/internal/store"
)

func main() {
	setupLogger()

	log.Info().Msg("starting toolguard")

	ctx, cancel := setupSignalHandler()
	defer cancel()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("toolguard stopped successfully")
}

func run(ctx context.Context) error {
	cfg := server.LoadConfig()

	auditStore, err := initAuditStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close audit store")
		}
	}()

	ruleStore, err := initRuleStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := ruleStore.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close rule store")
		}
	}()

	watcher, err := bootstrapPolicies(ctx, cfg, ruleStore)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	confirmations := initConfirmationQueue(cfg)
	defer func() {
		if err := confirmations.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close confirmation queue")
		}
	}()

	resolver := initResolver(cfg, auditStore)
	dispatcher := mediator.NewHTTPDispatcher(cfg.ToolUpstream, time.Duration(cfg.UpstreamTimeout)*time.Second)
	med := mediator.New(ruleStore, resolver, auditStore, confirmations, dispatcher)

	authManager := initAuthManager(cfg)

	srv := server.New(cfg, med, ruleStore, auditStore, confirmations, authManager)
	return runServer(ctx, srv)
}

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func initAuditStore(cfg server.Config) (audit.Store, error) {
	log.Info().Str("path", cfg.AuditDBPath).Msg("initializing audit store")

	auditStore, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("audit store initialized")
	return auditStore, nil
}

func initRuleStore(cfg server.Config) (store.RuleStore, error) {
	log.Info().Str("path", cfg.DBPath).Int("max_rules", cfg.MaxRulesPerPolicy).Msg("initializing rule store")

	ruleStore, err := store.NewSQLiteStore(cfg.DBPath, cfg.MaxRulesPerPolicy)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("rule store initialized")
	return ruleStore, nil
}

// bootstrapPolicies imports policy files from POLICY_DIR and keeps watching
// the directory so edits land without a restart. An empty POLICY_DIR means
// policies are managed over the API only.
func bootstrapPolicies(ctx context.Context, cfg server.Config, ruleStore store.RuleStore) (*policy.FileWatcher, error) {
	if cfg.PolicyDir == "" {
		return nil, nil
	}

	importDir := func() {
		policies, err := policy.LoadDir(cfg.PolicyDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.PolicyDir).Msg("failed to load policy directory")
			return
		}
		if err := ruleStore.ImportPolicies(ctx, policies); err != nil {
			log.Warn().Err(err).Msg("failed to import policies")
			return
		}
		log.Info().Int("count", len(policies)).Msg("policies imported")
	}

	importDir()

	watcher, err := policy.NewFileWatcher(cfg.PolicyDir, func(path string) {
		log.Info().Str("path", path).Msg("policy file changed, re-importing")
		importDir()
	})
	if err != nil {
		return nil, err
	}

	return watcher, nil
}

func initConfirmationQueue(cfg server.Config) approval.Queue {
	timeout := time.Duration(cfg.ConfirmationTimeout) * time.Second

	log.Info().Dur("timeout", timeout).Msg("initializing confirmation queue")
	return approval.NewInMemoryQueue(timeout)
}

func initResolver(cfg server.Config, auditStore audit.Store) *policy.Resolver {
	defaultAction, err := policy.ParseAction(cfg.DefaultVerdict)
	if err != nil {
		log.Warn().Str("value", cfg.DefaultVerdict).Msg("unknown default verdict, falling back to allow")
		defaultAction = policy.ActionAllow
	}

	log.Info().Str("default_verdict", string(defaultAction)).Msg("initializing resolver")
	return policy.NewResolver(defaultAction, audit.FaultSink{Store: auditStore})
}

func initAuthManager(cfg server.Config) *auth.Manager {
	log.Info().Bool("required", cfg.RequireAuth).Msg("initializing auth manager")

	return auth.NewManager(auth.Config{
		JWTSecret:       cfg.JWTSecret,
		TokenExpiration: 24 * time.Hour,
		RequireAuth:     cfg.RequireAuth,
	})
}

func runServer(ctx context.Context, srv *server.Server) error {
	errChan := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
