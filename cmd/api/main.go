// @title Custody Ledger API
// @version 1.0
// @description Ledger de cadena de custodia para lotes.
// @BasePath /
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody-ledger/internal/adapters/auth/jwtauth"
	"custody-ledger/internal/adapters/auth/odin"
	"custody-ledger/internal/adapters/credentials/registry"
	"custody-ledger/internal/adapters/messaging/rabbitmq"
	"custody-ledger/internal/adapters/signing/edsigner"
	"custody-ledger/internal/adapters/signing/hmacsig"
	"custody-ledger/internal/adapters/signing/remote"
	mem "custody-ledger/internal/adapters/storage/memory"
	pg "custody-ledger/internal/adapters/storage/postgres"
	"custody-ledger/internal/config"
	"custody-ledger/internal/domain/custody"
	"custody-ledger/internal/platform/logger"
	"custody-ledger/internal/ports/auth"
	"custody-ledger/internal/ports/credentials"
	"custody-ledger/internal/ports/signing"
	"custody-ledger/internal/router"
	"custody-ledger/internal/scheduler"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env es opcional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(logger.Options{}).Error("invalid configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DBDSN != "" {
		opened, err := pg.Open(cfg.DBDSN)
		if err != nil {
			return err
		}
		defer opened.Close()
		if err := pg.Migrate(ctx, opened); err != nil {
			return err
		}
		db = opened
		log.Info("using postgres storage", nil)
	} else {
		log.Warn("DB_DSN not set, using in-memory storage", nil)
	}

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}
	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}
	creds, err := buildCredentials(cfg, db)
	if err != nil {
		return err
	}

	var publisher custody.EventPublisher = rabbitmq.FallbackPublisher{Log: log}
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange, log)
		if err != nil {
			// el ledger sigue funcionando sin eventos
			log.Warn("rabbitmq unavailable, events will only be logged", map[string]any{"error": err.Error()})
		} else {
			defer producer.Close()
			publisher = producer
		}
	}

	var (
		repo   custody.Repository
		locker custody.BatchLocker
	)
	if db != nil {
		repo = pg.NewCustodyRepo(db)
		locker = pg.NewBatchLocker(db)
	} else {
		repo = mem.NewCustodyRepo()
	}

	svc := custody.NewService(repo, signer, custody.Options{
		Locker:      locker,
		Publisher:   publisher,
		Credentials: creds,
		Logger:      log.With(map[string]any{"component": "custody"}),
		TransferTTL: cfg.TransferTTL,
	})

	sweeper, err := scheduler.New(svc, cfg.ExpirySweepSchedule, log.With(map[string]any{"component": "scheduler"}))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.NewRouter(router.Options{
			AuthVerifier: verifier,
			DB:           db,
			Service:      svc,
			Credentials:  creds,
			Logger:       log,
			CORSOrigins:  cfg.AllowedOrigins(),
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", map[string]any{"addr": cfg.Addr(), "auth_mode": cfg.AuthMode, "signer": cfg.Signer})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sweeper.Start()
		<-gctx.Done()
		<-sweeper.Stop().Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildVerifier(cfg config.Config) (auth.AuthVerifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		return jwtauth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	case config.AuthModeOdin:
		client, err := odin.NewClient(odin.Config{
			BaseURL: cfg.OdinURL,
			APIKey:  cfg.OdinAPIKey,
			Timeout: cfg.HTTPClientTimeout,
		})
		if err != nil {
			return nil, err
		}
		return odin.NewVerifier(client), nil
	default:
		// modo dev: X-Debug-Actor-ID
		return nil, nil
	}
}

func buildSigner(cfg config.Config) (signing.Signer, error) {
	switch cfg.Signer {
	case config.SignerRemote:
		return remote.New(cfg.SignerURL, cfg.SignerAPIKey, cfg.HTTPClientTimeout)
	case config.SignerLegacyHMAC:
		return hmacsig.New(), nil
	default:
		return edsigner.New(), nil
	}
}

func buildCredentials(cfg config.Config, db *sql.DB) (credentials.Store, error) {
	if cfg.CredentialRegistryURL != "" {
		client, err := registry.NewClient(registry.Config{
			BaseURL: cfg.CredentialRegistryURL,
			APIKey:  cfg.CredentialRegistryAPIKey,
			Timeout: cfg.HTTPClientTimeout,
		})
		if err != nil {
			return nil, err
		}
		return registry.NewResolver(client, cfg.CredentialCacheTTL), nil
	}
	if db != nil {
		return pg.NewCredentialsRepo(db), nil
	}
	return mem.NewCredentialRepo(nil), nil
}
