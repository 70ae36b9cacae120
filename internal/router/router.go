package router

import (
	"database/sql"
	"net/http"

	_ "custody-ledger/docs"
	"custody-ledger/internal/adapters/signing/edsigner"
	mem "custody-ledger/internal/adapters/storage/memory"
	pg "custody-ledger/internal/adapters/storage/postgres"
	"custody-ledger/internal/domain/custody"
	"custody-ledger/internal/middleware"
	"custody-ledger/internal/platform/logger"
	"custody-ledger/internal/ports/auth"
	"custody-ledger/internal/ports/credentials"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Service y Credentials los arma main con el signer y publisher
	// configurados. Si faltan, se arma un ledger ed25519 sobre DB o memoria.
	Service     *custody.Service
	Credentials credentials.Store

	Logger      logger.Logger
	CORSOrigins []string
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))
	r.Use(middleware.RequestLogger(log))

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	creds := opts.Credentials
	if creds == nil {
		if opts.DB != nil {
			creds = pg.NewCredentialsRepo(opts.DB)
		} else {
			creds = mem.NewCredentialRepo(nil)
		}
	}

	svc := opts.Service
	if svc == nil {
		var (
			repo   custody.Repository
			locker custody.BatchLocker
		)
		if opts.DB != nil {
			repo = pg.NewCustodyRepo(opts.DB)
			locker = pg.NewBatchLocker(opts.DB)
		} else {
			repo = mem.NewCustodyRepo()
		}
		svc = custody.NewService(repo, edsigner.New(), custody.Options{
			Locker:      locker,
			Credentials: creds,
			Logger:      log,
		})
	}

	custody.RegisterRoutes(r, svc, creds)

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			middleware.DebugActorHeader, middleware.DebugRoleHeader,
		},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
}
