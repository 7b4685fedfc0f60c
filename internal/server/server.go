package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/contactsbook/identity/config"
	"github.com/contactsbook/identity/internal/avatar"
	"github.com/contactsbook/identity/internal/db"
	"github.com/contactsbook/identity/internal/handlers"
	"github.com/contactsbook/identity/internal/logging"
	"github.com/contactsbook/identity/internal/mailer"
	"github.com/contactsbook/identity/internal/metrics"
	"github.com/contactsbook/identity/internal/mq"
	"github.com/contactsbook/identity/internal/security"
	"github.com/contactsbook/identity/internal/services"
	"github.com/contactsbook/identity/internal/storage"
	"github.com/contactsbook/identity/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     zerolog.Logger

	stopConsumer func()
}

// New constructs a Server with its dependencies wired from cfg.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	sender, queue, err := newMailSender(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	stopConsumer := func() {}
	if cfg.Queue.Backend == config.QueueBackendMemory {
		stopConsumer, err = consumeInProcess(cfg, queue, logger)
		if err != nil {
			_ = queue.Close()
			_ = dbConn.Close()
			return nil, err
		}
	}

	tokens, err := security.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		stopConsumer()
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	identity := services.NewIdentityService(services.IdentityDeps{
		Users:     store.NewUserRepository(dbConn),
		Sessions:  store.NewSessionRepository(dbConn),
		Hasher:    security.NewBcryptHasher(security.DefaultBcryptCost),
		Tokens:    tokens,
		Avatars:   avatar.NewProcessor(),
		Storage:   objects,
		Mail:      sender,
		Metrics:   metrics.New(registry),
		Logger:    logger,
		PublicURL: cfg.PublicBaseURL,
	})

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
	)
	router.Use(logging.Middleware(logger)...)
	router.Use(
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/api/users", func(r chi.Router) {
		handlers.AuthRouter(r, identity)
	})
	if cfg.Storage.Backend == config.StorageBackendLocal {
		router.Handle("/avatars/*", avatarFileServer(filepath.Join(cfg.Storage.LocalDir, "avatars"), "/avatars/"))
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,

		stopConsumer: stopConsumer,
	}, nil
}

// newMailSender sends inline over SMTP unless a mail queue is configured,
// in which case messages are published for the worker command.
func newMailSender(ctx context.Context, cfg config.Config) (mailer.Sender, *mq.MQ, error) {
	if cfg.Queue.Backend == config.QueueBackendNone {
		sender, err := mailer.NewSMTPSender(cfg.Mail)
		if err != nil {
			return nil, nil, fmt.Errorf("init mailer: %w", err)
		}
		return sender, nil, nil
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init mail queue: %w", err)
	}
	return mailer.NewQueueSender(queue, cfg.Queue.Channel), queue, nil
}

// consumeInProcess drains the memory mail queue over SMTP until the
// returned stop function is called.
func consumeInProcess(cfg config.Config, queue *mq.MQ, logger zerolog.Logger) (func(), error) {
	smtp, err := mailer.NewSMTPSender(cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	consumerLogger := logger.With().Str("component", "mail-consumer").Logger()
	go func() {
		defer close(done)
		if err := mailer.Consume(ctx, queue, cfg.Queue.Channel, smtp, consumerLogger); err != nil && !errors.Is(err, context.Canceled) {
			consumerLogger.Error().Err(err).Msg("mail consumer stopped")
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.stopConsumer != nil {
		s.stopConsumer()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
