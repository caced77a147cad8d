package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/trektide/apiserver/config"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/db"
	"github.com/trektide/apiserver/internal/handlers"
	"github.com/trektide/apiserver/internal/mail"
	"github.com/trektide/apiserver/internal/mq"
	"github.com/trektide/apiserver/internal/payments"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/internal/storage"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/internal/web"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Server wraps the HTTP server with its backing connections.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	client     *mongo.Client
	queue      *mq.MQ
	logger     *slog.Logger
}

// New connects the backing services and wires every route.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	client, database, err := db.Open(ctx, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	objectStore, err := storage.Connect(ctx, cfg.Storage)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	queue, err := mq.Connect(ctx, cfg.MQ)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("connect mq: %w", err)
	}

	accountRepo := store.NewAccountRepository(database)
	tourRepo := store.NewTourRepository(database)
	reviewRepo := store.NewReviewRepository(database)
	bookingRepo := store.NewBookingRepository(database)

	// The welcome and booking mails go through the queue; password reset
	// mail is sent synchronously so a failure can roll the reset back.
	notify := mail.NewQueueSender(queue, mail.DefaultChannel)
	resetMail, err := mail.NewSMTPSender(cfg.SMTP)
	if err != nil {
		_ = queue.Close()
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("configure smtp: %w", err)
	}

	codec := auth.NewCodec(cfg.JWT.Secret, cfg.JWT.TTL, time.Now)
	stripeProvider := payments.NewStripeProvider(cfg.Stripe)

	accountService := services.NewAccountService(accountRepo, notify, resetMail, logger, time.Now)
	tourService := services.NewTourService(tourRepo)
	reviewService := services.NewReviewService(reviewRepo, tourRepo, logger)
	bookingService := services.NewBookingService(bookingRepo, tourRepo, accountRepo, stripeProvider, notify, logger)
	mediaService := services.NewMediaService(objectStore)

	session := handlers.NewSessionMiddleware(codec, accountService, cfg.JWT.CookieName)
	secureCookie := cfg.Env == "production"

	authHandler := handlers.NewAuthHandler(accountService, mediaService, codec, cfg.JWT.CookieName, secureCookie, cfg.BaseURL)
	userHandler := handlers.NewUserHandler(accountService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	tourHandler := handlers.NewTourHandler(tourService, mediaService)
	bookingHandler := handlers.NewBookingHandler(bookingService, stripeProvider, cfg.BaseURL)
	mediaHandler := handlers.NewMediaHandler(mediaService)

	viewHandler, err := web.NewHandler(tourService, reviewService, bookingService, logger)
	if err != nil {
		_ = queue.Close()
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	limiter := newIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.Healthz)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Route("/users", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, session)
			handlers.UserRouter(r, userHandler, session)
		})
		r.Route("/tours", func(r chi.Router) {
			handlers.TourRouter(r, tourHandler, reviewHandler, session)
		})
		r.Route("/reviews", func(r chi.Router) {
			handlers.StandaloneReviewRouter(r, reviewHandler, session)
		})
		r.Route("/bookings", func(r chi.Router) {
			handlers.BookingRouter(r, bookingHandler, session)
		})
	})

	// Stripe signs the raw payload, so this route stays outside the
	// rate-limited API group.
	router.Post("/webhook-checkout", bookingHandler.Webhook)

	router.Get("/img/*", mediaHandler.ServeImage)

	web.Router(router, viewHandler, session.RequireAuth, session.OptionalAuth)

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
		client:     client,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.client != nil {
		_ = s.client.Disconnect(ctx)
	}
	return err
}
