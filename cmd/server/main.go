// Check-in assistant server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/ashureev/checkin/internal/api"
	"github.com/ashureev/checkin/internal/bot"
	"github.com/ashureev/checkin/internal/cache"
	"github.com/ashureev/checkin/internal/chat"
	"github.com/ashureev/checkin/internal/checkin"
	"github.com/ashureev/checkin/internal/config"
	"github.com/ashureev/checkin/internal/health"
	"github.com/ashureev/checkin/internal/identity"
	"github.com/ashureev/checkin/internal/middleware"
	"github.com/ashureev/checkin/internal/schedule"
	"github.com/ashureev/checkin/internal/seed"
	"github.com/ashureev/checkin/internal/store"
	"github.com/ashureev/checkin/internal/transcript"
	"github.com/ashureev/checkin/internal/worker"
	"github.com/ashureev/checkin/web"
)

const healthProbeInterval = 30 * time.Second

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "pending_backend", cfg.PendingBackend)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	questions, err := seed.Load(cfg.QuestionsFile)
	if err != nil {
		slog.Error("Failed to load question catalogue", "error", err)
		os.Exit(1)
	}
	inserted, err := repo.SeedQuestions(context.Background(), questions)
	if err != nil {
		slog.Error("Failed to seed questions", "error", err)
		os.Exit(1)
	}
	slog.Info("Question catalogue ready", "questions", len(questions), "inserted", inserted)

	var pending store.PendingStore = repo
	if cfg.PendingBackend == config.PendingBackendRedis {
		redisStore, err := cache.NewPendingStore(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				slog.Error("Failed to close Redis client", "error", closeErr)
			}
		}()
		pending = redisStore
		slog.Info("Redis pending store connected", "addr", cfg.Redis.Addr)
	}

	transcriptLog, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcriptLog.Close(); closeErr != nil {
			slog.Warn("Failed to close transcript log", "error", closeErr)
		}
	}()

	// Initialize services.
	dispatcher := worker.NewDispatcher(worker.Config{
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: cfg.Worker.IdleTimeout,
	})
	defer dispatcher.Stop()

	hub := chat.NewHub()
	sender := transcript.WrapSender(hub, transcriptLog)
	svc := checkin.NewService(repo, pending, sender, dispatcher, checkin.Config{SessionTTL: cfg.SessionTTL})
	inbound := transcript.WrapHandler(bot.NewRouter(svc, repo, sender), transcriptLog)
	checker := health.NewChecker(repo, cfg.HealthCheckTimeout)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, svc, inbound, cfg.InboundToken)
	if cfg.InboundToken == "" {
		slog.Info("INBOUND_TOKEN not set, inbound message webhook disabled")
	}
	healthHandler := api.NewHealthHandler(checker)
	wsHandler := chat.NewHandler(hub, inbound, cfg.AllowedOrigins()[0], cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded chat client.
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	checker.Start(ctx, healthProbeInterval)

	scheduler := schedule.NewScheduler(repo, func(ctx context.Context, userID string, now time.Time) error {
		outcome, err := svc.TriggerScheduledCheck(ctx, userID, now)
		if err == nil {
			slog.Debug("Scheduled check finished", "user_id", userID, "outcome", outcome)
		}
		return err
	}, cfg.SchedulerTick)
	scheduler.Start(ctx)

	svc.StartExpiryWorker(ctx, cfg.ExpirySweep)

	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		checker.Register(grpcServer)
		go func() {
			slog.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				slog.Error("gRPC server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	checker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	slog.Info("Server stopped successfully")
}
