package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillforge/skillforge-backend/internal/data/db"
	"github.com/skillforge/skillforge-backend/internal/data/repos/jobs"
	"github.com/skillforge/skillforge-backend/internal/handlers"
	executor "github.com/skillforge/skillforge-backend/internal/jobs"
	"github.com/skillforge/skillforge-backend/internal/middleware"
	"github.com/skillforge/skillforge-backend/internal/pkg/envutil"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
	"github.com/skillforge/skillforge-backend/internal/realtime"
	"github.com/skillforge/skillforge-backend/internal/realtime/bus"
	"github.com/skillforge/skillforge-backend/internal/server"
	"github.com/skillforge/skillforge-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	jobRepo := jobs.NewGenerationJobRepo(thePG, log)

	// Realtime
	log.Info("Setting up SSE hub now...")
	sseHub := realtime.NewSSEHub(log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With Redis configured, job events fan out across instances; without
	// it, events stay on the local hub (single-instance deployments).
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	eventBus, busErr := bus.NewRedisBus(log)
	if busErr != nil {
		log.Warn("Redis bus unavailable; using in-process hub only", "error", busErr)
	} else {
		if err := eventBus.StartForwarder(rootCtx, sseHub.Broadcast); err != nil {
			log.Error("Could not start bus forwarder", "error", err)
			os.Exit(1)
		}
		emitter = &services.RedisEmitter{Bus: eventBus}
		defer eventBus.Close()
	}

	// Services
	log.Info("Setting up services from main...")
	notifier := services.NewJobNotifier(emitter)
	aiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	dispatcher := services.NewHTTPDispatcher(log)
	generationService := services.NewGenerationService(thePG, log, jobRepo, notifier, dispatcher)
	jobExecutor := executor.NewGenerationExecutor(thePG, log, jobRepo, aiClient, notifier)

	var escalationRelay services.EscalationRelay
	if relay, err := services.NewEscalationRelay(log, services.EscalationConfigFromEnv()); err != nil {
		log.Warn("Escalation relay disabled", "error", err)
	} else {
		escalationRelay = relay
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	generationHandler := handlers.NewGenerationHandler(generationService)
	internalJobsHandler := handlers.NewInternalJobsHandler(log, jobExecutor)
	sseHandler := handlers.NewSSEHandler(log, sseHub)
	chatHandler := handlers.NewChatHandler(log, escalationRelay)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log)
	internalMiddleware := middleware.NewInternalAuthMiddleware(log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:     authMiddleware,
		InternalMiddleware: internalMiddleware,
		GenerationHandler:  generationHandler,
		InternalJobs:       internalJobsHandler,
		SSEHandler:         sseHandler,
		ChatHandler:        chatHandler,
	})

	port := envutil.String("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
