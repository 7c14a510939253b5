// Package main runs the live session coordination server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulseclass/backend/config"
	"github.com/pulseclass/backend/internal/auth"
	"github.com/pulseclass/backend/internal/live"
	"github.com/pulseclass/backend/internal/middleware"
	"github.com/pulseclass/backend/internal/realtime"
	"github.com/pulseclass/backend/internal/sessionlog"
	"github.com/pulseclass/backend/internal/sessions"
	"github.com/pulseclass/backend/internal/worker"
	"github.com/pulseclass/backend/pkg/database"
	"github.com/pulseclass/backend/pkg/queue"
	"github.com/pulseclass/backend/pkg/redis"
	"github.com/pulseclass/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	bridge := realtime.NewRedisBridge(rdb.Client, logger)
	checker := live.NewWordlistChecker(cfg.Live.BannedWords, cfg.Live.WatchedWords)

	sessionRepo := sessions.NewRepository(pool)
	registry := live.NewRegistry(live.Config{
		HistorySize:        cfg.Live.HistorySize,
		MaxMessageLen:      cfg.Live.MaxMessageLen,
		SendBuffer:         cfg.Live.SendBuffer,
		SweepInterval:      cfg.Live.SweepInterval,
		EndedRetention:     cfg.Live.EndedRetention,
		EmptyLiveGrace:     cfg.Live.EmptyLiveGrace,
		ReactionsPerSecond: cfg.Live.ReactionsPerSecond,
		ViolationThreshold: cfg.Live.ViolationThreshold,
	}, sessions.NewStore(sessionRepo), bridge, checker, logger)
	registry.SetSequencer(bridge)

	// Attendance logging and end-of-session summary jobs
	sessionLogRepo := sessionlog.NewRepository(pool)
	sessionLogHandler := sessionlog.NewHandler(sessionLogRepo)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	registry.SetHooks(live.Hooks{
		OnJoin: func(sessionID, userID uuid.UUID, role live.Role) {
			if err := sessionLogRepo.LogJoin(context.Background(), sessionID, userID, string(role)); err != nil {
				logger.Warn("log join", zap.Error(err))
			}
		},
		OnLeave: func(sessionID, userID uuid.UUID, joinedAt time.Time) {
			if err := sessionLogRepo.LogLeave(context.Background(), sessionID, userID); err != nil {
				logger.Warn("log leave", zap.Error(err))
			}
		},
		OnSessionEnded: func(sum live.Summary) {
			err := jobQueue.EnqueueSessionSummary(context.Background(), queue.SessionSummaryPayload{
				SessionID:      sum.SessionID,
				HostID:         sum.HostID,
				StartedAt:      sum.StartedAt,
				EndedAt:        sum.EndedAt,
				PeakViewers:    sum.PeakViewers,
				MessageCount:   sum.Messages,
				ReactionCount:  sum.Reactions,
				ViolationCount: sum.Violations,
			})
			if err != nil {
				logger.Error("enqueue session summary", zap.Error(err))
			}
		},
	})

	sessionHandler := sessions.NewHandler(sessionRepo, registry)
	authHandler := auth.NewHandler(jwtService, logger)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEUrls))
	for _, u := range cfg.WebRTC.ICEUrls {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Dev-only token minting (disabled unless DEV_TOKENS=true)
	if cfg.JWT.DevTokens {
		router.POST("/auth/token", authHandler.Token)
		logger.Warn("dev token endpoint enabled")
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/sessions", sessionHandler.List)
		api.POST("/sessions", middleware.RequireRole("host"), sessionHandler.Create)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.GET("/sessions/:id/viewers", sessionHandler.ViewerCount)
		api.GET("/sessions/:id/participants", sessionHandler.Participants)
		api.GET("/sessions/:id/summary", sessionHandler.Summary)
		api.GET("/sessions/:id/reviews", middleware.RequireRole("host"), sessionHandler.PendingReviews)
		api.GET("/sessions/:id/attendees", middleware.RequireRole("host"), sessionLogHandler.Attendees)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(registry, jwtService.Resolve, iceServers, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops: idle sweep and summary worker
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go registry.Run(bgCtx)

	summaryProcessor := worker.NewSummaryProcessor(sessionRepo, sessionLogRepo, jobQueue, logger)
	go summaryProcessor.Run(bgCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
