package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"sudooom.pong/internal/auth"
	"sudooom.pong/internal/config"
	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/handler"
	"sudooom.pong/internal/health"
	"sudooom.pong/internal/history"
	"sudooom.pong/internal/jwt"
	"sudooom.pong/internal/lease"
	"sudooom.pong/internal/match"
	imNats "sudooom.pong/internal/nats"
	"sudooom.pong/internal/room"
	"sudooom.pong/internal/router"
	"sudooom.pong/internal/session"
	"sudooom.pong/internal/snowflake"
	"sudooom.pong/internal/task"
	"sudooom.pong/internal/workerpool"
)

// nodeHandler 同时处理房间事件和转发来的输入
type nodeHandler struct {
	*imNats.Fanout
	*match.Engine
}

func main() {
	configPath := config.GetEnv("PONG_CONFIG", "configs/config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s, using defaults: %v\n", configPath, err)
		if cfg, err = config.FromEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)
	logger = logger.With("nodeId", cfg.App.NodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis：房间缓存与租约；未配置时退化为单进程
	var (
		redisClient *redis.Client
		cache       room.Cache
		roomLease   lease.Lease
	)
	if cfg.RedisEnabled() {
		redisClient = connectRedis(cfg.Redis)
		defer redisClient.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable at startup, cache calls will degrade", "error", err)
		}
		pingCancel()
		cache = room.NewRedisCache(redisClient)
		roomLease = lease.NewRedis(redisClient, cfg.App.NodeID, cfg.Lease.TTL)
		logger.Info("Using Redis room cache", "host", cfg.Redis.Host)
	} else {
		roomLease = lease.NewLocal(cfg.App.NodeID, cfg.Lease.TTL)
		logger.Info("Redis not configured, running single-node")
	}

	// 定时任务（房间清理）
	scheduler := task.NewScheduler(cfg.Room.SchedulerWorkers, time.Second)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	sessions := session.NewStore()
	registry := room.NewRegistry(cache, sessions, scheduler, room.Options{
		CacheTTL:          cfg.Room.CacheTTL,
		CleanupInterval:   cfg.Room.CleanupInterval,
		FinishedRetention: cfg.Room.FinishedRetention,
		InactiveTTL:       cfg.Room.InactiveTTL,
	})

	// 对局记录：PostgreSQL 可选，写入交给 Worker Pool
	var (
		db    *pgxpool.Pool
		inner history.Recorder
	)
	if cfg.DatabaseEnabled() {
		db, err = connectDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := history.NewPostgresRecorder(db, snowflake.NewNode(snowflake.NodeIDFromString(cfg.App.NodeID)))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Warn("Failed to ensure history schema", "error", err)
		}
		inner = pg
		logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)
	} else {
		inner = history.NewMemoryRecorder()
		logger.Info("Database not configured, keeping match history in memory")
	}
	historyPool := workerpool.New(cfg.History.Workers, cfg.History.QueueSize, logger)
	defer historyPool.Shutdown()
	recorder := history.NewAsyncRecorder(inner, historyPool, 5*time.Second)

	// NATS：跨节点广播与输入转发
	conns := connection.NewManager()
	var (
		natsClient *imNats.Client
		publisher  *imNats.MessagePublisher
	)
	if cfg.NATSEnabled() {
		natsClient, err = imNats.NewClient(cfg.NATS, cfg.App.NodeID)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = imNats.NewMessagePublisher(natsClient.Conn(), cfg.App.NodeID)
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	var fanout *imNats.Fanout
	deps := match.Deps{
		Registry:    registry,
		Lease:       roomLease,
		Connections: conns,
		Recorder:    recorder,
	}
	if publisher != nil {
		fanout = imNats.NewFanout(conns, publisher)
		deps.Forwarder = publisher
	} else {
		fanout = imNats.NewFanout(conns, nil)
	}
	deps.Broadcaster = fanout

	engine := match.NewEngine(deps, match.Options{
		TickRate:       cfg.Game.TickRate,
		FullStateEvery: cfg.Game.FullStateEvery,
		DeltaDeadband:  cfg.Game.DeltaDeadband,
		ReconcileRange: cfg.Game.ReconcileRange,
	})

	var subscriber *imNats.MessageSubscriber
	if natsClient != nil {
		subscriber = imNats.NewMessageSubscriber(natsClient.Conn(), cfg.App.NodeID,
			nodeHandler{Fanout: fanout, Engine: engine}, imNats.SubscriberConfig{})
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("Failed to start subscriber", "error", err)
			os.Exit(1)
		}
	}

	// 连接回收：不加入房间或长时间无消息的连接直接关闭
	heartbeat := connection.NewHeartbeatChecker(conns, connection.HeartbeatPolicy{
		IdleTimeout:   cfg.Server.PongTimeout,
		JoinTimeout:   cfg.Server.JoinTimeout,
		CheckInterval: cfg.Server.PingInterval,
	}, func(c *connection.Connection, reason connection.TimeoutReason) {
		logger.Info("Connection reclaimed", "connId", c.ID(), "roomCode", c.RoomCode(), "reason", reason)
	})
	go heartbeat.Start(ctx)

	// HTTP 服务
	jwtService := jwt.NewService(cfg.JWT.SecretKey, 24*time.Hour)
	if !jwtService.Enabled() {
		logger.Warn("JWT secret not configured, every player joins as guest")
	}
	resolver := auth.NewResolver(jwtService)

	r := router.SetupRouter(cfg,
		handler.NewRoomHandler(registry, resolver),
		handler.NewHistoryHandler(recorder),
		handler.NewGameHandler(engine, resolver, cfg.CORS.AllowedOrigins, connection.Options{
			WriteTimeout: cfg.Server.WriteTimeout,
			PingInterval: cfg.Server.PingInterval,
			PongTimeout:  cfg.Server.PongTimeout,
		}),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Pong server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	healthChecker := newHealthChecker(cfg.App.NodeID, natsClient, redisClient, db, conns, engine)
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler: healthChecker.Mux(),
	}
	go func() {
		logger.Info("Health check server started", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed", "error", err)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown error", "error", err)
	}
	_ = healthServer.Shutdown(shutdownCtx)

	// 先停循环并释放租约，让其他节点尽快接手
	engine.Shutdown()
	conns.CloseAll()
	if subscriber != nil {
		_ = subscriber.Stop()
	}
	cancel()
	logger.Info("Pong server stopped")
}

// newHealthChecker 未配置的依赖以 nil 接口传入，避免把 nil 指针包进接口
func newHealthChecker(nodeID string, natsClient *imNats.Client, redisClient *redis.Client, db *pgxpool.Pool, conns *connection.Manager, engine *match.Engine) *health.Checker {
	var nc *nats.Conn
	if natsClient != nil {
		nc = natsClient.Conn()
	}
	var rc redis.UniversalClient
	if redisClient != nil {
		rc = redisClient
	}
	return health.NewChecker(nodeID, nc, rc, db, conns, engine)
}

// parseLevel 解析日志级别，未知值按 info 处理
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
