package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Room     RoomConfig     `mapstructure:"room"`
	Lease    LeaseConfig    `mapstructure:"lease"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	History  HistoryConfig  `mapstructure:"history"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   string `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
	Mode     string `mapstructure:"mode"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	HealthPort   int           `mapstructure:"health_port"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
	JoinTimeout  time.Duration `mapstructure:"join_timeout"`
}

type GameConfig struct {
	TickRate       int     `mapstructure:"tick_rate"`
	FullStateEvery int     `mapstructure:"full_state_every"`
	DeltaDeadband  int     `mapstructure:"delta_deadband"`
	ReconcileRange float64 `mapstructure:"reconcile_range"`
}

type RoomConfig struct {
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	FinishedRetention time.Duration `mapstructure:"finished_retention"`
	InactiveTTL       time.Duration `mapstructure:"inactive_ttl"`
	SchedulerWorkers  int           `mapstructure:"scheduler_workers"`
}

type LeaseConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type HistoryConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// Load 从指定路径加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 从环境变量覆盖配置
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// 默认值都是基本类型，Unmarshal 不会失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// FromEnv 没有配置文件时使用默认值，再由环境变量覆盖
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pong")
	v.SetDefault("app.node_id", "pong-1")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.mode", "release")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.ping_interval", 25*time.Second)
	v.SetDefault("server.pong_timeout", 60*time.Second)
	v.SetDefault("server.join_timeout", 30*time.Second)

	v.SetDefault("game.tick_rate", 30)
	v.SetDefault("game.full_state_every", 90)
	v.SetDefault("game.delta_deadband", 0)
	v.SetDefault("game.reconcile_range", 30.0)

	v.SetDefault("room.cache_ttl", 300*time.Second)
	v.SetDefault("room.cleanup_interval", 60*time.Second)
	v.SetDefault("room.finished_retention", time.Hour)
	v.SetDefault("room.inactive_ttl", 10*time.Minute)
	v.SetDefault("room.scheduler_workers", 2)

	v.SetDefault("lease.ttl", 3*time.Second)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("history.workers", 2)
	v.SetDefault("history.queue_size", 128)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.NodeID = GetEnv("NODE_ID", c.App.NodeID)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)
	c.Server.Port = GetEnvInt("PONG_PORT", c.Server.Port)
	c.Server.HealthPort = GetEnvInt("PONG_HEALTH_PORT", c.Server.HealthPort)

	// Game
	c.Game.TickRate = GetEnvInt("PONG_TICK_RATE", c.Game.TickRate)

	// JWT
	c.JWT.SecretKey = GetEnv("JWT_SECRET_KEY", c.JWT.SecretKey)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// Database
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.ConnMaxLifetime = GetEnvDuration("POSTGRES_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	// Room
	c.Room.FinishedRetention = GetEnvDuration("FINISHED_GAME_TTL", c.Room.FinishedRetention)
	c.Room.InactiveTTL = GetEnvDuration("INACTIVE_GAME_TTL", c.Room.InactiveTTL)

	// CORS
	c.CORS.AllowCredentials = GetEnvBool("CORS_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Game.TickRate <= 0 || c.Game.TickRate > 120 {
		return fmt.Errorf("game.tick_rate must be in (0, 120], got %d", c.Game.TickRate)
	}
	if c.Lease.TTL < 100*time.Millisecond {
		return fmt.Errorf("lease.ttl too short: %s", c.Lease.TTL)
	}
	// 清理任务挂在 60 槽时间轮上，间隔不能超过一圈
	if c.Room.CleanupInterval < time.Second || c.Room.CleanupInterval > 60*time.Second {
		return fmt.Errorf("room.cleanup_interval must be in [1s, 60s], got %s", c.Room.CleanupInterval)
	}
	if c.Game.DeltaDeadband < 0 {
		return fmt.Errorf("game.delta_deadband must not be negative")
	}
	return nil
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool { return c.Redis.Host != "" }

// NATSEnabled 是否配置了 NATS
func (c *Config) NATSEnabled() bool { return c.NATS.URL != "" }

// DatabaseEnabled 是否配置了 PostgreSQL
func (c *Config) DatabaseEnabled() bool { return c.Database.Host != "" }

// FrameDuration 每帧时长
func (g GameConfig) FrameDuration() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}
