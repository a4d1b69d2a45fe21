// Package config предоставляет структуры и функции для загрузки конфигурации
// из YAML-файла (CONFIG_PATH) и переменных окружения.
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string          `yaml:"env" env:"DASHBOARD_ENV" env-default:"local" validate:"oneof=local dev prod test"`
	Storage         Storage         `yaml:"storage"`
	HTTPServer      HTTPServer      `yaml:"http_server"`
	Snapshot        Snapshot        `yaml:"snapshot"`
	Auth            Auth            `yaml:"auth"`
	CORS            CORS            `yaml:"cors"`
	RateLimit       RateLimit       `yaml:"rate_limit"`
	RedisConnection RedisConnection `yaml:"redis_connection"`
	RabbitMQ        RabbitMQ        `yaml:"rabbitmq"`
	Exporter        Exporter        `yaml:"exporter"`
}

// Storage описывает хранилище бота. Для sqlite3 используется Path, для pgx DSN.
type Storage struct {
	Driver string `yaml:"driver" env:"DASHBOARD_DB_DRIVER" env-default:"sqlite3" validate:"oneof=sqlite3 pgx"`
	Path   string `yaml:"path" env:"DASHBOARD_DB_PATH" env-default:"misc/db.sqlite"`
	DSN    string `yaml:"dsn" env:"DASHBOARD_DB_DSN"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	Host        string        `yaml:"host" env:"DASHBOARD_HOST"`
	Port        int           `yaml:"port" env:"DASHBOARD_PORT" env-default:"8000" validate:"min=1,max=65535"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Address возвращает адрес для net.Listen.
func (s HTTPServer) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Snapshot параметры построения снапшота.
type Snapshot struct {
	Timezone     string `yaml:"timezone" env:"DASHBOARD_TIMEZONE" env-default:"Europe/Kyiv" validate:"required"`
	ExpiringDays int    `yaml:"expiring_days" env:"DASHBOARD_EXPIRING_DAYS" env-default:"7" validate:"min=1"`
}

// Auth доступ к API. Если не задан ни один из способов, API открыт.
type Auth struct {
	APIToken     string        `yaml:"api_token" env:"DASHBOARD_API_TOKEN"`
	APITokenHash string        `yaml:"api_token_hash" env:"DASHBOARD_API_TOKEN_HASH"`
	JWTSecret    string        `yaml:"jwt_secret" env:"DASHBOARD_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"720h"`
}

// Enabled сообщает, настроен ли хотя бы один способ проверки токена.
func (a Auth) Enabled() bool {
	return strings.TrimSpace(a.APIToken) != "" || a.APITokenHash != "" || a.JWTSecret != ""
}

// CORS список разрешённых источников; "*" разрешает все.
type CORS struct {
	Origins []string `yaml:"origins" env:"DASHBOARD_CORS_ORIGINS" env-default:"*"`
}

// AllowAll сообщает, что в списке есть "*".
func (c CORS) AllowAll() bool {
	for _, o := range c.Origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// RateLimit ограничение частоты запросов к /api.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env:"DASHBOARD_RATE_LIMIT_RPS" env-default:"10"`
	Burst int     `yaml:"burst" env:"DASHBOARD_RATE_LIMIT_BURST" env-default:"20"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	Address     string        `yaml:"address" env:"DASHBOARD_REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"DASHBOARD_REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
}

// RabbitMQ настройки публикации событий об обновлении снапшота.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"DASHBOARD_RABBITMQ_URL"`
	Exchange   string        `yaml:"exchange" env-default:"dashboard"`
	RoutingKey string        `yaml:"routing_key" env-default:"snapshot.updated"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// Exporter настройки фонового экспорта снапшота.
type Exporter struct {
	Interval      time.Duration `yaml:"interval" env:"DASHBOARD_EXPORT_INTERVAL" env-default:"5s"`
	OutputPath    string        `yaml:"output_path" env:"DASHBOARD_EXPORT_PATH" env-default:"dashboard/src/data/db.json"`
	CacheKey      string        `yaml:"cache_key" env-default:"dashboard:snapshot"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env-default:"10m"`
	PaymentsLimit int           `yaml:"payments_limit" env-default:"120"`
}

// Load читает конфиг из файла CONFIG_PATH, если он задан, иначе только из окружения.
func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг и завершает процесс при ошибке.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  Path: %s\n"+
			"  DSN: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Snapshot:\n"+
			"  Timezone: %s\n"+
			"  ExpiringDays: %d\n"+
			"Auth:\n"+
			"  APIToken: %s\n"+
			"  APITokenHash: %s\n"+
			"  JWTSecret: %s\n"+
			"CORS:\n"+
			"  Origins: %s\n"+
			"RedisConnection:\n"+
			"  Address: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"Exporter:\n"+
			"  Interval: %s\n"+
			"  OutputPath: %s\n",
		c.Env,
		c.Storage.Driver,
		c.Storage.Path,
		mask(c.Storage.DSN),
		c.HTTPServer.Address(),
		c.HTTPServer.Timeout,
		c.HTTPServer.IdleTimeout,
		c.Snapshot.Timezone,
		c.Snapshot.ExpiringDays,
		mask(c.Auth.APIToken),
		mask(c.Auth.APITokenHash),
		mask(c.Auth.JWTSecret),
		strings.Join(c.CORS.Origins, ","),
		c.RedisConnection.Address,
		mask(c.RabbitMQ.URL),
		c.Exporter.Interval,
		c.Exporter.OutputPath,
	)
}
