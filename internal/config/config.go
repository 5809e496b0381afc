// Package config предоставляет структуры и функции для загрузки конфига движка подписок.
// Значения читаются из YAML-файла и могут быть переопределены переменными окружения.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	Currency                string `yaml:"currency" env:"CURRENCY" env-default:"USD"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	RabbitMQ                `yaml:"rabbitmq"`
	Reconcile               `yaml:"reconcile"`
	Locker                  `yaml:"locker"`
	RateLimit               `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес означает работу без redis: блокировки берутся внутри процесса.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// RabbitMQ настройки публикации и чтения событий жизненного цикла подписки.
// Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string        `yaml:"exchange" env-default:"subscriptions"`
	Retries    int           `yaml:"retries" env-default:"5"`
	Delay      time.Duration `yaml:"delay" env-default:"2s"`
	AuditQueue string        `yaml:"audit_queue" env:"AUDIT_QUEUE" env-default:"subscriptions.audit"`
	Workers    int           `yaml:"workers" env-default:"4"`
}

// Reconcile настройки фоновой сверки истёкших подписок.
type Reconcile struct {
	Enabled  bool   `yaml:"enabled" env:"RECONCILE_ENABLED"`
	Schedule string `yaml:"schedule" env:"RECONCILE_SCHEDULE" env-default:"@every 1h"`
}

// Locker настройки блокировки мутаций по пользователю.
type Locker struct {
	TTL           time.Duration `yaml:"ttl" env-default:"10s"`
	RetryInterval time.Duration `yaml:"retry_interval" env-default:"50ms"`
	WaitTimeout   time.Duration `yaml:"wait_timeout" env-default:"5s"`
}

// RateLimit ограничение частоты запросов одного пользователя.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"10"`
	Burst int     `yaml:"burst" env-default:"20"`
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH, и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и применяет переменные окружения.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.StorageConnectionString == "" && cfg.Env != "local" {
		return nil, fmt.Errorf("%s: storage_connection_string is required for env %q", op, cfg.Env)
	}
	return &cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Currency: %s\n"+
			"Storage: %t\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  User: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"RabbitMQ:\n"+
			"  Enabled: %t\n"+
			"  Exchange: %s\n"+
			"Reconcile:\n"+
			"  Enabled: %t\n"+
			"  Schedule: %s\n",
		c.Env,
		c.Currency,
		c.StorageConnectionString != "",
		c.AddressRedis,
		c.User,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.RabbitMQ.URL != "",
		c.Exchange,
		c.Reconcile.Enabled,
		c.Schedule,
	)
}
