package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	BindAddress string
	AppEnv      string

	TriviaAPIURL string
	HTTPTimeout  time.Duration

	SessionSecret string
	SessionTTL    time.Duration

	// An empty DBHost disables the results archive.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// An empty RedisHost keeps tokens in memory and disables the lobby mirror.
	RedisHost     string
	RedisPort     string
	RedisPassword string

	AbandonedRoomTTL time.Duration
	ResultsRetention time.Duration
	AllowedOrigins   []string
}

// Load reads the configuration from the environment. Values from the env
// file named by --env-file (default .env, optional) are loaded first and
// never override variables already set; --port overrides PORT.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("opentrivia", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "optional dotenv file to load")
	port := flags.String("port", "", "listen port (overrides PORT)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		BindAddress:   getEnv("BIND_ADDRESS", ""),
		AppEnv:        getEnv("APP_ENV", "production"),
		TriviaAPIURL:  strings.TrimRight(getEnv("TRIVIA_API_URL", "https://opentdb.com"), "/"),
		SessionSecret: getEnv("SESSION_SECRET", "change-me-in-production"),
		DBHost:        getEnv("DB_HOST", ""),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "opentrivia"),
		DBPassword:    getEnv("DB_PASSWORD", "opentrivia"),
		DBName:        getEnv("DB_NAME", "opentrivia"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}
	if *port != "" {
		cfg.Port = *port
	}

	var err error
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AbandonedRoomTTL, err = getDuration("ABANDONED_ROOM_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResultsRetention, err = getDuration("RESULTS_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func (c *Config) DatabaseEnabled() bool { return c.DBHost != "" }

func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// InitLogger returns a development logger when APP_ENV=development and a
// production JSON logger otherwise.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	return client
}
