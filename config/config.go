package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Firebase  FirebaseConfig
	Generator GeneratorConfig
	Renderer  RendererConfig
	Storage   StorageConfig
	Limits    LimitsConfig
	Sweeper   SweeperConfig
	App       AppConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	// URL takes precedence over the discrete fields when set.
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	CredentialsPath string
	ProjectID       string
}

type GeneratorConfig struct {
	Provider      string // openai, upstream or static
	PromptsFile   string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Temperature   float64
	UpstreamURL   string
	Timeout       time.Duration
	Parallelism   int
}

type RendererConfig struct {
	PlantUMLURL string
	MermaidURL  string
	Format      string
	Timeout     time.Duration
}

type StorageConfig struct {
	Driver        string // s3 or local
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	PublicBaseURL string
	LocalDir      string
}

type LimitsConfig struct {
	// GenerationsPerMinute bounds create and regenerate calls per user.
	GenerationsPerMinute int
	GenerationBurst      int
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
	// AuthMode is "firebase" or "dev". Dev trusts the X-User-Id header.
	AuthMode string
	// StoreDriver is "postgres" or "memory".
	StoreDriver string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "umlstudio"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Generator: GeneratorConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			PromptsFile:   getEnv("LLM_PROMPTS_FILE", ""),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			Temperature:   getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			UpstreamURL:   getEnv("LLM_UPSTREAM_URL", ""),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 90*time.Second),
			Parallelism:   getEnvAsInt("GENERATION_PARALLELISM", 4),
		},
		Renderer: RendererConfig{
			PlantUMLURL: getEnv("PLANTUML_SERVER_URL", "http://localhost:8000"),
			MermaidURL:  getEnv("MERMAID_SERVER_URL", ""),
			Format:      strings.ToLower(getEnv("RENDER_FORMAT", "svg")),
			Timeout:     getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Region:      getEnv("AWS_REGION", "us-east-1"),
			S3Endpoint:    getEnv("S3_ENDPOINT", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			LocalDir:      getEnv("UPLOADS_DIR", "./uploads"),
		},
		Limits: LimitsConfig{
			GenerationsPerMinute: getEnvAsInt("GENERATIONS_PER_MINUTE", 10),
			GenerationBurst:      getEnvAsInt("GENERATION_BURST", 3),
		},
		Sweeper: SweeperConfig{
			Schedule:   getEnv("SWEEPER_SCHEDULE", "@every 1m"),
			StaleAfter: getEnvAsDuration("SWEEPER_STALE_AFTER", 15*time.Minute),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			AuthMode:    strings.ToLower(getEnv("AUTH_MODE", "dev")),
			StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.App.StoreDriver {
	case "postgres":
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("DB_HOST or DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.App.StoreDriver)
	}

	switch c.App.AuthMode {
	case "firebase":
		if c.Firebase.CredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_MODE=firebase")
		}
	case "dev":
		if c.App.Environment == "production" {
			return fmt.Errorf("AUTH_MODE=dev is not allowed in production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be firebase or dev, got %q", c.App.AuthMode)
	}

	switch c.Generator.Provider {
	case "openai":
		if c.Generator.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "upstream":
		if c.Generator.UpstreamURL == "" {
			return fmt.Errorf("LLM_UPSTREAM_URL is required when LLM_PROVIDER=upstream")
		}
	case "static":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai, upstream or static, got %q", c.Generator.Provider)
	}

	if c.Renderer.PlantUMLURL == "" {
		return fmt.Errorf("PLANTUML_SERVER_URL is required")
	}
	if c.Renderer.Format != "svg" && c.Renderer.Format != "png" {
		return fmt.Errorf("RENDER_FORMAT must be svg or png")
	}

	switch c.Storage.Driver {
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("UPLOADS_DIR is required when STORAGE_DRIVER=local")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be s3 or local, got %q", c.Storage.Driver)
	}

	if c.Sweeper.StaleAfter <= 0 {
		return fmt.Errorf("SWEEPER_STALE_AFTER must be positive")
	}

	return nil
}

// DSN returns the lib/pq / pgx connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
