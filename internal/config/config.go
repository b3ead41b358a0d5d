package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the URBAN API server.
type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Uploads   UploadConfig
	Jobs      JobConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	FileStore FileStoreConfig
	Minio     MinioConfig
	Auth      AuthConfig
	Staging   StagingConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
}

type ModelConfig struct {
	BaseURL string
	Timeout time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type JobConfig struct {
	Workers int
}

type StoreConfig struct {
	Backend string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL          string
	JobCacheTTL  time.Duration
	RequestsPerM int
}

type FileStoreConfig struct {
	Backend string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

type AuthConfig struct {
	APIKeyHash string
}

type StagingConfig struct {
	// VariableOverrides maps a variable hint (temperature, precipitation, yield)
	// to the exact dataset variable name to use when present.
	VariableOverrides map[string]string
	// SegmentSize tiles staged urban rasters into SegmentSize squares. Zero disables it.
	SegmentSize int
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendMinio    = "minio"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	overrides, err := parseOverrides(os.Getenv("CLIMATE_VARIABLE_OVERRIDES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("URBAN_PORT", 8000),
			Env:            envString("URBAN_ENV", "development"),
			AllowedOrigins: envList("ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Model: ModelConfig{
			BaseURL: strings.TrimRight(envString("URBAN_MODEL_SERVICE_URL", "http://localhost:8001"), "/"),
			Timeout: envDurationSecs("MODEL_TIMEOUT_SECS", 300*time.Second),
		},
		Uploads: UploadConfig{
			Dir:      envString("UPLOAD_DIR", "uploads"),
			MaxBytes: int64(envInt("MAX_UPLOAD_BYTES", 512<<20)),
		},
		Jobs: JobConfig{
			Workers: envInt("WORKER_COUNT", 4),
		},
		Store: StoreConfig{
			Backend: envString("STORE_BACKEND", BackendMemory),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			JobCacheTTL:  envDuration("JOB_CACHE_TTL", 30*time.Minute),
			RequestsPerM: envInt("RATE_LIMIT_PER_MIN", 120),
		},
		FileStore: FileStoreConfig{
			Backend: envString("FILE_STORE_BACKEND", BackendLocal),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Region:    envString("MINIO_REGION", "us-east-1"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			Bucket:    envString("MINIO_BUCKET", "urban-uploads"),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("AUTH_API_KEY_HASH"),
		},
		Staging: StagingConfig{
			VariableOverrides: overrides,
			SegmentSize:       envInt("STAGING_SEGMENT_SIZE", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Model.BaseURL, "http://") && !strings.HasPrefix(c.Model.BaseURL, "https://") {
		return fmt.Errorf("URBAN_MODEL_SERVICE_URL must start with http:// or https://, got %q", c.Model.BaseURL)
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT_SECS must be positive")
	}

	if c.Uploads.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.Jobs.Workers)
	}

	if c.Staging.SegmentSize < 0 {
		return fmt.Errorf("STAGING_SEGMENT_SIZE must not be negative, got %d", c.Staging.SegmentSize)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, postgres; got %q", c.Store.Backend)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	switch c.FileStore.Backend {
	case BackendLocal:
	case BackendMinio:
		if c.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when FILE_STORE_BACKEND is minio")
		}
		if strings.Contains(c.Minio.Endpoint, "://") {
			return fmt.Errorf("MINIO_ENDPOINT must not include scheme: %q", c.Minio.Endpoint)
		}
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when FILE_STORE_BACKEND is minio")
		}
	default:
		return fmt.Errorf("FILE_STORE_BACKEND must be one of local, minio; got %q", c.FileStore.Backend)
	}

	return nil
}

// parseOverrides parses "hint=variable,hint=variable".
func parseOverrides(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("CLIMATE_VARIABLE_OVERRIDES entry %q must look like hint=variable", pair)
		}
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key, defaultVal string) []string {
	var out []string
	for _, s := range strings.Split(envString(key, defaultVal), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
