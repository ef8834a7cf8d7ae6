package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// maxPresignExpiry is the longest lifetime S3-compatible stores accept for
// a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort   string `yaml:"servicePort"`
	ServiceName   string `yaml:"serviceName"`
	PublicBaseURL string `yaml:"publicBaseURL"`
	LogLevel      string `yaml:"logLevel"`

	// Upload configuration
	ChunkSizeMB    int           `yaml:"chunkSizeMB"`
	PartURLExpiry  time.Duration `yaml:"partURLExpiry"`
	SweepEnabled   bool          `yaml:"sweepEnabled"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
	SweepOlderThan time.Duration `yaml:"sweepOlderThan"`

	// MinIO configuration
	MinIOEndpoint   string `yaml:"minioEndpoint"`
	MinIOAccessKey  string `yaml:"minioAccessKey"`
	MinIOSecretKey  string `yaml:"minioSecretKey"`
	MinIOBucketName string `yaml:"minioBucketName"`
	MinIORegion     string `yaml:"minioRegion"`
	MinIOUseSSL     bool   `yaml:"minioUseSSL"`

	// TiDB configuration
	TiDBHost     string `yaml:"tidbHost"`
	TiDBPort     string `yaml:"tidbPort"`
	TiDBUser     string `yaml:"tidbUser"`
	TiDBPassword string `yaml:"tidbPassword"`
	TiDBDatabase string `yaml:"tidbDatabase"`

	// Redis configuration
	RedisHost     string `yaml:"redisHost"`
	RedisPort     string `yaml:"redisPort"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`

	// Jaeger configuration
	JaegerEndpoint string `yaml:"jaegerEndpoint"`

	// Auth configuration
	AuthIssuer       string `yaml:"authIssuer"`
	AuthJWKSURL      string `yaml:"authJWKSURL"`
	AuthAudience     string `yaml:"authAudience"`
	AuthStaticTokens string `yaml:"authStaticTokens"`
}

// Default returns a Config with local development defaults
func Default() *Config {
	return &Config{
		// Service defaults
		ServicePort: "8080",
		ServiceName: "voicehub-upload-service",
		LogLevel:    "info",

		// Upload defaults
		ChunkSizeMB:    5,
		PartURLExpiry:  time.Hour,
		SweepEnabled:   true,
		SweepInterval:  15 * time.Minute,
		SweepOlderThan: 24 * time.Hour,

		// MinIO defaults
		MinIOEndpoint:   "localhost:9000",
		MinIOAccessKey:  "minioadmin",
		MinIOSecretKey:  "minioadmin",
		MinIOBucketName: "voicehub",
		MinIORegion:     "us-east-1",
		MinIOUseSSL:     false,

		// TiDB defaults
		TiDBHost:     "localhost",
		TiDBPort:     "4000",
		TiDBUser:     "root",
		TiDBDatabase: "voicehub",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: "6379",
		RedisDB:   0,

		// Jaeger defaults
		JaegerEndpoint: "localhost:4318",

		AuthAudience: "authenticated",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by VOICEHUB_CONFIG (if any), then environment variables.
func LoadConfig() (*Config, error) {
	config := Default()

	if path := os.Getenv("VOICEHUB_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, config); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.ServicePort = getEnv("SERVICE_PORT", c.ServicePort)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.PublicBaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.ChunkSizeMB = getEnvAsInt("CHUNK_SIZE_MB", c.ChunkSizeMB)
	c.PartURLExpiry = getEnvAsDuration("PART_URL_EXPIRY", c.PartURLExpiry)
	c.SweepEnabled = getEnvAsBool("SWEEP_ENABLED", c.SweepEnabled)
	c.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.SweepOlderThan = getEnvAsDuration("SWEEP_OLDER_THAN", c.SweepOlderThan)

	c.MinIOEndpoint = getEnv("MINIO_ENDPOINT", c.MinIOEndpoint)
	c.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIOAccessKey)
	c.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", c.MinIOSecretKey)
	c.MinIOBucketName = getEnv("MINIO_BUCKET_NAME", c.MinIOBucketName)
	c.MinIORegion = getEnv("MINIO_REGION", c.MinIORegion)
	c.MinIOUseSSL = getEnvAsBool("MINIO_USE_SSL", c.MinIOUseSSL)

	c.TiDBHost = getEnv("TIDB_HOST", c.TiDBHost)
	c.TiDBPort = getEnv("TIDB_PORT", c.TiDBPort)
	c.TiDBUser = getEnv("TIDB_USER", c.TiDBUser)
	c.TiDBPassword = getEnv("TIDB_PASSWORD", c.TiDBPassword)
	c.TiDBDatabase = getEnv("TIDB_DATABASE", c.TiDBDatabase)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)

	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)

	c.AuthIssuer = getEnv("AUTH_ISSUER", c.AuthIssuer)
	c.AuthJWKSURL = getEnv("AUTH_JWKS_URL", c.AuthJWKSURL)
	c.AuthAudience = getEnv("AUTH_AUDIENCE", c.AuthAudience)
	c.AuthStaticTokens = getEnv("AUTH_STATIC_TOKENS", c.AuthStaticTokens)
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch {
	case c.ServicePort == "":
		return errors.New("config: service port is required")
	case c.MinIOEndpoint == "" || c.MinIOBucketName == "":
		return errors.New("config: minio endpoint and bucket are required")
	case c.ChunkSizeMB < 5:
		return fmt.Errorf("config: chunk size %d MB is below the 5 MB part minimum", c.ChunkSizeMB)
	case c.PartURLExpiry <= 0 || c.PartURLExpiry > maxPresignExpiry:
		return fmt.Errorf("config: part url expiry %s must be within (0, %s]", c.PartURLExpiry, maxPresignExpiry)
	case c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthStaticTokens == "":
		return errors.New("config: one of auth issuer, auth jwks url or static tokens is required")
	case c.SweepEnabled && (c.SweepInterval <= 0 || c.SweepOlderThan <= 0):
		return errors.New("config: sweep interval and threshold must be positive")
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetChunkSizeBytes returns chunk size in bytes
func (c *Config) GetChunkSizeBytes() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
