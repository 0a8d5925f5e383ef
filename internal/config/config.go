package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Vision   VisionConfig   `yaml:"vision"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	Environment string `yaml:"environment"`
}

type VisionConfig struct {
	ModelsDir           string  `yaml:"models_dir"`
	FrameSource         string  `yaml:"frame_source"` // ffmpeg | synthetic
	FrameFPS            int     `yaml:"frame_fps"`
	FrameWidth          int     `yaml:"frame_width"`
	MaxFrames           int     `yaml:"max_frames"`
	DetectionThreshold  float64 `yaml:"detection_threshold"`
	LivenessThreshold   float64 `yaml:"liveness_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type StorageConfig struct {
	Backend          string `yaml:"backend"` // file | postgres | memory
	Path             string `yaml:"path"`
	EncryptionSecret string `yaml:"encryption_secret"`
	Snapshots        bool   `yaml:"snapshots"`
}

type LimitsConfig struct {
	RatePerMinute         int           `yaml:"rate_per_minute"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	ProcessingTimeout     time.Duration `yaml:"processing_timeout"`
	FrameTimeout          time.Duration `yaml:"frame_timeout"`
	MergeTimeout          time.Duration `yaml:"merge_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file (optional) and applies environment
// variable overrides. With an empty path the config is built from defaults
// and the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations that must never reach production.
func validate(cfg *Config) error {
	if cfg.Server.Environment == "production" {
		if cfg.Storage.Backend == "file" && cfg.Storage.EncryptionSecret == "" {
			return fmt.Errorf("ENCRYPTION_SECRET is required in production")
		}
		if cfg.Vision.FrameSource == "synthetic" {
			return fmt.Errorf("synthetic frame source is not allowed in production")
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "./models"
	}
	if cfg.Vision.FrameSource == "" {
		cfg.Vision.FrameSource = "ffmpeg"
	}
	if cfg.Vision.FrameFPS == 0 {
		cfg.Vision.FrameFPS = 5
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.MaxFrames == 0 {
		cfg.Vision.MaxFrames = 16
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.LivenessThreshold == 0 {
		cfg.Vision.LivenessThreshold = 0.85
	}
	if cfg.Vision.SimilarityThreshold == 0 {
		cfg.Vision.SimilarityThreshold = 0.75
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./storage"
	}
	if cfg.Limits.RatePerMinute == 0 {
		cfg.Limits.RatePerMinute = 60
	}
	if cfg.Limits.MaxConcurrentRequests == 0 {
		cfg.Limits.MaxConcurrentRequests = 10
	}
	if cfg.Limits.ProcessingTimeout == 0 {
		cfg.Limits.ProcessingTimeout = 30 * time.Second
	}
	if cfg.Limits.FrameTimeout == 0 {
		cfg.Limits.FrameTimeout = 2 * time.Second
	}
	if cfg.Limits.MergeTimeout == 0 {
		cfg.Limits.MergeTimeout = 1 * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FRAME_SOURCE"); v != "" {
		cfg.Vision.FrameSource = v
	}
	if v := os.Getenv("LIVENESS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.LivenessThreshold = f
		}
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ENCRYPTION_SECRET"); v != "" {
		cfg.Storage.EncryptionSecret = v
	}
	if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxConcurrentRequests = n
		}
	}
	if v := os.Getenv("PROCESSING_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Limits.ProcessingTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
}
