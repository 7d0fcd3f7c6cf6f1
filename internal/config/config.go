package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the media service.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	CDN      CDNConfig      `mapstructure:"cdn"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type CDNConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// UploadConfig bounds what the HTTP surface accepts before any record is
// created. These are policy values enforced at the boundary, not invariants
// of the pipeline itself.
type UploadConfig struct {
	Directory    string        `mapstructure:"directory"`      // default storage directory for video uploads
	MaxSizeBytes int64         `mapstructure:"max_size_bytes"` // per-file cap
	MaxBatch     int           `mapstructure:"max_batch"`      // file count cap for upload-multiple
	UsePresigned bool          `mapstructure:"use_presigned"`  // steer clients towards direct-to-storage uploads
	PresignTTL   time.Duration `mapstructure:"presign_ttl"`
}

// QueueConfig tunes the async upload worker pool.
type QueueConfig struct {
	Workers        int             `mapstructure:"workers"`
	BufferSize     int             `mapstructure:"buffer_size"`
	MaxAttempts    int             `mapstructure:"max_attempts"`
	Backoff        []time.Duration `mapstructure:"backoff"`
	AttemptTimeout time.Duration   `mapstructure:"attempt_timeout"`
	StagingDir     string          `mapstructure:"staging_dir"`
}

// KafkaConfig points at the platform event bus. Leave Brokers empty to
// disable event publishing entirely.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// JWTConfig holds what this service needs to verify platform-issued tokens.
// Token issuance lives in the main application, not here.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// --- Environment Variable Handling ---
	viper.AutomaticEnv()
	// Use replacer for nested keys e.g., server.address -> SERVER_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	// --- Set default values ---
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "clinic_media")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("upload.directory", "videos")
	viper.SetDefault("upload.max_size_bytes", 512*1024*1024)
	viper.SetDefault("upload.max_batch", 10)
	viper.SetDefault("upload.use_presigned", false)
	viper.SetDefault("upload.presign_ttl", "15m")
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.buffer_size", 64)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff", []string{"30s", "60s", "120s"})
	viper.SetDefault("queue.attempt_timeout", "600s")
	viper.SetDefault("queue.staging_dir", "/tmp/clinic-media/staging")
	viper.SetDefault("kafka.topic", "media.status")

	// --- Read Config File ---
	err = viper.ReadInConfig()
	// If config file not found, continue (might rely solely on env vars).
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	// --- Unmarshal Config ---
	// Viper parses duration strings ("30s", "15m") directly into the
	// time.Duration fields.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
