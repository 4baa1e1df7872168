package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig holds application configuration
type AppConfig struct {
	DBPath        string        `json:"db_path"`
	ContentRoot   string        `json:"content_root"`
	RemoteBaseURL string        `json:"remote_base_url"`
	RemoteToken   string        `json:"remote_token"`
	AWSRegion     string        `json:"aws_region"`
	S3Bucket      string        `json:"s3_bucket"`
	S3AccessKey   string        `json:"s3_access_key"`
	S3SecretKey   string        `json:"s3_secret_key"`
	Workers       int           `json:"workers"`
	SyncDelay     time.Duration `json:"sync_delay"`
	MaxUploadSize int64         `json:"max_upload_size"`
	UserID        string        `json:"user_id"`
}

// DefaultConfig returns default application configuration
func DefaultConfig() *AppConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".collab-drive")

	return &AppConfig{
		DBPath:        filepath.Join(base, "drive.db"),
		ContentRoot:   filepath.Join(base, "content"),
		RemoteBaseURL: "",
		AWSRegion:     "us-east-1",
		S3Bucket:      "",
		Workers:       4,
		SyncDelay:     2 * time.Second,
		MaxUploadSize: 100 * 1024 * 1024, // 100MB
	}
}

// LoadFromEnv returns the default configuration overridden by
// COLLAB_* environment variables where set.
func LoadFromEnv() *AppConfig {
	cfg := DefaultConfig()

	setString(&cfg.DBPath, "COLLAB_DB_PATH")
	setString(&cfg.ContentRoot, "COLLAB_CONTENT_ROOT")
	setString(&cfg.RemoteBaseURL, "COLLAB_REMOTE_URL")
	setString(&cfg.RemoteToken, "COLLAB_REMOTE_TOKEN")
	setString(&cfg.AWSRegion, "COLLAB_AWS_REGION")
	setString(&cfg.S3Bucket, "COLLAB_S3_BUCKET")
	setString(&cfg.S3AccessKey, "COLLAB_S3_ACCESS_KEY")
	setString(&cfg.S3SecretKey, "COLLAB_S3_SECRET_KEY")
	setString(&cfg.UserID, "COLLAB_USER_ID")

	if v := os.Getenv("COLLAB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("COLLAB_SYNC_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.SyncDelay = d
		}
	}
	if v := os.Getenv("COLLAB_MAX_UPLOAD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxUploadSize = n
		}
	}
	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
