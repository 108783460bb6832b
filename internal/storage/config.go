package storage

import "github.com/oryonaisystem-create/smartbar-system-sub000/internal/config"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// FromConfig maps the application MinIO section; nil when no endpoint is configured.
func FromConfig(c config.MinIOConfig) *MinIOConfig {
	if c.Endpoint == "" {
		return nil
	}
	bucket := c.Bucket
	if bucket == "" {
		bucket = "smartbar-reports"
	}
	return &MinIOConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Bucket:    bucket,
	}
}
