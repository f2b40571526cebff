package s3

import (
	"fmt"
	"strings"
)

// Config represents S3 backend configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// MaxRetries is handed to the SDK retryer; this package never retries itself.
	MaxRetries int `yaml:"max_retries"`

	// StorageClass applies to objects written through Put and multipart uploads.
	StorageClass string `yaml:"storage_class"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:       "us-east-1",
		MaxRetries:   3,
		StorageClass: TierStandard,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %d", c.MaxRetries)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("access_key_id and secret_access_key must be set together")
	}
	if c.StorageClass != "" && !IsValidTier(c.StorageClass) {
		return fmt.Errorf("unknown storage class: %s", c.StorageClass)
	}
	if c.Endpoint != "" && !strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must include a scheme: %s", c.Endpoint)
	}
	return nil
}
