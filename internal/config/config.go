package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/bucketfs/internal/metrics"
	"github.com/objectfs/bucketfs/internal/namespace"
	s3backend "github.com/objectfs/bucketfs/internal/storage/s3"
	"github.com/objectfs/bucketfs/internal/stream"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/utils"
)

// MinPartSize is the smallest non-final part S3 and OSS accept.
const MinPartSize = 5 * 1024 * 1024

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Storage    StorageConfig    `yaml:"storage"`
	Namespace  NamespaceConfig  `yaml:"namespace"`
	Stream     StreamConfig     `yaml:"stream"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// StorageConfig selects and configures the object storage backend
type StorageConfig struct {
	// Backend is "s3" or "memory".
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	MaxRetries      int    `yaml:"max_retries"`
	StorageClass    string `yaml:"storage_class"`
}

// NamespaceConfig represents path mapping settings
type NamespaceConfig struct {
	RootPrefix      string `yaml:"root_prefix"`
	Delimiter       string `yaml:"delimiter"`
	LeadingSlash    bool   `yaml:"leading_slash"`
	BucketInPath    bool   `yaml:"bucket_in_path"`
	DeleteBatchSize int    `yaml:"delete_batch_size"`
	Concurrency     int    `yaml:"concurrency"`
}

// StreamConfig represents stream buffering settings. Sizes accept units such as "5MB".
type StreamConfig struct {
	BlockSize string `yaml:"block_size"`
	PartSize  string `yaml:"part_size"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Address   string            `yaml:"address"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// NewDefault returns a configuration with default values
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Storage: StorageConfig{
			Backend:      "s3",
			Region:       "us-east-1",
			MaxRetries:   3,
			StorageClass: s3backend.TierStandard,
		},
		Namespace: NamespaceConfig{
			Delimiter:       namespace.DefaultDelimiter,
			LeadingSlash:    true,
			BucketInPath:    true,
			DeleteBatchSize: namespace.DefaultDeleteBatchSize,
			Concurrency:     1,
		},
		Stream: StreamConfig{
			BlockSize: "5MB",
			PartSize:  "5MB",
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Address:   ":9090",
				Path:      "/metrics",
				Namespace: "bucketfs",
				Labels:    make(map[string]string),
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fserrors.NewError(fserrors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("path", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fserrors.NewError(fserrors.ErrCodeConfigLoad, "failed to parse config file").
			WithContext("path", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric or boolean values are reported together.
func (c *Configuration) LoadFromEnv() error {
	var errs error

	setString := func(name string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}
	setInt := func(name string, dst *int) {
		if val := os.Getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if val := os.Getenv(name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	// Global settings
	setString("BUCKETFS_LOG_LEVEL", &c.Global.LogLevel)
	setString("BUCKETFS_LOG_FORMAT", &c.Global.LogFormat)
	setString("BUCKETFS_LOG_FILE", &c.Global.LogFile)

	// Storage settings
	setString("BUCKETFS_BACKEND", &c.Storage.Backend)
	setString("BUCKETFS_BUCKET", &c.Storage.Bucket)
	setString("BUCKETFS_REGION", &c.Storage.Region)
	setString("OSS_ENDPOINT", &c.Storage.Endpoint)
	setString("BUCKETFS_ENDPOINT", &c.Storage.Endpoint)
	setString("BUCKETFS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	setString("BUCKETFS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	setString("BUCKETFS_SESSION_TOKEN", &c.Storage.SessionToken)
	setBool("BUCKETFS_FORCE_PATH_STYLE", &c.Storage.ForcePathStyle)
	setInt("BUCKETFS_MAX_RETRIES", &c.Storage.MaxRetries)
	setString("BUCKETFS_STORAGE_CLASS", &c.Storage.StorageClass)

	// Namespace settings
	setString("BUCKETFS_ROOT_PREFIX", &c.Namespace.RootPrefix)
	setInt("BUCKETFS_DELETE_BATCH_SIZE", &c.Namespace.DeleteBatchSize)
	setInt("BUCKETFS_CONCURRENCY", &c.Namespace.Concurrency)

	// Stream settings
	setString("BUCKETFS_BLOCK_SIZE", &c.Stream.BlockSize)
	setString("BUCKETFS_PART_SIZE", &c.Stream.PartSize)

	// Monitoring settings
	setBool("BUCKETFS_METRICS_ENABLED", &c.Monitoring.Metrics.Enabled)
	setString("BUCKETFS_METRICS_ADDRESS", &c.Monitoring.Metrics.Address)

	if errs != nil {
		return fserrors.NewError(fserrors.ErrCodeConfigLoad, "invalid environment").WithCause(errs)
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration and reports every problem found.
func (c *Configuration) Validate() error {
	var errs error

	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat))
	}

	switch c.Storage.Backend {
	case "s3":
		if err := c.S3Config().Validate(); err != nil {
			errs = multierr.Append(errs, err)
		}
	case "memory":
	default:
		errs = multierr.Append(errs, fmt.Errorf("invalid storage backend: %s (must be s3 or memory)", c.Storage.Backend))
	}

	if c.Namespace.Delimiter == "" {
		errs = multierr.Append(errs, fmt.Errorf("delimiter cannot be empty"))
	}
	if c.Namespace.DeleteBatchSize <= 0 || c.Namespace.DeleteBatchSize > namespace.DefaultDeleteBatchSize {
		errs = multierr.Append(errs, fmt.Errorf("delete_batch_size must be between 1 and %d", namespace.DefaultDeleteBatchSize))
	}
	if c.Namespace.Concurrency <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("concurrency must be greater than 0"))
	}

	if _, err := c.StreamOptions(); err != nil {
		errs = multierr.Append(errs, err)
	}

	if c.Monitoring.Metrics.Enabled && c.Monitoring.Metrics.Address == "" {
		errs = multierr.Append(errs, fmt.Errorf("metrics address cannot be empty when metrics are enabled"))
	}

	if errs != nil {
		return fserrors.NewError(fserrors.ErrCodeConfigValidation, "invalid configuration").WithCause(errs)
	}
	return nil
}

// S3Config returns the S3 backend configuration.
func (c *Configuration) S3Config() *s3backend.Config {
	return &s3backend.Config{
		Bucket:          c.Storage.Bucket,
		Region:          c.Storage.Region,
		Endpoint:        endpointURL(c.Storage.Endpoint),
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		SessionToken:    c.Storage.SessionToken,
		ForcePathStyle:  c.Storage.ForcePathStyle,
		MaxRetries:      c.Storage.MaxRetries,
		StorageClass:    c.Storage.StorageClass,
	}
}

// NamespaceConfig returns the path mapping configuration.
func (c *Configuration) NamespaceConfig() namespace.Config {
	cfg := namespace.Config{
		RootPrefix:      c.Namespace.RootPrefix,
		Delimiter:       c.Namespace.Delimiter,
		LeadingSlash:    c.Namespace.LeadingSlash,
		DeleteBatchSize: c.Namespace.DeleteBatchSize,
		Concurrency:     c.Namespace.Concurrency,
	}
	if c.Namespace.BucketInPath {
		cfg.Bucket = c.Storage.Bucket
	}
	return cfg
}

// StreamOptions returns stream sizing with units resolved. Loggers and pools
// are left for the caller.
func (c *Configuration) StreamOptions() (stream.Options, error) {
	var (
		opts stream.Options
		errs error
	)

	block, err := utils.ParseBytes(c.Stream.BlockSize)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("invalid block_size %q: %w", c.Stream.BlockSize, err))
	case block <= 0:
		errs = multierr.Append(errs, fmt.Errorf("block_size must be greater than 0"))
	default:
		opts.BlockSize = int(block)
	}

	part, err := utils.ParseBytes(c.Stream.PartSize)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("invalid part_size %q: %w", c.Stream.PartSize, err))
	case part < MinPartSize:
		errs = multierr.Append(errs, fmt.Errorf("part_size must be at least %s", utils.FormatBytes(MinPartSize)))
	default:
		opts.PartSize = int(part)
	}

	return opts, errs
}

// MetricsConfig returns the metrics collector configuration.
func (c *Configuration) MetricsConfig() *metrics.Config {
	return &metrics.Config{
		Enabled:   c.Monitoring.Metrics.Enabled,
		Address:   c.Monitoring.Metrics.Address,
		Path:      c.Monitoring.Metrics.Path,
		Namespace: c.Monitoring.Metrics.Namespace,
		Labels:    c.Monitoring.Metrics.Labels,
	}
}

// endpointURL strips an ossfs-style bucket path from endpoint and adds https
// when no scheme is given.
func endpointURL(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}
