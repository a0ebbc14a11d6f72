// Package config binds command-line flags, environment variables and an
// optional YAML file into one Config.
//
// Precedence, highest first: flag, environment, config file, default. The
// credentials keep the environment names used by CI
// (FORGE_CLIENT_ID, AWS_S3_BUCKET, ...); every other setting reads
// DERIVDIFF_<KEY>.
package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"derivdiff/internal/logging"
	"derivdiff/internal/validate"
)

// Setting keys.
const (
	KeyConfigFile         = "config"
	KeyForgeClientID      = "forge-client-id"
	KeyForgeClientSecret  = "forge-client-secret"
	KeyForgeBaseURL       = "forge-base-url"
	KeyAWSAccessKeyID     = "aws-access-key-id"
	KeyAWSSecretAccessKey = "aws-secret-access-key"
	KeyAWSRegion          = "aws-default-region"
	KeyBucket             = "aws-s3-bucket"
	KeyBlobBackend        = "blob-backend"
	KeyS3Endpoint         = "s3-endpoint"
	KeyS3PathStyle        = "s3-path-style"
	KeyMinioSecure        = "minio-secure"
	KeyBlobFileRoot       = "blob-file-root"
	KeyWorkDir            = "work-dir"
	KeyImageThreshold     = "image-threshold"
	KeyLogFormat          = "log-format"
	KeyLogLevel           = "log-level"
	KeyMetricsFile        = "metrics-file"
	KeyProgress           = "progress"
	KeyReport             = "report"
)

// Blob backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendFile  = "file"
)

type setting struct {
	key   string
	env   string
	def   any
	usage string
}

var settings = []setting{
	{KeyConfigFile, "DERIVDIFF_CONFIG", "", "YAML file with settings"},
	{KeyForgeClientID, "FORGE_CLIENT_ID", "", "conversion service client id"},
	{KeyForgeClientSecret, "FORGE_CLIENT_SECRET", "", "conversion service client secret"},
	{KeyForgeBaseURL, "FORGE_BASE_URL", "https://developer.api.autodesk.com", "conversion service base URL"},
	{KeyAWSAccessKeyID, "AWS_ACCESS_KEY_ID", "", "blob store access key id"},
	{KeyAWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY", "", "blob store secret access key"},
	{KeyAWSRegion, "AWS_DEFAULT_REGION", "", "blob store region"},
	{KeyBucket, "AWS_S3_BUCKET", "", "bucket holding baselines"},
	{KeyBlobBackend, "DERIVDIFF_BLOB_BACKEND", BackendS3, "baseline storage: s3, minio or file"},
	{KeyS3Endpoint, "DERIVDIFF_S3_ENDPOINT", "", "S3 endpoint override (host:port for minio)"},
	{KeyS3PathStyle, "DERIVDIFF_S3_PATH_STYLE", false, "use path-style S3 addressing"},
	{KeyMinioSecure, "DERIVDIFF_MINIO_SECURE", true, "use TLS for the minio backend"},
	{KeyBlobFileRoot, "DERIVDIFF_BLOB_FILE_ROOT", "", "root directory of the file backend"},
	{KeyWorkDir, "DERIVDIFF_WORK_DIR", ".", "directory holding baseline and current trees"},
	{KeyImageThreshold, "DERIVDIFF_IMAGE_THRESHOLD", 0.1, "per-pixel image tolerance in [0,1]"},
	{KeyLogFormat, "DERIVDIFF_LOG_FORMAT", "logfmt", "log format: logfmt or json"},
	{KeyLogLevel, "DERIVDIFF_LOG_LEVEL", "info", "log level: debug, info, warn or error"},
	{KeyMetricsFile, "DERIVDIFF_METRICS_FILE", "", "write run metrics to this Prometheus textfile"},
	{KeyProgress, "DERIVDIFF_PROGRESS", false, "show transfer progress bars"},
	{KeyReport, "DERIVDIFF_REPORT", "", "write a failure report zip to this path"},
}

// Config is the resolved set of settings.
type Config struct {
	ForgeClientID     string
	ForgeClientSecret string
	ForgeBaseURL      string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	Bucket             string

	BlobBackend  string
	S3Endpoint   string
	S3PathStyle  bool
	MinioSecure  bool
	BlobFileRoot string

	WorkDir        string
	ImageThreshold float64
	LogFormat      string
	LogLevel       string
	MetricsFile    string
	Progress       bool
	Report         string
}

// BindFlags registers every setting as a flag on fs and binds flags and
// environment variables into v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			fs.String(s.key, def, s.usage)
		case bool:
			fs.Bool(s.key, def, s.usage)
		case float64:
			fs.Float64(s.key, def, s.usage)
		}
		if err := v.BindPFlag(s.key, fs.Lookup(s.key)); err != nil {
			return errors.Wrapf(err, "bind flag %s", s.key)
		}
		if err := v.BindEnv(s.key, s.env); err != nil {
			return errors.Wrapf(err, "bind env %s", s.env)
		}
		v.SetDefault(s.key, s.def)
	}
	return nil
}

// Load reads the optional config file and resolves every setting.
func Load(v *viper.Viper) (Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}
	return Config{
		ForgeClientID:      v.GetString(KeyForgeClientID),
		ForgeClientSecret:  v.GetString(KeyForgeClientSecret),
		ForgeBaseURL:       v.GetString(KeyForgeBaseURL),
		AWSAccessKeyID:     v.GetString(KeyAWSAccessKeyID),
		AWSSecretAccessKey: v.GetString(KeyAWSSecretAccessKey),
		AWSRegion:          v.GetString(KeyAWSRegion),
		Bucket:             v.GetString(KeyBucket),
		BlobBackend:        strings.ToLower(v.GetString(KeyBlobBackend)),
		S3Endpoint:         v.GetString(KeyS3Endpoint),
		S3PathStyle:        v.GetBool(KeyS3PathStyle),
		MinioSecure:        v.GetBool(KeyMinioSecure),
		BlobFileRoot:       v.GetString(KeyBlobFileRoot),
		WorkDir:            v.GetString(KeyWorkDir),
		ImageThreshold:     v.GetFloat64(KeyImageThreshold),
		LogFormat:          v.GetString(KeyLogFormat),
		LogLevel:           v.GetString(KeyLogLevel),
		MetricsFile:        v.GetString(KeyMetricsFile),
		Progress:           v.GetBool(KeyProgress),
		Report:             v.GetString(KeyReport),
	}, nil
}

// CheckCommon validates the settings every command uses.
func (c Config) CheckCommon() error {
	var errs validate.Errors
	errs.Merge(validate.Threshold(c.ImageThreshold))
	errs.Merge(validate.OneOf(KeyLogFormat, c.LogFormat, logging.Formats...))
	errs.Merge(validate.OneOf(KeyLogLevel, c.LogLevel, logging.Levels...))
	return errs.Err()
}

// CheckStore validates the settings the chosen blob backend needs.
func (c Config) CheckStore() error {
	var errs validate.Errors
	switch c.BlobBackend {
	case BackendS3:
		required(&errs, map[string]string{
			"AWS_ACCESS_KEY_ID":     c.AWSAccessKeyID,
			"AWS_SECRET_ACCESS_KEY": c.AWSSecretAccessKey,
			"AWS_DEFAULT_REGION":    c.AWSRegion,
			"AWS_S3_BUCKET":         c.Bucket,
		})
	case BackendMinio:
		required(&errs, map[string]string{
			"AWS_ACCESS_KEY_ID":     c.AWSAccessKeyID,
			"AWS_SECRET_ACCESS_KEY": c.AWSSecretAccessKey,
			"AWS_S3_BUCKET":         c.Bucket,
			"DERIVDIFF_S3_ENDPOINT": c.S3Endpoint,
		})
	case BackendFile:
		required(&errs, map[string]string{"DERIVDIFF_BLOB_FILE_ROOT": c.BlobFileRoot})
	default:
		errs.Merge(validate.OneOf(KeyBlobBackend, c.BlobBackend, BackendS3, BackendMinio, BackendFile))
	}
	return errs.Err()
}

// CheckForge validates the conversion service credentials.
func (c Config) CheckForge() error {
	var errs validate.Errors
	required(&errs, map[string]string{
		"FORGE_CLIENT_ID":     c.ForgeClientID,
		"FORGE_CLIENT_SECRET": c.ForgeClientSecret,
	})
	if c.ForgeBaseURL == "" {
		errs.Add("%s must be non-empty", KeyForgeBaseURL)
	}
	return errs.Err()
}

// required reports every empty value, in sorted name order.
func required(errs *validate.Errors, values map[string]string) {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if strings.TrimSpace(values[n]) == "" {
			errs.Add("missing setting %s", n)
		}
	}
}
