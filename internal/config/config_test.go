package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) Config {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse(args))
	c, err := Load(v)
	require.NoError(t, err)
	return c
}

func TestDefaults(t *testing.T) {
	c := load(t)
	assert.Equal(t, BackendS3, c.BlobBackend)
	assert.Equal(t, 0.1, c.ImageThreshold)
	assert.Equal(t, ".", c.WorkDir)
	assert.Equal(t, "logfmt", c.LogFormat)
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, c.MinioSecure)
	assert.NoError(t, c.CheckCommon())
}

func TestEnvironmentNames(t *testing.T) {
	t.Setenv("FORGE_CLIENT_ID", "id")
	t.Setenv("FORGE_CLIENT_SECRET", "secret")
	t.Setenv("AWS_ACCESS_KEY_ID", "ak")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "sk")
	t.Setenv("AWS_DEFAULT_REGION", "us-west-2")
	t.Setenv("AWS_S3_BUCKET", "baselines-bucket")
	t.Setenv("DERIVDIFF_IMAGE_THRESHOLD", "0.25")

	c := load(t)
	assert.Equal(t, "id", c.ForgeClientID)
	assert.Equal(t, "us-west-2", c.AWSRegion)
	assert.Equal(t, "baselines-bucket", c.Bucket)
	assert.Equal(t, 0.25, c.ImageThreshold)
	assert.NoError(t, c.CheckStore())
	assert.NoError(t, c.CheckForge())
}

func TestFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("DERIVDIFF_WORK_DIR", "/from/env")
	c := load(t, "--work-dir", "/from/flag")
	assert.Equal(t, "/from/flag", c.WorkDir)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derivdiff.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"blob-backend: file",
		"blob-file-root: /srv/baselines",
		"aws-s3-bucket: from-file",
		"log-format: json",
	}, "\n")), 0o644))
	t.Setenv("AWS_S3_BUCKET", "from-env")

	c := load(t, "--config", path)
	assert.Equal(t, BackendFile, c.BlobBackend)
	assert.Equal(t, "/srv/baselines", c.BlobFileRoot)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, "from-env", c.Bucket)
	assert.NoError(t, c.CheckStore())
}

func TestMissingConfigFile(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))
	_, err := Load(v)
	assert.Error(t, err)
}

func TestCheckStoreListsEveryMissingSetting(t *testing.T) {
	c := Config{BlobBackend: BackendS3, AWSRegion: "eu-west-1"}
	err := c.CheckStore()
	require.Error(t, err)
	lines := strings.Split(err.Error(), "\n")
	assert.Equal(t, []string{
		"missing setting AWS_ACCESS_KEY_ID",
		"missing setting AWS_S3_BUCKET",
		"missing setting AWS_SECRET_ACCESS_KEY",
	}, lines)
}

func TestCheckStoreBackends(t *testing.T) {
	assert.Error(t, Config{BlobBackend: "gcs"}.CheckStore())
	assert.Error(t, Config{BlobBackend: BackendFile}.CheckStore())
	assert.Error(t, Config{BlobBackend: BackendMinio, AWSAccessKeyID: "a", AWSSecretAccessKey: "b", Bucket: "c"}.CheckStore())
	assert.NoError(t, Config{BlobBackend: BackendMinio, AWSAccessKeyID: "a", AWSSecretAccessKey: "b", Bucket: "c", S3Endpoint: "localhost:9000"}.CheckStore())
}

func TestCheckCommonAggregates(t *testing.T) {
	err := Config{ImageThreshold: 3, LogFormat: "xml", LogLevel: "loud"}.CheckCommon()
	require.Error(t, err)
	assert.Len(t, strings.Split(err.Error(), "\n"), 3)
}
