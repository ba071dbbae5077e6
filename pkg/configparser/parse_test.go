package configparser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMode string

type testConfig struct {
	Name string `env:"TESTCFG_APP_NAME" default:"svc"`
	DB   struct {
		Host     string        `env:"TESTCFG_DB_HOST" default:"localhost"`
		Port     int32         `env:"TESTCFG_DB_PORT" default:"5432"`
		Timeout  time.Duration `env:"TESTCFG_DB_TIMEOUT" default:"5s"`
		Verified bool          `env:"TESTCFG_DB_VERIFIED" default:"true"`
	}
	Ratio   float64  `env:"TESTCFG_RATIO" default:"1.5"`
	Brokers []string `env:"TESTCFG_BROKERS" default:"a:1,b:2"`
	Mode    testMode `env:"TESTCFG_MODE" default:"postgres"`
	skipped string   `env:"TESTCFG_SKIPPED" default:"x"`
}

func TestParse_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Parse(&cfg))

	assert.Equal(t, "svc", cfg.Name)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, int32(5432), cfg.DB.Port)
	assert.Equal(t, 5*time.Second, cfg.DB.Timeout)
	assert.True(t, cfg.DB.Verified)
	assert.InDelta(t, 1.5, cfg.Ratio, 1e-9)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Brokers)
	assert.Equal(t, testMode("postgres"), cfg.Mode)
	assert.Empty(t, cfg.skipped)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("TESTCFG_DB_PORT", "6543")
	t.Setenv("TESTCFG_MODE", "redis")

	var cfg testConfig
	require.NoError(t, Parse(&cfg))

	assert.Equal(t, int32(6543), cfg.DB.Port)
	assert.Equal(t, testMode("redis"), cfg.Mode)
}

func TestParse_InvalidValue(t *testing.T) {
	t.Setenv("TESTCFG_DB_TIMEOUT", "soon")

	var cfg testConfig
	assert.Error(t, Parse(&cfg))
}

func TestParse_RejectsNonPointer(t *testing.T) {
	assert.ErrorIs(t, Parse(testConfig{}), ErrNotStructPointer)
}

func TestLoadAndParseYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
testcfg:
  app:
    name: dispatcher
  db:
    host: ${TESTCFG_HOST_SRC:-db.internal}
    port: 7000
  brokers:
    - k1:9092
    - k2:9092
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	for _, key := range []string{"TESTCFG_APP_NAME", "TESTCFG_DB_HOST", "TESTCFG_DB_PORT", "TESTCFG_BROKERS"} {
		t.Setenv(key, "")
	}

	var cfg testConfig
	require.NoError(t, LoadAndParseYaml(path, &cfg))

	assert.Equal(t, "dispatcher", cfg.Name)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, int32(7000), cfg.DB.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoadYamlFile_NoPath(t *testing.T) {
	assert.ErrorIs(t, LoadYamlFile(""), ErrNoFilePath)
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
