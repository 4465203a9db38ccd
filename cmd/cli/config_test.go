package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/errors"
)

func TestRunConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostsweep", "config.yaml")

	var out bytes.Buffer
	require.NoError(t, runConfigInit(path, false, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	def := config.Default()
	assert.Equal(t, def.Scanning, cfg.Scanning)
	assert.Equal(t, def.Output, cfg.Output)
	assert.Equal(t, def.Watch, cfg.Watch)

	err = runConfigInit(path, false, &out)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration), "existing file is kept")
	assert.NoError(t, runConfigInit(path, true, &out))
}

func TestRunConfigShow_MasksPassword(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Database.Password = "hunter2"

	var out bytes.Buffer
	require.NoError(t, runConfigShow(cfg, &out))
	assert.NotContains(t, out.String(), "hunter2")
	assert.Contains(t, out.String(), redacted)
	assert.Equal(t, "hunter2", cfg.Storage.Database.Password, "the caller's config is untouched")
}

// resetViper gives a test its own viper instance state.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	prevErr := configErr
	t.Cleanup(func() {
		viper.Reset()
		configErr = prevErr
	})
}

func TestLoadConfig_Layers(t *testing.T) {
	resetViper(t)
	quietLogs(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	file := config.Default()
	file.Scanning.DefaultProfile = "full"
	file.Output.Format = "json"
	require.NoError(t, file.Save(path))

	t.Setenv("HOSTSWEEP_SCANNING_TIMEOUT", "45s")
	t.Setenv("HOSTSWEEP_OUTPUT_TABLE", "false")

	prevFile := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prevFile })

	initConfig()
	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Scanning.DefaultProfile)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 45*time.Second, cfg.Scanning.Timeout)
	assert.False(t, cfg.Output.Table)
	assert.Equal(t, "@every 1h", cfg.Watch.Schedule)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	resetViper(t)
	quietLogs(t)

	prevFile := cfgFile
	cfgFile = filepath.Join(t.TempDir(), "nope.yaml")
	t.Cleanup(func() { cfgFile = prevFile })

	initConfig()
	_, err := loadConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	assert.True(t, errors.IsFatal(err))
}

func TestReportError(t *testing.T) {
	var out bytes.Buffer
	reportError(&out, errors.ErrInvalidTarget("10.0.0.0/4", "CIDR range wider than /16 is not allowed"))
	assert.Contains(t, out.String(), "Error: ")
	assert.Contains(t, out.String(), "/16")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")), "no remediation line without a hint")
}
