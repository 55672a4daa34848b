package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 128, cfg.ScanBuffer)
	assert.False(t, cfg.AllowDuplicates)
	assert.Equal(t, uint32(256), cfg.HistorySize)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blecentral.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
scan_timeout: 3s
scan_buffer: 16
allow_duplicates: true
output_format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 16, cfg.ScanBuffer)
	assert.True(t, cfg.AllowDuplicates)
	assert.Equal(t, "json", cfg.OutputFormat)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint32(256), cfg.HistorySize)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "malformed yaml",
			content: "scan_timeout: [",
			errText: "failed to parse config",
		},
		{
			name:    "unknown output format",
			content: "output_format: xml",
			errText: "unsupported output format",
		},
		{
			name:    "negative timeout",
			content: "connect_timeout: -1s",
			errText: "connect_timeout must not be negative",
		},
		{
			name:    "zero history",
			content: "history_size: 0",
			errText: "history_size must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	logger := cfg.NewLogger()
	assert.NotNil(t, logger)

	// Zero log level should default to PanicLevel (0)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
	assert.Error(t, cfg.Validate())
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
