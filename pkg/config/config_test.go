package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerConfiguration_IsValid(t *testing.T) {
	cfg := DefaultServerConfiguration()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.ExpressionTimeout)
	assert.True(t, cfg.CORS.IsWildcard())
}

func TestServerConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfiguration)
		wantErr string
	}{
		{"port too large", func(c *ServerConfiguration) { c.Port = 70000 }, "Port"},
		{"negative port", func(c *ServerConfiguration) { c.Port = -1 }, "Port"},
		{"bad level", func(c *ServerConfiguration) { c.Log.Level = "loud" }, "Log.Level"},
		{"bad format", func(c *ServerConfiguration) { c.Log.Format = "xml" }, "Log.Format"},
		{"zero buffer", func(c *ServerConfiguration) { c.Log.BufferSize = 0 }, "Log.BufferSize"},
		{"negative max bytes", func(c *ServerConfiguration) { c.Log.MaxBytes = -1 }, "Log.MaxBytes"},
		{"zero body size", func(c *ServerConfiguration) { c.MaxBodySize = 0 }, "MaxBodySize"},
		{"zero expression timeout", func(c *ServerConfiguration) { c.ExpressionTimeout = 0 }, "ExpressionTimeout"},
		{"bad statsd addr", func(c *ServerConfiguration) { c.StatsDAddr = "no-port" }, "StatsDAddr"},
		{"empty cors origin", func(c *ServerConfiguration) { c.CORS.AllowOrigins = []string{""} }, "CORS.AllowOrigins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfiguration()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfiguration_ValidateReportsAll(t *testing.T) {
	cfg := DefaultServerConfiguration()
	cfg.Port = -5
	cfg.Log.Level = "nope"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Port")
	assert.Contains(t, err.Error(), "Log.Level")
}

func TestServerConfiguration_ValidOptionalFields(t *testing.T) {
	cfg := DefaultServerConfiguration()
	cfg.Host = "127.0.0.1"
	cfg.StatsDAddr = "localhost:8125"
	cfg.Port = 0
	cfg.CORS = nil
	assert.NoError(t, cfg.Validate())
}

func TestCORSConfig_AllowOriginValue(t *testing.T) {
	wild := WildcardCORSConfig()
	assert.Equal(t, "*", wild.AllowOriginValue("https://a.example"))

	wild.AllowCredentials = true
	assert.Equal(t, "https://a.example", wild.AllowOriginValue("https://a.example"))

	list := &CORSConfig{Enabled: true, AllowOrigins: []string{"https://a.example"}}
	assert.Equal(t, "https://a.example", list.AllowOriginValue("https://a.example"))
	assert.Equal(t, "", list.AllowOriginValue("https://b.example"))

	list.Enabled = false
	assert.Equal(t, "", list.AllowOriginValue("https://a.example"))

	var nilCfg *CORSConfig
	assert.False(t, nilCfg.IsWildcard())
	assert.Equal(t, "", nilCfg.AllowOriginValue("x"))
}
