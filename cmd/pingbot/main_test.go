package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/relay/config"
)

func TestResolveLogLevel(t *testing.T) {
	tests := map[string]struct {
		flag       string
		configured string
		want       slog.Level
	}{
		"flag wins":           {flag: "debug", configured: "error", want: slog.LevelDebug},
		"config without flag": {configured: "warn", want: slog.LevelWarn},
		"defaults to info":    {want: slog.LevelInfo},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLogLevel(tt.flag, tt.configured))
		})
	}

	t.Run("environment reaches the logger through config", func(t *testing.T) {
		t.Setenv(config.EnvToken, "abc")
		t.Setenv(config.EnvLogLevel, "error")

		cfg, err := config.Load("")
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, slog.LevelError, resolveLogLevel("", cfg.LogLevel))
	})
}
