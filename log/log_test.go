package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":         zapcore.InfoLevel,
		"INFO":     zapcore.InfoLevel,
		"debug":    zapcore.DebugLevel,
		"WARNING":  zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"CRITICAL": zapcore.ErrorLevel,
	}
	for name, expected := range cases {
		lvl, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, lvl, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	require.NoError(t, Init("ERROR", false))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init("ERROR", true))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init("INFO", false))
}
