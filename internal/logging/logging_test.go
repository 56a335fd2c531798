package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfo(t *testing.T) {
	logger, err := New("")
	require.NoError(t, err)
	require.NotNil(t, logger)
	t.Cleanup(func() { _ = logger.Sync() })

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		raw     string
		want    zapcore.Level
		wantErr bool
	}{
		{raw: "", want: zapcore.InfoLevel},
		{raw: " DEBUG ", want: zapcore.DebugLevel},
		{raw: "warn", want: zapcore.WarnLevel},
		{raw: "chatty", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseLevel(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := New("chatty")
	assert.Error(t, err)
}
