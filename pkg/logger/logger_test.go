package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWithCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core).With("component", "test")

	log.Info("upload completed", "key", "storage/u1/abc_file.txt", "size", 42)
	log.Debug("debug line")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "upload completed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, "storage/u1/abc_file.txt", fields["key"])
	assert.EqualValues(t, 42, fields["size"])
}

func TestNew(t *testing.T) {
	log, err := New(Config{Level: "warn", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	require.NoError(t, log.SetLevel("debug"))
	assert.Error(t, log.SetLevel("loud"))

	_, err = New(Config{Level: "nope"})
	assert.Error(t, err)

	Nop().Info("discarded")
}
