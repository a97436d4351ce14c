package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptions_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "monitoring.log")

	l, err := NewWithOptions(Options{Level: "debug", Format: "json", FilePath: path})
	require.NoError(t, err)

	l.WithField("client_id", "c1").WithError(errors.New("boom")).Error("check failed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"client_id":"c1"`)
	assert.Contains(t, string(data), `"error":"boom"`)
	assert.Contains(t, string(data), "check failed")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l := New("not-a-level", "text")
	impl, ok := l.(*logrusLogger)
	require.True(t, ok)
	assert.Equal(t, "info", impl.logger.GetLevel().String())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.WithFields(Fields{"a": 1}).Info("ignored", Field{Key: "b", Value: 2})
	})
}
