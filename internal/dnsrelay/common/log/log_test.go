package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigureInvalidLevel(t *testing.T) {
	err := Configure("prod", "not-a-level")
	assert.Error(t, err)
}

func TestConfigureValid(t *testing.T) {
	err := Configure("dev", "debug")
	assert.NoError(t, err)
}

func TestSetAndGetLogger(t *testing.T) {
	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Equal(t, noop, GetLogger())
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info(map[string]any{"a": 1}, "info")
		l.Warn(nil, "warn")
		l.Error(nil, "error")
		l.Debug(nil, "debug")
	})
}
