package logger

import (
	"bytes"
	"testing"

	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "Feed", LevelWarning)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warning("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[Feed] WARNING: shown 3")
	assert.Contains(t, out, "[Feed] ERROR: shown 4")
}

func TestLevelFromConfig(t *testing.T) {
	l := NewLogger(&models.MConfig{LogLevel: "debug"}, "x")
	assert.Equal(t, LevelDebug, l.level)

	l = NewLogger(nil, "x")
	assert.Equal(t, LevelInfo, l.level)

	assert.Equal(t, LevelWarning, ParseLevel("WARN"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestNamedSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "Root", LevelInfo).Named("Child")
	l.Info("hello")
	assert.Contains(t, buf.String(), "[Child] INFO: hello")
}
