package ralphlog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupInstallsDefaultLogger(t *testing.T) {
	logger := Setup("debug")
	assert.NotNil(t, logger)
	assert.Same(t, logger, slog.Default())
}

func TestParseLevelMapsKnownNames(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}
