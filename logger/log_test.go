package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	req := require.New(t)
	defer SetLevel("debug")

	SetLevel("warn")
	req.Equal("warn", Level())
	req.False(Log.Core().Enabled(zapcore.InfoLevel))
	req.True(Log.Core().Enabled(zapcore.ErrorLevel))

	SetLevel("bogus")
	req.Equal("debug", Level())
	req.True(New("error").Core().Enabled(zapcore.ErrorLevel))
	req.False(New("error").Core().Enabled(zapcore.WarnLevel))
}
