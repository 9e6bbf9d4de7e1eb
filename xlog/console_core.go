package xlog

import (
	"os"

	"go.uber.org/zap/zapcore"
)

func newConsoleCore(
	lvlEnabler zapcore.LevelEnabler,
	encoder logEncoderType,
	lvlEnc zapcore.LevelEncoder,
	tsEnc zapcore.TimeEncoder,
) xLogCore {
	return newCommonCore(zapcore.Lock(os.Stdout), lvlEnabler, encoder, lvlEnc, tsEnc)
}
