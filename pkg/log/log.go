// Package log provides the controller's shared structured logger. It wraps
// a zap logger behind logr.Logger, the interface the rest of the codebase
// (and controller-runtime) programs against.
package log

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
)

// CurrentLevel is shared by everything that logs through this package; it
// can be adjusted at runtime without re-creating the logger.
var CurrentLevel = zap.NewAtomicLevel()

// Logger is the root logger. Components derive scoped loggers from it with
// Logger.WithName("component").
var Logger logr.Logger

func init() {
	Logger = New()
}

// New builds the root zap-backed logr.Logger at the current level.
func New() logr.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(os.Stdout)), CurrentLevel)
	zl := zap.New(core, zap.AddCaller())
	return zapr.NewLogger(zl)
}

// SetLevel parses a spec.md --log-level string ("debug", "info", "warn",
// "error") and applies it to CurrentLevel.
func SetLevel(level string) error {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	CurrentLevel.SetLevel(zl)
	return nil
}

// SetRuntimeLogger points controller-runtime's internal logger at ours so
// that client/cache/manager internals log through the same pipeline.
func SetRuntimeLogger(l logr.Logger) {
	ctrl.SetLogger(l)
}
