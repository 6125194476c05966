package logging

import (
	"go.uber.org/zap"
)

var Logger *zap.SugaredLogger

// Init configures the process-wide sugared logger. Call once from main;
// packages grab the logger via L() so tests work without Init.
func Init(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Encoding = "console"
	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	Logger = logger.Sugar()
}

// L returns the configured logger, falling back to a no-op logger when
// Init was never called (unit tests).
func L() *zap.SugaredLogger {
	if Logger == nil {
		return zap.NewNop().Sugar()
	}
	return Logger
}
