// Package logging builds the process logger: an ectologger front end whose
// sink forwards every structured message to a zap core.
package logging

import (
	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

// New returns the logger and a flush function to defer at shutdown.
func New(appName string, pretty bool) (ectologger.Logger, func() error) {
	var zl *zap.Logger
	var err error
	if pretty {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		zl = zap.NewNop()
	}
	zl = zl.Named(appName)

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		zl.Info("log", zap.Any("entry", msg))
	})

	return logger, zl.Sync
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
