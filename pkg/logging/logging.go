package logging

import (
	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

// New builds the service logger. Log messages are handed off to a zap
// production logger so output is structured JSON.
func New(serviceName string) (ectologger.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}

	sugar := zapLogger.Sugar().With("service", serviceName)
	logger := ectologger.NewEctoLogger(func(m ectologger.EctoLogMessage) {
		sugar.Infow("log", zap.Any("entry", m))
	})

	cleanup := func() {
		_ = zapLogger.Sync()
	}

	return logger, cleanup, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
