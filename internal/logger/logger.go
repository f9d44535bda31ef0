package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a production logger for env "production" and a development
// logger otherwise.
func New(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return l.With(zap.String("service", "ledger")), nil
}
