package logger

import (
	"go.uber.org/zap"
)

const EnvProduction = "production"

// New returns a JSON production logger for env "production" and a
// human readable development logger otherwise.
func New(env string) (*zap.Logger, error) {
	if env == EnvProduction {
		return zap.NewProduction()
	}

	return zap.NewDevelopment()
}
