package utils

import (
	"go.uber.org/zap"
)

// NewLogger builds a development logger for local runs and a JSON production logger otherwise.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}
