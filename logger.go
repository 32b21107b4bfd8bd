package main

import "go.uber.org/zap"

// newLogger returns a JSON production logger for ENV=production and a
// human-readable development logger otherwise.
func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}
