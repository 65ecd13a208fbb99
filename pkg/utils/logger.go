package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger writing to stderr. When debug is true, uses
// development config (human-readable, debug level); otherwise production config
// (JSON, info level). Stdout stays free for command output and the MCP stdio stream.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
