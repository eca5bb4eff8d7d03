// Package logging builds the process logger.
package logging

import (
	"os"

	"go.uber.org/zap"
)

// New returns a development logger when DEBUG=true, otherwise a production
// logger with JSON output.
func New() (*zap.Logger, error) {
	if os.Getenv("DEBUG") == "true" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
