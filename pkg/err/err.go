package errprocess

import (
	"fmt"

	"clinic_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Wrap logs the failure and returns an error that matches kind with errors.Is.
// cause may be nil.
func Wrap(kind error, cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		logger.Log.Error(msg, zap.NamedError("kind", kind), zap.Error(cause))
		return fmt.Errorf("%w: %s: %w", kind, msg, cause)
	}
	logger.Log.Error(msg, zap.NamedError("kind", kind))
	return fmt.Errorf("%w: %s", kind, msg)
}

// Warn is Wrap for caller-side mistakes (permission, bad input) that should not show up as errors in the log.
func Warn(kind error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	logger.Log.Warn(msg, zap.NamedError("kind", kind))
	return fmt.Errorf("%w: %s", kind, msg)
}
