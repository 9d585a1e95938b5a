package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with its stack. Call it deferred:
//
//	defer observability.RecoverPanic(logger, "invite sweep")
//
// The panic is not re-raised.
func RecoverPanic(logger logrus.FieldLogger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by callback when a panic occurred
func RecoverPanicWithCallback(logger logrus.FieldLogger, context string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback()
		}
	}
}

// MustRecover converts a recovered value into an error, or nil when there was no panic:
//
//	defer func() { err = observability.MustRecover(recover()) }()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}

// LogPanic logs a value already obtained from recover
func LogPanic(logger logrus.FieldLogger, context string, r interface{}) {
	logPanic(logger, context, r)
}

func logPanic(logger logrus.FieldLogger, context string, r interface{}) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}
