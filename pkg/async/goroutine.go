package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with panic recovery. Errors and panics are logged, never
// propagated. A positive timeout bounds the context fn receives.
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	go func() {
		ctx, cancel := parentCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		}
		defer cancel()

		if err := call(ctx, fn); err != nil {
			logger.WithField("task", taskName).WithError(err).Error("Background task failed")
		}
	}()
}

// Run executes fn in a goroutine and delivers its result on the returned channel, which
// receives exactly one value. A panic is delivered as an error.
func Run(ctx context.Context, logger logrus.FieldLogger, taskName string, fn func(context.Context) error) <-chan error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	done := make(chan error, 1)
	go func() {
		err := call(ctx, fn)
		if err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("Background task exited")
		}
		done <- err
	}()
	return done
}

func call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
