// Package groutine starts named goroutines for the manager's callback work.
package groutine

import (
	"context"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go runs fn on a new goroutine labelled name for pprof and reachable through
// Name(ctx). A panic in fn is recovered and logged.
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, logger *logrus.Logger, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"goroutine": name,
					"panic":     r,
				}).Error("Goroutine panicked")
			}
		}()

		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Name retrieves the goroutine name from the context.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
