package tracing

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogRecoverToReturn recovers from a panic, logs it and forwards it to sentry
// and otel, then returns. Does nothing when there is no panic.
func LogRecoverToReturn(ctx context.Context, loc string) {
	err := recover()
	if err == nil {
		return
	}

	HandlePanic(ctx, loc, err, string(debug.Stack()))
}

// LogRecoverToExit recovers from a panic, reports it, flushes tracing and
// exits with status 1. Does nothing when there is no panic.
func LogRecoverToExit(ctx context.Context, loc string) {
	err := recover()
	if err == nil {
		return
	}

	HandlePanic(ctx, loc, err, string(debug.Stack()))

	// ensure that errors still get sent out
	ShutdownTracer(ctx)

	os.Exit(1)
}

func HandlePanic(ctx context.Context, loc string, err interface{}, stack string) {
	msg := fmt.Sprintf("unhandled panic in %v, exiting: %v", loc, err)

	if hub := sentry.CurrentHub(); hub != nil {
		hub.Recover(err)
	}

	// always log to stderr (no WithContext!)
	log.WithFields(log.Fields{"loc": loc, "stack": stack}).Error(msg)

	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("vpc.panic.loc", loc),
			attribute.String("vpc.panic.stack", stack),
		)
		span.SetStatus(codes.Error, msg)
	}
}

// CaptureFatal reports an error that is about to end the process to sentry
// and marks the current span as failed
func CaptureFatal(ctx context.Context, err error) {
	if err == nil {
		return
	}

	sentry.CaptureException(err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
