package sentryutil

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/config"
	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

// Init configures the global Sentry hub. With an empty DSN the SDK is a
// no-op, so callers never need to check.
func Init(cfg config.SentryConfig, log zerolog.Logger) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("sentry init failed, error tracking disabled")
		return
	}
	if cfg.DSN == "" {
		log.Info().Msg("SENTRY_DSN empty, error tracking disabled")
	} else {
		log.Info().Str("environment", cfg.Environment).Msg("sentry initialized")
	}
}

func Flush() { sentry.Flush(2 * time.Second) }

func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// ReportDispatch has the shape of a poller error reporter and sends
// failed updates to Sentry tagged with their kind.
func ReportDispatch(_ context.Context, u telegram.Update, err error) {
	CaptureError(err, map[string]string{
		"kind":      dispatch.Classify(u).String(),
		"component": "dispatch",
	})
}
