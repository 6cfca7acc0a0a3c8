package composables

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/leadrouter/pkg/constants"
)

var ErrNoActor = errors.New("actor not found in context")

// UseLogger returns the request-scoped logger, or the standard logger when none is attached.
func UseLogger(ctx context.Context) *logrus.Entry {
	switch l := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return l
	case *logrus.Logger:
		return logrus.NewEntry(l)
	default:
		return logrus.NewEntry(logrus.StandardLogger())
	}
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// WithActor stores the authenticated user id.
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, constants.ActorKey, userID)
}

func UseActor(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(constants.ActorKey).(int64)
	if !ok || id <= 0 {
		return 0, ErrNoActor
	}
	return id, nil
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, id)
}

func UseRequestID(ctx context.Context) string {
	id, _ := ctx.Value(constants.RequestIDKey).(string)
	return id
}
