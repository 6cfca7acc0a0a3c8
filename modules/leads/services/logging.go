package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/leadrouter/pkg/composables"
)

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	composables.UseLogger(ctx).WithField("component", "leads").WithFields(fields).Log(level, msg)
}
