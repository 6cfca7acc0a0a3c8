package services

import "context"

// WindowLocker serializes allocation decisions that share a key.
// fn runs while the lock is held.
type WindowLocker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

type noopLocker struct{}

func (noopLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
