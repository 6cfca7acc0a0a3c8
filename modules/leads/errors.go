package leads

import "github.com/pkg/errors"

var (
	errRedisRequired = errors.New("redis client is required for the redis allocation lock")
	errPoolRequired  = errors.New("database pool is required for the postgres allocation lock")
)
