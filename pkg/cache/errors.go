package cache

import "errors"

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrLockHeld  = errors.New("lock is held by another owner")
)
