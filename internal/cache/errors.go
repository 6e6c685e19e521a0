package cache

import "errors"

var (
	ErrCache         = errors.New("cache error")
	ErrEntryNotFound = errors.New("cache entry not found")
)
