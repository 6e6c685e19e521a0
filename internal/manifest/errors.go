package manifest

import "errors"

var (
	ErrDefinition = errors.New("invalid pipeline definition")
	ErrResolve    = errors.New("cannot resolve expression")
)
