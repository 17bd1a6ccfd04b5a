package pipeline

import "errors"

var (
	ErrEmptyContent    = errors.New("content is empty")
	ErrInvalidState    = errors.New("record is not in a valid state for this operation")
	ErrCaseNotFound    = errors.New("case not found")
	ErrIsolatedTimeout = errors.New("isolated call timed out")
)
