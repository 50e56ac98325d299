package variants

import "errors"

var (
	ErrNotFound     = errors.New("variant not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrExtraction   = errors.New("extraction failed")
)
