package eit

import "errors"

// Pipeline and loader failures. Callers wrap these with context and test
// for them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrEmptyInput          = errors.New("empty input")
	ErrDegenerateInput     = errors.New("degenerate input")
	ErrFileNotFound        = errors.New("file not found")
	ErrInvalidFormat       = errors.New("invalid format")
	ErrFrequencyOutOfRange = errors.New("frequency out of range")
)
