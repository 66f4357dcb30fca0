package repository

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrProfileNotFound = errors.New("profile not found")
	ErrWriterNotFound  = errors.New("writer not found in couple")
	ErrHoursLength     = errors.New("hours length does not match subject catalog")
)
