package models

import "errors"

// Sentinel errors shared by the cores and their callers.
// Use errors.Is to check: errors.Is(err, models.ErrNotFound)
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrKeyConflict     = errors.New("cache key already holds a different payload")
	ErrDuplicateReview = errors.New("review already recorded")
)
