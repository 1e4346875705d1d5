package extraction

import (
	"errors"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/validator"
)

var (
	// ErrInvalidRequest is returned before any stage runs.
	ErrInvalidRequest = validator.ErrInvalidRequest
	// ErrUpstreamUnavailable means structured extraction failed and no
	// generative fallback was allowed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInternal wraps anything unexpected.
	ErrInternal = errors.New("internal extraction error")
)
