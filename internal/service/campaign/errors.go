package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrMissingName    = errors.New("campaign name is required")
	ErrMissingMessage = errors.New("campaign message is required")
	ErrInvalidMessage = errors.New("campaign message template is invalid")
	ErrMissingOwner   = errors.New("campaign owner is required")
)
