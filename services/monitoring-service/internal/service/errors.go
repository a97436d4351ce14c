package service

import "errors"

var (
	ErrInvalidAlert      = errors.New("invalid alert")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrSignalNotFound    = errors.New("fatigue signal not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrForbidden         = errors.New("forbidden")
)
