package database

import "errors"

var (
	ErrNotFound   = errors.New("document not found")
	ErrDuplicate  = errors.New("duplicate document")
	ErrInvalidID  = errors.New("invalid document ID")
	ErrConnection = errors.New("database connection error")
	ErrConflict   = errors.New("document state conflict")
)
