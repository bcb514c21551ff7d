package service

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("forbidden")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthenticated   = errors.New("invalid signature")
	ErrNotFound          = errors.New("not found")
	ErrTransient         = errors.New("transient failure")
	ErrPermanent         = errors.New("permanent failure")
)
