package service

import "errors"

var (
	ErrSessionNotFound = errors.New("booking session not found")
	ErrRateLimited     = errors.New("too many submissions, try again later")
	ErrInvalidRange    = errors.New("invalid date range")
)
