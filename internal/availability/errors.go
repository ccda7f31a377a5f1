package availability

import "errors"

var (
	ErrInvalidPolicy   = errors.New("invalid slot policy")
	ErrInvalidDuration = errors.New("duration is not allowed")
)
