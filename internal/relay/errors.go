package relay

import "errors"

var (
	ErrInvalidJoinRequest = errors.New("invalid join request")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrMalformedFrame     = errors.New("malformed frame")
)
