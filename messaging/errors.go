package messaging

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("conversation not found")
	ErrNotParticipant  = errors.New("caller is not a participant of this conversation")
)
