package stream

import "errors"

// Sentinel errors surfaced by the streaming module. Callers are expected to
// match with errors.Is; every failure returned by the engine wraps exactly one
// of these.
var (
	ErrNotFound       = errors.New("streams: stream not found")
	ErrInvalidAmount  = errors.New("streams: invalid amount")
	ErrUnauthorized   = errors.New("streams: unauthorized")
	ErrInvalidState   = errors.New("streams: invalid stream state")
	ErrOverflow       = errors.New("streams: arithmetic overflow")
	ErrTransferFailed = errors.New("streams: token transfer failed")
)
