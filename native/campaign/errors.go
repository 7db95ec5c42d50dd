package campaign

import "errors"

var (
	ErrNotFound       = errors.New("campaigns: campaign not found")
	ErrReceiptMissing = errors.New("campaigns: receipt not found")
	ErrInvalidAmount  = errors.New("campaigns: invalid amount")
	ErrUnauthorized   = errors.New("campaigns: unauthorized")
	ErrInvalidState   = errors.New("campaigns: invalid campaign state")
	ErrTransferFailed = errors.New("campaigns: token transfer failed")
)
