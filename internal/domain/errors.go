package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("caller is not the owner")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInsufficientFunds     = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrExceedsMaxPurchase    = errors.New("exceeds max amount")
	ErrExceedsCapacity       = errors.New("exceeds round capacity")
	ErrSwapFailed            = errors.New("swap failed")
	ErrRoundNotFound         = errors.New("round not found")
	ErrRoundNotSettled       = errors.New("round not settled")
	ErrReentrantCall         = errors.New("reentrant call")
	ErrLockHeld              = errors.New("lock already held")
	ErrCommitFailed          = errors.New("commit failed")
)
