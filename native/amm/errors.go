package amm

import "errors"

var (
	// ErrPairNotFound is returned when no trading pair exists for the stock token.
	ErrPairNotFound = errors.New("amm: trading pair not found")
	// ErrPairExists is returned when a pair has already been created for the stock token.
	ErrPairExists = errors.New("amm: trading pair already exists")
	// ErrPairInactive is returned when the pair is paused or has no provisioned reserves.
	ErrPairInactive = errors.New("amm: trading pair inactive")
	// ErrInvalidAmount is returned when an amount parameter is nil or not positive.
	ErrInvalidAmount = errors.New("amm: amount must be positive")
	// ErrInvalidFeeRate is returned when a fee rate exceeds the cap.
	ErrInvalidFeeRate = errors.New("amm: fee rate exceeds cap")
	// ErrInsufficientLiquidity is returned when a swap would drain the pool or
	// rounds to zero output.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	// ErrExcessivePriceImpact is returned when a swap exceeds the pair's impact limit.
	ErrExcessivePriceImpact = errors.New("amm: price impact exceeds limit")
	// ErrSlippageExceeded is returned when realized output or minted shares fall
	// below the caller's stated minimum.
	ErrSlippageExceeded = errors.New("amm: slippage tolerance exceeded")
	// ErrExpired is returned when the deadline passed before execution.
	ErrExpired = errors.New("amm: deadline expired")
	// ErrInsufficientShares is returned when a withdrawal exceeds the caller's position.
	ErrInsufficientShares = errors.New("amm: insufficient liquidity shares")
	// ErrTransferFailed wraps a failed token movement; no state is mutated.
	ErrTransferFailed = errors.New("amm: token transfer failed")
	// ErrUnauthorized is returned when a non-admin invokes a gated operation.
	ErrUnauthorized = errors.New("amm: caller lacks admin capability")

	errNilEngine = errors.New("amm: engine not configured")
)
