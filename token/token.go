// Package token provides the asset ledger the trading engine settles through.
// Each token is identified by an address; balances and allowances follow the
// ERC-20 model with the operator (the engine's treasury account) acting as
// spender for pulls.
package token

import "errors"

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance is returned when a pull exceeds the spender's allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrInvalidAmount is returned for nil or non-positive amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")
)
