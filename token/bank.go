package token

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Bank is an in-memory multi-token ledger. It implements the TokenLedger
// surface the AMM engine consumes and is the settlement layer for the daemon
// and the test suites.
type Bank struct {
	mu         sync.RWMutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

// NewBank constructs an empty ledger.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Mint credits freshly issued units to an account. Used to seed balances at
// boot and in tests.
func (b *Bank) Mint(token, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(token, account, amount)
	return nil
}

// BalanceOf returns the account's balance for a token. The result is a copy.
func (b *Bank) BalanceOf(token, account common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	balance, ok := b.balances[balanceKey{token: token, account: account}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Approve grants spender the right to pull up to amount from owner.
func (b *Bank) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	if amount.Sign() == 0 {
		delete(b.allowances, key)
		return nil
	}
	b.allowances[key] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining amount spender may pull from owner.
func (b *Bank) Allowance(token, owner, spender common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	allowance, ok := b.allowances[allowanceKey{token: token, owner: owner, spender: spender}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(allowance)
}

// Transfer moves amount between accounts. The caller is trusted to hold
// authority over the from account; within ngndex only the engine treasury
// initiates these.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	b.credit(token, to, amount)
	return nil
}

// TransferFrom pulls amount from owner using spender's allowance. Balance and
// allowance are checked before either is touched so a failure leaves no
// partial state.
func (b *Bank) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	allowance, ok := b.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := b.debit(token, owner, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(allowance, amount)
	if remaining.Sign() == 0 {
		delete(b.allowances, key)
	} else {
		b.allowances[key] = remaining
	}
	b.credit(token, to, amount)
	return nil
}

func (b *Bank) credit(token, account common.Address, amount *big.Int) {
	key := balanceKey{token: token, account: account}
	balance, ok := b.balances[key]
	if !ok {
		b.balances[key] = new(big.Int).Set(amount)
		return
	}
	balance.Add(balance, amount)
}

func (b *Bank) debit(token, account common.Address, amount *big.Int) error {
	key := balanceKey{token: token, account: account}
	balance, ok := b.balances[key]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	if balance.Sign() == 0 {
		delete(b.balances, key)
	}
	return nil
}
