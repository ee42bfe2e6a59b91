package market

import (
	"fmt"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// Treasury keeps the per-identity balances the market routes payments
// through. Amounts are in satoshis. The treasury never creates money on
// its own: balances enter via Credit (constructor deposit, faucet) and
// then only move between accounts.
type Treasury struct {
	accounts map[models.Address]int64
}

// NewTreasury creates an empty treasury.
func NewTreasury() *Treasury {
	return &Treasury{
		accounts: make(map[models.Address]int64),
	}
}

// RestoreTreasury creates a treasury from persisted balances.
func RestoreTreasury(balances map[models.Address]int64) *Treasury {
	t := NewTreasury()
	for addr, amount := range balances {
		if amount != 0 {
			t.accounts[addr] = amount
		}
	}
	return t
}

// Credit adds funds to an account.
func (t *Treasury) Credit(addr models.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: cannot credit negative amount %d", ErrInvalidArgument, amount)
	}
	t.accounts[addr] += amount
	return nil
}

// Transfer moves funds between accounts. It fails without effect if the
// source balance cannot cover the amount.
func (t *Treasury) Transfer(from, to models.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: cannot transfer negative amount %d", ErrInvalidArgument, amount)
	}
	if t.accounts[from] < amount {
		return fmt.Errorf("%w: %q has %d sats, needs %d", ErrWrongPayment, from, t.accounts[from], amount)
	}
	t.accounts[from] -= amount
	t.accounts[to] += amount
	return nil
}

// BalanceOf returns the current balance of an account.
func (t *Treasury) BalanceOf(addr models.Address) int64 {
	return t.accounts[addr]
}

// Balances returns a copy of all non-zero account balances.
func (t *Treasury) Balances() map[models.Address]int64 {
	out := make(map[models.Address]int64, len(t.accounts))
	for addr, amount := range t.accounts {
		if amount != 0 {
			out[addr] = amount
		}
	}
	return out
}
