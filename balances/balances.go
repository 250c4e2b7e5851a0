// Package balances is an in-memory account ledger implementing the fee
// debit contract of interfaces.Balances, with existential deposit semantics.
package balances

import (
	"maps"
	"math"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

type Config struct {
	// ExistentialDeposit is the minimum balance an account must keep to
	// exist. Accounts falling below it are reaped.
	ExistentialDeposit interfaces.Balance `toml:"existential_deposit"`
	// FeeCollector receives every debited amount when set.
	FeeCollector *interfaces.AccountID `toml:"fee_collector"`
}

// Ledger keeps free balances per account. Callers serialize access.
type Ledger struct {
	cfg      Config
	accounts map[interfaces.AccountID]interfaces.Balance
}

func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:      cfg,
		accounts: make(map[interfaces.AccountID]interfaces.Balance),
	}
}

// Debit removes amount from account. When keepAlive is false and the
// remainder is below the existential deposit the account is reaped and the
// remainder is lost. A zero debit always succeeds and touches nothing.
func (l *Ledger) Debit(account interfaces.AccountID, amount interfaces.Balance, keepAlive bool) error {
	if amount == 0 {
		return nil
	}
	free := l.accounts[account]
	if free < amount {
		return interfaces.ErrInsufficientBalance
	}
	remaining := free - amount
	if remaining < l.cfg.ExistentialDeposit {
		if keepAlive {
			return interfaces.ErrKeepAlive
		}
		remaining = 0
	}

	if remaining == 0 {
		delete(l.accounts, account)
	} else {
		l.accounts[account] = remaining
	}
	if l.cfg.FeeCollector != nil && amount > 0 {
		l.Credit(*l.cfg.FeeCollector, amount)
	}
	return nil
}

// Credit adds amount to account, saturating at the maximum balance.
func (l *Ledger) Credit(account interfaces.AccountID, amount interfaces.Balance) {
	free := l.accounts[account]
	if amount > math.MaxUint64-free {
		free = math.MaxUint64
	} else {
		free += amount
	}
	if free > 0 {
		l.accounts[account] = free
	}
}

func (l *Ledger) FreeBalance(account interfaces.AccountID) interfaces.Balance {
	return l.accounts[account]
}

func (l *Ledger) State() map[interfaces.AccountID]interfaces.Balance {
	return maps.Clone(l.accounts)
}

func Restore(cfg Config, accounts map[interfaces.AccountID]interfaces.Balance) *Ledger {
	l := New(cfg)
	for account, free := range accounts {
		if free > 0 {
			l.accounts[account] = free
		}
	}
	return l
}
