package balances

import (
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockBalances mocks the interfaces.Balances interface
type MockBalances struct {
	mock.Mock
}

// Debit mocks the Debit method
func (m *MockBalances) Debit(account interfaces.AccountID, amount interfaces.Balance, keepAlive bool) error {
	args := m.Called(account, amount, keepAlive)
	return args.Error(0)
}
