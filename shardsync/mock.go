package shardsync

import (
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockClusterView mocks the ClusterView interface
type MockClusterView struct {
	mock.Mock
}

// EnsureEnclave mocks the EnsureEnclave method
func (m *MockClusterView) EnsureEnclave(enclave interfaces.AccountID) (interfaces.AccountID, interfaces.ClusterID, error) {
	args := m.Called(enclave)
	return args.Get(0).(interfaces.AccountID), args.Get(1).(interfaces.ClusterID), args.Error(2)
}

// ClusterMembers mocks the ClusterMembers method
func (m *MockClusterView) ClusterMembers(id interfaces.ClusterID) ([]interfaces.AccountID, bool) {
	args := m.Called(id)
	return args.Get(0).([]interfaces.AccountID), args.Bool(1)
}

// ClusterIDs mocks the ClusterIDs method
func (m *MockClusterView) ClusterIDs() []interfaces.ClusterID {
	args := m.Called()
	return args.Get(0).([]interfaces.ClusterID)
}
