package temporal

import (
	"context"
	"sync"
)

// MockStarter is a mock implementation of ExchangeStarter for testing.
type MockStarter struct {
	mu      sync.Mutex
	results map[string]*ExchangeResult // keyed by workflow id
	inputs  []ExchangeInput
	err     error
}

// NewMockStarter creates a new MockStarter.
func NewMockStarter() *MockStarter {
	return &MockStarter{
		results: make(map[string]*ExchangeResult),
	}
}

// StartExchange records the input and returns the result configured for the
// address. Without one it reports a successful exchange.
func (m *MockStarter) StartExchange(ctx context.Context, input ExchangeInput) (*ExchangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.results[WorkflowID(input.Address)]; ok {
		return r, nil
	}
	return &ExchangeResult{
		Address:         input.Address,
		ContractAddress: input.ContractAddress,
		TokenID:         input.TokenID,
		Outcome:         "success",
	}, nil
}

// SetResult configures the result returned for address.
func (m *MockStarter) SetResult(address string, r *ExchangeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[WorkflowID(address)] = r
}

// SetError configures an error returned by every call.
func (m *MockStarter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Inputs returns a copy of every input seen.
func (m *MockStarter) Inputs() []ExchangeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExchangeInput, len(m.inputs))
	copy(out, m.inputs)
	return out
}
