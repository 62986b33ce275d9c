package classify

import (
	"context"
	"sync"
)

// MockClassifier is a scriptable classifier for development and tests.
// It returns a fixed confidence, or pops from a scripted sequence when
// one is set.
type MockClassifier struct {
	mu         sync.Mutex
	confidence float64
	sequence   []float64
	err        error
	calls      int
}

// NewMockClassifier creates a classifier returning zero confidence
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// SetConfidence scripts a fixed confidence
func (m *MockClassifier) SetConfidence(c float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidence = c
	m.sequence = nil
}

// SetSequence scripts per-call confidences; the last value repeats
func (m *MockClassifier) SetSequence(seq ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append([]float64{}, seq...)
}

// SetError scripts a failure
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Infer was invoked
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Infer returns the scripted confidence or error
func (m *MockClassifier) Infer(ctx context.Context, window [][]float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if m.err != nil {
		return 0, m.err
	}

	if len(m.sequence) > 0 {
		c := m.sequence[0]
		if len(m.sequence) > 1 {
			m.sequence = m.sequence[1:]
		}
		return c, nil
	}

	return m.confidence, nil
}

// Name returns the classifier type name
func (m *MockClassifier) Name() string {
	return "mock"
}
