package board

import "sync"

// MockBoard is a scriptable board for development and tests
type MockBoard struct {
	mu sync.Mutex

	voltage   float64
	pressed   bool
	buzzer    bool
	vibration bool
	healthy   bool
	closed    bool
}

// NewMockBoard creates a mock board with a full battery
func NewMockBoard() *MockBoard {
	return &MockBoard{
		voltage: 8.4,
		healthy: true,
	}
}

// SetVoltage scripts the battery voltage
func (m *MockBoard) SetVoltage(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voltage = v
}

// SetPressed scripts the raw button level
func (m *MockBoard) SetPressed(pressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed = pressed
}

// Buzzer returns the current buzzer state
func (m *MockBoard) Buzzer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buzzer
}

// Vibration returns the current vibration state
func (m *MockBoard) Vibration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vibration
}

// ReadBatteryVoltage returns the scripted voltage
func (m *MockBoard) ReadBatteryVoltage() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voltage, nil
}

// ReadButton returns the scripted button level
func (m *MockBoard) ReadButton() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressed, nil
}

// SetBuzzer records the buzzer state
func (m *MockBoard) SetBuzzer(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buzzer = on
	return nil
}

// SetVibration records the vibration state
func (m *MockBoard) SetVibration(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vibration = on
	return nil
}

// Healthy returns the scripted health state
func (m *MockBoard) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy && !m.closed
}

// Name returns the board type name
func (m *MockBoard) Name() string {
	return "mock"
}

// Close marks the board closed
func (m *MockBoard) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
