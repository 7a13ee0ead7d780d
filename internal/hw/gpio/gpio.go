package gpio

import (
	"sync"

	"github.com/mgirard/svgrab/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver defines the abstract interface for driving output pins (the strobe
// line only ever writes). This allows plugging in a real Raspberry Pi
// implementation or a mock for development on PC.
type Driver interface {
	SetupOutput(pin int) error
	Write(pin int, level Level) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

// PinWrite records one Write call on the mock driver.
type PinWrite struct {
	Pin   int
	Level Level
}

// MockDriver logs actions and records writes so tests can assert the
// strobe pulse sequence.
type MockDriver struct {
	mu     sync.Mutex
	writes []PinWrite
}

func (m *MockDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	return nil
}

func (m *MockDriver) Write(pin int, level Level) error {
	debug.GPIO("Write", pin, level)
	m.mu.Lock()
	m.writes = append(m.writes, PinWrite{Pin: pin, Level: level})
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// Writes returns a copy of the recorded write sequence.
func (m *MockDriver) Writes() []PinWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PinWrite, len(m.writes))
	copy(out, m.writes)
	return out
}
