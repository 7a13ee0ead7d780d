package strobe

import (
	"fmt"
	"time"

	"github.com/mgirard/svgrab/internal/debug"
	"github.com/mgirard/svgrab/internal/hw/gpio"
)

// Strobe drives a flash/trigger line through a single GPIO pin. The line is
// active HIGH and idles LOW. Firing it just before the frame fetch lets an
// external light source expose the scene in sync with acquisition.
type Strobe struct {
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
}

// New configures the pin as an output and parks it LOW (inactive).
func New(g gpio.Driver, pin int, pulse time.Duration) (*Strobe, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("strobe: invalid pin %d", pin)
	}
	if pulse <= 0 {
		pulse = 10 * time.Millisecond
	}
	if err := g.SetupOutput(pin); err != nil {
		return nil, fmt.Errorf("strobe: setup pin %d: %w", pin, err)
	}
	if err := g.Write(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("strobe: park pin %d low: %w", pin, err)
	}
	return &Strobe{gpio: g, pin: pin, pulse: pulse}, nil
}

// Fire pulses the line: HIGH, hold for the pulse duration, LOW.
// The line is driven LOW again even if the hold is interrupted by an error.
func (s *Strobe) Fire() error {
	debug.Printf("Strobe: firing pin %d for %v", s.pin, s.pulse)

	if err := s.gpio.Write(s.pin, gpio.High); err != nil {
		return fmt.Errorf("strobe: raise pin %d: %w", s.pin, err)
	}
	time.Sleep(s.pulse)
	if err := s.gpio.Write(s.pin, gpio.Low); err != nil {
		return fmt.Errorf("strobe: release pin %d: %w", s.pin, err)
	}
	return nil
}
