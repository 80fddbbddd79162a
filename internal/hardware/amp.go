package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// OutputPin is a GPIO output line. periph's gpio.PinIO implements it.
type OutputPin interface {
	Out(l gpio.Level) error
}

// OpenAmpPin opens the speaker amplifier enable line by name ("GPIO17").
func OpenAmpPin(name string) (OutputPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("amp: host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("amp: no gpio named %s", name)
	}
	return pin, nil
}

// Amp wraps a Control and powers the loudspeaker amplifier only while the
// speaker route is selected. The amp is enabled after the route switch and
// disabled before switching away, so the speaker never pops on a stale path.
type Amp struct {
	Control

	mu  sync.Mutex
	pin OutputPin
	on  bool
	log *slog.Logger
}

// NewAmp decorates inner and drives the amp pin to match the current speaker
// state.
func NewAmp(inner Control, pin OutputPin, log *slog.Logger) (*Amp, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &Amp{Control: inner, pin: pin, log: log}
	if err := a.drive(inner.IsSpeakerphoneOn()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Amp) Name() string { return a.Control.Name() + "+amp" }

func (a *Amp) SetSpeakerphoneOn(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !on {
		if err := a.drive(false); err != nil {
			return err
		}
		return a.Control.SetSpeakerphoneOn(false)
	}
	if err := a.Control.SetSpeakerphoneOn(true); err != nil {
		return err
	}
	return a.drive(true)
}

// Enabled reports the amp line state.
func (a *Amp) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func (a *Amp) drive(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := a.pin.Out(level); err != nil {
		return ErrHardware(fmt.Sprintf("amp: drive enable line %s: %v", level, err))
	}
	a.on = on
	a.log.Debug("amp: enable line", "on", on)
	return nil
}

var _ Control = (*Amp)(nil)
