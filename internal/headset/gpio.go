package headset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	edgeTimeout = 200 * time.Millisecond
	// jackSettle lets the jack contacts stop bouncing before the line is read.
	jackSettle = 50 * time.Millisecond
)

// GPIODetector follows a jack-detect GPIO line.
type GPIODetector struct {
	pin       gpio.PinIO
	activeLow bool
	log       *slog.Logger

	mu      sync.Mutex
	plugged bool
}

// NewGPIODetector configures the named pin as an input with edge detection.
func NewGPIODetector(name string, activeLow bool, log *slog.Logger) (*GPIODetector, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("headset: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("headset: GPIO pin %s not found", name)
	}
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("headset: configure %s: %w", name, err)
	}
	d := &GPIODetector{pin: pin, activeLow: activeLow, log: log}
	d.plugged = d.read()
	return d, nil
}

func (d *GPIODetector) read() bool {
	level := d.pin.Read()
	if d.activeLow {
		return level == gpio.Low
	}
	return level == gpio.High
}

func (d *GPIODetector) PluggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plugged
}

// Watch waits for edges on the line. The timeout keeps ctx responsive.
func (d *GPIODetector) Watch(ctx context.Context, onChange func(bool)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.pin.WaitForEdge(edgeTimeout) {
			continue
		}
		time.Sleep(jackSettle)
		plugged := d.read()

		d.mu.Lock()
		changed := plugged != d.plugged
		d.plugged = plugged
		d.mu.Unlock()
		if changed {
			d.log.Info("headset: wired headset changed", "plugged_in", plugged, "pin", d.pin.Name())
			onChange(plugged)
		}
	}
}

// Close stops edge detection.
func (d *GPIODetector) Close() error {
	return d.pin.In(gpio.PullNoChange, gpio.NoEdge)
}
