// Package devices combines the wired headset detector and the bluetooth
// manager into the device topology the routing controller reads, and forwards
// their changes to it as events.
package devices

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/headset"
)

// Bluetooth is the bluetooth state source. *bluetooth.Manager implements it.
type Bluetooth interface {
	IsBluetoothAvailable() bool
	IsBluetoothAudioConnected() bool
	IsBluetoothAudioConnectedOrPending() bool
	Watch(ctx context.Context, onChange func()) error
	Refresh() (bool, error)
}

// EventSink receives device events. *controller.Controller implements it.
type EventSink interface {
	Post(ctx context.Context, ev controller.Event) error
}

// Monitor implements controller.DeviceAvailability. A nil Bluetooth means
// the device has no bluetooth voice support.
type Monitor struct {
	headset headset.Detector
	bt      Bluetooth
	log     *slog.Logger

	mu   sync.Mutex
	sink EventSink
}

// NewMonitor creates a monitor over the given sources.
func NewMonitor(h headset.Detector, bt Bluetooth, log *slog.Logger) *Monitor {
	if h == nil {
		h = headset.None{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{headset: h, bt: bt, log: log}
}

// SetSink sets where device events go.
func (m *Monitor) SetSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *Monitor) IsWiredHeadsetPluggedIn() bool { return m.headset.PluggedIn() }

func (m *Monitor) IsBluetoothAvailable() bool {
	return m.bt != nil && m.bt.IsBluetoothAvailable()
}

func (m *Monitor) IsBluetoothAudioConnected() bool {
	return m.bt != nil && m.bt.IsBluetoothAudioConnected()
}

func (m *Monitor) IsBluetoothAudioConnectedOrPending() bool {
	return m.bt != nil && m.bt.IsBluetoothAudioConnectedOrPending()
}

// Run watches both sources until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := m.headset.Watch(ctx, func(pluggedIn bool) {
			m.post(ctx, controller.WiredHeadsetChanged{PluggedIn: pluggedIn})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("devices: headset watch stopped", "err", err)
			errs <- err
		}
	}()

	if m.bt != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.bt.Watch(ctx, func() {
				m.post(ctx, controller.BluetoothChanged{})
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn("devices: bluetooth watch stopped", "err", err)
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	return errors.Join(collect(errs)...)
}

func collect(ch <-chan error) []error {
	var out []error
	for err := range ch {
		out = append(out, err)
	}
	return out
}

// Refresh re-reads bluetooth state and asks the controller to reconcile the
// whole topology.
func (m *Monitor) Refresh(ctx context.Context) error {
	if m.bt != nil {
		if _, err := m.bt.Refresh(); err != nil {
			m.log.Warn("devices: bluetooth refresh failed", "err", err)
		}
	}
	return m.postErr(ctx, controller.DeviceTopologyChanged{})
}

func (m *Monitor) post(ctx context.Context, ev controller.Event) {
	if err := m.postErr(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn("devices: failed to post event", "err", err)
	}
}

func (m *Monitor) postErr(ctx context.Context, ev controller.Event) error {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Post(ctx, ev)
}
