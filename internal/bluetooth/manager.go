// Package bluetooth tracks bluetooth voice headsets through BlueZ on the
// system D-Bus and opens or closes their voice link on request.
package bluetooth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService     = "org.bluez"
	deviceIface      = "org.bluez.Device1"
	transportIface   = "org.bluez.MediaTransport1"
	objectManager    = "org.freedesktop.DBus.ObjectManager"
	propertiesIface  = "org.freedesktop.DBus.Properties"
	getManagedObject = objectManager + ".GetManagedObjects"

	// Voice profile UUIDs, hands-free first.
	UUIDHandsfree = "0000111e-0000-1000-8000-00805f9b34fb"
	UUIDHeadset   = "00001108-0000-1000-8000-00805f9b34fb"

	// pendingTimeout bounds how long a requested link counts as pending if
	// BlueZ never reports a transport for it.
	pendingTimeout = 10 * time.Second
)

// ManagedObjects is the reply shape of ObjectManager.GetManagedObjects.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Snapshot is the voice-relevant bluetooth topology at one point in time.
type Snapshot struct {
	// Device is the connected device offering a voice profile, if any.
	Device  dbus.ObjectPath
	Profile string

	// Transport state of the voice link: "", "idle", "pending" or "active".
	Transport string
}

// Available reports whether a voice-capable device is connected.
func (s Snapshot) Available() bool { return s.Device != "" }

// AudioConnected reports an active voice transport.
func (s Snapshot) AudioConnected() bool { return s.Transport == "active" }

// ParseManagedObjects extracts the voice device and its transport state.
// When several devices qualify, the lowest object path wins so the choice is
// stable across refreshes.
func ParseManagedObjects(objects ManagedObjects) Snapshot {
	paths := make([]string, 0, len(objects))
	for p := range objects {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	var snap Snapshot
	for _, p := range paths {
		dev, ok := objects[dbus.ObjectPath(p)][deviceIface]
		if !ok || !boolProp(dev, "Connected") {
			continue
		}
		if profile := voiceProfile(stringsProp(dev, "UUIDs")); profile != "" {
			snap.Device = dbus.ObjectPath(p)
			snap.Profile = profile
			break
		}
	}
	if !snap.Available() {
		return snap
	}

	for _, p := range paths {
		tr, ok := objects[dbus.ObjectPath(p)][transportIface]
		if !ok {
			continue
		}
		if device, _ := tr["Device"].Value().(dbus.ObjectPath); device != snap.Device {
			continue
		}
		if voiceProfile([]string{stringProp(tr, "UUID")}) == "" {
			continue
		}
		snap.Transport = stringProp(tr, "State")
		break
	}
	return snap
}

func voiceProfile(uuids []string) string {
	found := ""
	for _, u := range uuids {
		switch strings.ToLower(u) {
		case UUIDHandsfree:
			return UUIDHandsfree
		case UUIDHeadset:
			found = UUIDHeadset
		}
	}
	return found
}

func boolProp(props map[string]dbus.Variant, name string) bool {
	v, ok := props[name]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

func stringProp(props map[string]dbus.Variant, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func stringsProp(props map[string]dbus.Variant, name string) []string {
	v, ok := props[name]
	if !ok {
		return nil
	}
	s, _ := v.Value().([]string)
	return s
}

// Manager keeps the current Snapshot up to date and implements the
// bluetooth half of the routing controller's device availability.
type Manager struct {
	conn *dbus.Conn
	log  *slog.Logger
	now  func() time.Time

	mu           sync.RWMutex
	snap         Snapshot
	pendingSince time.Time

	// settled wakes Watch when a profile request fails.
	settled chan struct{}
}

// New connects to the system bus and loads the initial snapshot.
func New(log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluetooth: connect system bus: %w", err)
	}
	m := &Manager{conn: conn, log: log, now: time.Now, settled: make(chan struct{}, 1)}
	if _, err := m.Refresh(); err != nil {
		// BlueZ may start after us; Watch picks it up later.
		log.Warn("bluetooth: initial refresh failed", "err", err)
	}
	return m, nil
}

// Close releases the bus connection.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// Snapshot returns the last known topology.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Manager) IsBluetoothAvailable() bool {
	return m.Snapshot().Available()
}

func (m *Manager) IsBluetoothAudioConnected() bool {
	return m.Snapshot().AudioConnected()
}

// IsBluetoothAudioConnectedOrPending also counts a transport BlueZ reports as
// pending and a connect we requested that has not been answered yet.
func (m *Manager) IsBluetoothAudioConnectedOrPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.snap.Available() {
		return false
	}
	if m.snap.Transport == "active" || m.snap.Transport == "pending" {
		return true
	}
	return !m.pendingSince.IsZero() && m.now().Sub(m.pendingSince) < pendingTimeout
}

// ConnectAudio asks BlueZ to connect the voice profile of the current device.
// It does not wait for the link: BlueZ answers ConnectProfile only once the
// profile is up, and the result shows up as a topology change.
func (m *Manager) ConnectAudio() error {
	snap := m.Snapshot()
	if !snap.Available() {
		return fmt.Errorf("bluetooth: no voice device connected")
	}
	m.mu.Lock()
	m.pendingSince = m.now()
	m.mu.Unlock()

	m.log.Info("bluetooth: connecting voice profile", "device", snap.Device, "profile", snap.Profile)
	obj := m.conn.Object(bluezService, snap.Device)
	call := obj.Go(deviceIface+".ConnectProfile", 0, make(chan *dbus.Call, 1), snap.Profile)
	go m.awaitReply("connect profile", call.Done)
	return nil
}

// DisconnectAudio asks BlueZ to close the voice profile of the current device
// without waiting for it.
func (m *Manager) DisconnectAudio() error {
	m.clearPending()
	snap := m.Snapshot()
	if !snap.Available() {
		return nil
	}
	m.log.Info("bluetooth: disconnecting voice profile", "device", snap.Device, "profile", snap.Profile)
	obj := m.conn.Object(bluezService, snap.Device)
	call := obj.Go(deviceIface+".DisconnectProfile", 0, make(chan *dbus.Call, 1), snap.Profile)
	go m.awaitReply("disconnect profile", call.Done)
	return nil
}

// awaitReply logs a failed profile request. A failure drops the pending
// connect and wakes Watch so the controller sees the link is not coming.
func (m *Manager) awaitReply(op string, done <-chan *dbus.Call) {
	reply := <-done
	if reply == nil || reply.Err == nil {
		return
	}
	m.log.Warn("bluetooth: profile request failed", "op", op, "err", reply.Err)
	m.clearPending()
	select {
	case m.settled <- struct{}{}:
	default:
	}
}

func (m *Manager) clearPending() {
	m.mu.Lock()
	m.pendingSince = time.Time{}
	m.mu.Unlock()
}

// Refresh reloads the snapshot from BlueZ and reports whether it changed.
func (m *Manager) Refresh() (bool, error) {
	var objects ManagedObjects
	call := m.conn.Object(bluezService, "/").Call(getManagedObject, 0)
	if call.Err != nil {
		return false, fmt.Errorf("bluetooth: get managed objects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return false, fmt.Errorf("bluetooth: decode managed objects: %w", err)
	}
	return m.update(ParseManagedObjects(objects)), nil
}

// update installs snap and reports whether it differs from the previous one.
// A transport that reached a definite state settles a requested connect.
func (m *Manager) update(snap Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Transport == "active" || !snap.Available() {
		m.pendingSince = time.Time{}
	}
	if snap == m.snap {
		return false
	}
	m.log.Info("bluetooth: topology changed",
		"device", snap.Device, "profile", snap.Profile, "transport", snap.Transport)
	m.snap = snap
	return true
}

// Watch subscribes to BlueZ object and property changes and calls onChange
// whenever the snapshot changes. It blocks until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, onChange func()) error {
	rules := [][]dbus.MatchOption{
		{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(propertiesIface), dbus.WithMatchMember("PropertiesChanged")},
		{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(objectManager), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(objectManager), dbus.WithMatchMember("InterfacesRemoved")},
	}
	for _, r := range rules {
		if err := m.conn.AddMatchSignal(r...); err != nil {
			return fmt.Errorf("bluetooth: add match: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	// A pending connect that BlueZ never answers must eventually expire.
	ticker := time.NewTicker(pendingTimeout / 2)
	defer ticker.Stop()
	wasPending := m.IsBluetoothAudioConnectedOrPending()

	m.log.Info("bluetooth: watching BlueZ")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("bluetooth: signal channel closed")
			}
			m.log.Debug("bluetooth: signal", "name", sig.Name, "path", sig.Path)
			changed, err := m.Refresh()
			if err != nil {
				m.log.Warn("bluetooth: refresh failed", "err", err)
				continue
			}
			pending := m.IsBluetoothAudioConnectedOrPending()
			if changed || pending != wasPending {
				onChange()
			}
			wasPending = pending
		case <-m.settled:
			if pending := m.IsBluetoothAudioConnectedOrPending(); pending != wasPending {
				wasPending = pending
				onChange()
			}
		case <-ticker.C:
			if pending := m.IsBluetoothAudioConnectedOrPending(); pending != wasPending {
				wasPending = pending
				onChange()
			}
		}
	}
}
