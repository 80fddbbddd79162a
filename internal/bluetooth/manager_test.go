package bluetooth

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

const devPath = dbus.ObjectPath("/org/bluez/hci0/dev_00_11_22_33_44_55")

func device(connected bool, uuids ...string) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Connected": dbus.MakeVariant(connected),
		"UUIDs":     dbus.MakeVariant(uuids),
		"Alias":     dbus.MakeVariant("Headset"),
	}
}

func transport(dev dbus.ObjectPath, uuid, state string) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Device": dbus.MakeVariant(dev),
		"UUID":   dbus.MakeVariant(uuid),
		"State":  dbus.MakeVariant(state),
	}
}

func TestParseManagedObjects(t *testing.T) {
	const a2dp = "0000110b-0000-1000-8000-00805f9b34fb"

	tests := []struct {
		name      string
		objects   ManagedObjects
		available bool
		profile   string
		transport string
	}{
		{
			name:    "empty",
			objects: ManagedObjects{},
		},
		{
			name: "disconnected device",
			objects: ManagedObjects{
				devPath: {deviceIface: device(false, UUIDHandsfree)},
			},
		},
		{
			name: "music only device",
			objects: ManagedObjects{
				devPath: {deviceIface: device(true, a2dp)},
			},
		},
		{
			name: "handsfree preferred over headset",
			objects: ManagedObjects{
				devPath: {deviceIface: device(true, UUIDHeadset, a2dp, UUIDHandsfree)},
			},
			available: true,
			profile:   UUIDHandsfree,
		},
		{
			name: "upper case uuid",
			objects: ManagedObjects{
				devPath: {deviceIface: device(true, "00001108-0000-1000-8000-00805F9B34FB")},
			},
			available: true,
			profile:   UUIDHeadset,
		},
		{
			name: "active voice transport",
			objects: ManagedObjects{
				devPath:          {deviceIface: device(true, UUIDHandsfree)},
				devPath + "/fd0": {transportIface: transport(devPath, UUIDHandsfree, "active")},
			},
			available: true,
			profile:   UUIDHandsfree,
			transport: "active",
		},
		{
			name: "music transport ignored",
			objects: ManagedObjects{
				devPath:          {deviceIface: device(true, UUIDHandsfree)},
				devPath + "/fd0": {transportIface: transport(devPath, a2dp, "active")},
			},
			available: true,
			profile:   UUIDHandsfree,
		},
		{
			name: "transport of another device ignored",
			objects: ManagedObjects{
				devPath:     {deviceIface: device(true, UUIDHandsfree)},
				"/other/fd": {transportIface: transport("/org/bluez/hci0/dev_other", UUIDHandsfree, "pending")},
			},
			available: true,
			profile:   UUIDHandsfree,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ParseManagedObjects(tt.objects)
			if snap.Available() != tt.available {
				t.Errorf("Available() = %t, want %t", snap.Available(), tt.available)
			}
			if snap.Profile != tt.profile {
				t.Errorf("Profile = %q, want %q", snap.Profile, tt.profile)
			}
			if snap.Transport != tt.transport {
				t.Errorf("Transport = %q, want %q", snap.Transport, tt.transport)
			}
		})
	}
}

func TestParseManagedObjectsStableChoice(t *testing.T) {
	second := dbus.ObjectPath("/org/bluez/hci0/dev_99")
	objects := ManagedObjects{
		second:  {deviceIface: device(true, UUIDHandsfree)},
		devPath: {deviceIface: device(true, UUIDHandsfree)},
	}
	for i := 0; i < 10; i++ {
		if got := ParseManagedObjects(objects).Device; got != devPath {
			t.Fatalf("Device = %s, want %s", got, devPath)
		}
	}
}

func newTestManager() (*Manager, *time.Time) {
	now := time.Unix(1000, 0)
	m := &Manager{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     func() time.Time { return now },
		settled: make(chan struct{}, 1),
	}
	return m, &now
}

func TestPendingState(t *testing.T) {
	m, now := newTestManager()

	if m.IsBluetoothAvailable() || m.IsBluetoothAudioConnectedOrPending() {
		t.Fatal("empty manager should report nothing")
	}

	if !m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree}) {
		t.Error("first snapshot should be a change")
	}
	if m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree}) {
		t.Error("identical snapshot should not be a change")
	}
	if !m.IsBluetoothAvailable() || m.IsBluetoothAudioConnected() {
		t.Error("device available without audio expected")
	}

	// A requested connect counts as pending until it times out.
	m.pendingSince = *now
	if !m.IsBluetoothAudioConnectedOrPending() {
		t.Error("requested connect should be pending")
	}
	*now = now.Add(pendingTimeout + time.Second)
	if m.IsBluetoothAudioConnectedOrPending() {
		t.Error("pending should expire")
	}

	// BlueZ reporting a pending transport counts as well.
	m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree, Transport: "pending"})
	if !m.IsBluetoothAudioConnectedOrPending() {
		t.Error("pending transport should count")
	}

	m.pendingSince = *now
	m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree, Transport: "active"})
	if !m.IsBluetoothAudioConnected() {
		t.Error("active transport should be connected")
	}
	if !m.pendingSince.IsZero() {
		t.Error("an active transport settles the requested connect")
	}

	// Losing the device clears everything.
	m.pendingSince = *now
	m.update(Snapshot{})
	if m.IsBluetoothAvailable() || m.IsBluetoothAudioConnectedOrPending() {
		t.Error("device gone: nothing should be reported")
	}
}

func TestConnectAudioWithoutDevice(t *testing.T) {
	m, _ := newTestManager()
	if err := m.ConnectAudio(); err == nil {
		t.Error("ConnectAudio without a device should fail")
	}
	if err := m.DisconnectAudio(); err != nil {
		t.Errorf("DisconnectAudio without a device = %v, want nil", err)
	}
}

func TestProfileReplyFailureClearsPending(t *testing.T) {
	m, now := newTestManager()
	m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree})
	m.pendingSince = *now

	done := make(chan *dbus.Call, 1)
	done <- &dbus.Call{Err: errors.New("br-connection-profile-unavailable")}
	m.awaitReply("connect profile", done)

	if m.IsBluetoothAudioConnectedOrPending() {
		t.Error("a failed connect should not stay pending")
	}
	select {
	case <-m.settled:
	default:
		t.Error("a failed connect should wake the watcher")
	}
}

func TestProfileReplySuccessKeepsPending(t *testing.T) {
	m, now := newTestManager()
	m.update(Snapshot{Device: devPath, Profile: UUIDHandsfree})
	m.pendingSince = *now

	done := make(chan *dbus.Call, 1)
	done <- &dbus.Call{}
	m.awaitReply("connect profile", done)

	if !m.IsBluetoothAudioConnectedOrPending() {
		t.Error("connect stays pending until BlueZ reports the transport")
	}
	select {
	case <-m.settled:
		t.Error("success should not wake the watcher")
	default:
	}
}
