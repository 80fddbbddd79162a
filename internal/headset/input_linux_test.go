//go:build linux

package headset

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func encodeEvent(typ, code uint16, value int32) []byte {
	b := make([]byte, inputEventSize)
	off := int(unsafe.Sizeof(unix.Timeval{}))
	binary.NativeEndian.PutUint16(b[off:], typ)
	binary.NativeEndian.PutUint16(b[off+2:], code)
	binary.NativeEndian.PutUint32(b[off+4:], uint32(value))
	return b
}

func TestEviocgsw(t *testing.T) {
	// EVIOCGSW(8) from linux/input.h.
	if got, want := eviocgsw(8), uintptr(0x8008451b); got != want {
		t.Errorf("eviocgsw(8) = %#x, want %#x", got, want)
	}
}

func TestSwitchOn(t *testing.T) {
	bits := []byte{1 << swHeadphoneInsert, 0}
	if !switchOn(bits, swHeadphoneInsert) {
		t.Error("headphone switch should be on")
	}
	if switchOn(bits, swMicrophoneInsert) {
		t.Error("microphone switch should be off")
	}
	if switchOn(bits, 0x40) {
		t.Error("out of range code should be off")
	}
}

func TestInputHandle(t *testing.T) {
	d := &InputDetector{
		path:     "test",
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		switches: make(map[uint16]bool),
	}
	var changes []bool
	record := func(p bool) { changes = append(changes, p) }

	// Headphones in, then the microphone contact: one change only.
	var data []byte
	data = append(data, encodeEvent(evSW, swHeadphoneInsert, 1)...)
	data = append(data, encodeEvent(0, 0, 0)...) // SYN_REPORT
	d.handle(data, record)
	d.handle(encodeEvent(evSW, swMicrophoneInsert, 1), record)

	// Key events are ignored.
	d.handle(encodeEvent(0x01, 0x72, 1), record)

	d.handle(append(encodeEvent(evSW, swHeadphoneInsert, 0), encodeEvent(evSW, swMicrophoneInsert, 0)...), record)

	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("changes = %v, want [true false]", changes)
	}
	if d.PluggedIn() {
		t.Error("should end unplugged")
	}
}
