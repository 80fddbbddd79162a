//go:build linux

package headset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux input switch codes (linux/input-event-codes.h).
const (
	evSW = 0x05

	swHeadphoneInsert  = 0x02
	swMicrophoneInsert = 0x04
	swLineoutInsert    = 0x06
	swJackPhysical     = 0x07

	swBitmapLen = 8
	pollTimeout = 200 // ms
)

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = int(unsafe.Sizeof(inputEvent{}))

// eviocgsw builds EVIOCGSW(len): _IOC(_IOC_READ, 'E', 0x1b, len).
func eviocgsw(size int) uintptr {
	const iocRead = 2
	return uintptr(iocRead)<<30 | uintptr(size)<<16 | uintptr('E')<<8 | 0x1b
}

// isJackSwitch reports whether code is one of the switches meaning a plug is in.
func isJackSwitch(code uint16) bool {
	for _, c := range jackSwitches {
		if c == code {
			return true
		}
	}
	return false
}

var jackSwitches = []uint16{swHeadphoneInsert, swMicrophoneInsert, swLineoutInsert, swJackPhysical}

// switchOn reads one switch from an EVIOCGSW bitmap.
func switchOn(bits []byte, code uint16) bool {
	return int(code/8) < len(bits) && bits[code/8]&(1<<(code%8)) != 0
}

// InputDetector follows the jack switches of a Linux input device, as exposed
// by ALSA SoC jack drivers ("Headset Jack" event devices).
type InputDetector struct {
	path string
	fd   int
	log  *slog.Logger

	mu       sync.Mutex
	switches map[uint16]bool
}

// NewInputDetector opens the event device and reads the current switch state.
func NewInputDetector(path string, log *slog.Logger) (*InputDetector, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("headset: open %s: %w", path, err)
	}
	bits := make([]byte, swBitmapLen)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgsw(len(bits)), uintptr(unsafe.Pointer(&bits[0]))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("headset: EVIOCGSW %s: %w", path, errno)
	}
	d := &InputDetector{path: path, fd: fd, log: log, switches: make(map[uint16]bool)}
	for _, code := range jackSwitches {
		d.switches[code] = switchOn(bits, code)
	}
	return d, nil
}

func (d *InputDetector) pluggedLocked() bool {
	for _, on := range d.switches {
		if on {
			return true
		}
	}
	return false
}

func (d *InputDetector) PluggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pluggedLocked()
}

// Watch reads switch events from the device.
func (d *InputDetector) Watch(ctx context.Context, onChange func(bool)) error {
	buf := make([]byte, inputEventSize*16)
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("headset: poll %s: %w", d.path, err)
		}
		if n == 0 {
			continue
		}
		n, err = unix.Read(d.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("headset: read %s: %w", d.path, err)
		}
		d.handle(buf[:n], onChange)
	}
}

func (d *InputDetector) handle(data []byte, onChange func(bool)) {
	d.mu.Lock()
	before := d.pluggedLocked()
	for off := 0; off+inputEventSize <= len(data); off += inputEventSize {
		ev := decodeInputEvent(data[off : off+inputEventSize])
		if ev.Type == evSW && isJackSwitch(ev.Code) {
			d.switches[ev.Code] = ev.Value != 0
		}
	}
	after := d.pluggedLocked()
	d.mu.Unlock()

	if after != before {
		d.log.Info("headset: wired headset changed", "plugged_in", after, "source", d.path)
		onChange(after)
	}
}

// decodeInputEvent reads the type, code and value that follow the timestamp.
func decodeInputEvent(b []byte) inputEvent {
	off := int(unsafe.Sizeof(unix.Timeval{}))
	return inputEvent{
		Type:  binary.NativeEndian.Uint16(b[off:]),
		Code:  binary.NativeEndian.Uint16(b[off+2:]),
		Value: int32(binary.NativeEndian.Uint32(b[off+4:])),
	}
}

func (d *InputDetector) Close() error {
	return unix.Close(d.fd)
}
