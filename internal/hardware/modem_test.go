package hardware_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/micro-nova/callaudio-go/internal/hardware"
)

// fakePort hands out one canned chunk per read and io.EOF once they run out.
type fakePort struct {
	written bytes.Buffer
	replies []string
	closed  bool
}

func newFakePort(replies ...string) *fakePort {
	return &fakePort{replies: replies}
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.replies) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.replies[0])
	p.replies = p.replies[1:]
	return n, nil
}

// silentPort behaves like a serial port whose read timeout keeps expiring.
type silentPort struct{}

func (silentPort) Write(b []byte) (int, error) { return len(b), nil }
func (silentPort) Close() error                { return nil }

func (silentPort) Read([]byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

// stalePort holds a late reply to an earlier command until its input buffer
// is reset.
type stalePort struct {
	fakePort
	stale  []string
	resets int
}

func (p *stalePort) ResetInputBuffer() error {
	p.resets++
	p.stale = nil
	return nil
}

func (p *stalePort) Read(b []byte) (int, error) {
	if len(p.stale) > 0 {
		n := copy(b, p.stale[0])
		p.stale = p.stale[1:]
		return n, nil
	}
	return p.fakePort.Read(b)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestModemMirrorsMute(t *testing.T) {
	port := newFakePort("AT+CMUT=1\r\n", "OK\r\n", "\r\nOK\r\n")
	inner := hardware.NewMock()
	m := hardware.NewModem(inner, port, quietLogger())

	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatalf("SetMicrophoneMute(true): %v", err)
	}
	if err := m.SetMicrophoneMute(false); err != nil {
		t.Fatalf("SetMicrophoneMute(false): %v", err)
	}
	if got, want := port.written.String(), "AT+CMUT=1\rAT+CMUT=0\r"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
	if inner.IsMicrophoneMuted() {
		t.Error("inner control should end unmuted")
	}
}

func TestModemErrorDoesNotFailMute(t *testing.T) {
	port := newFakePort("+CME ERROR: 3\r\n")
	inner := hardware.NewMock()
	m := hardware.NewModem(inner, port, quietLogger())

	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatalf("modem error should not fail the mute: %v", err)
	}
	if !inner.IsMicrophoneMuted() {
		t.Error("inner control not muted")
	}
}

func TestModemNoReply(t *testing.T) {
	inner := hardware.NewMock()
	m := hardware.NewModem(inner, newFakePort(), quietLogger())
	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatalf("missing reply should not fail the mute: %v", err)
	}
}

func TestModemInnerFailure(t *testing.T) {
	port := newFakePort("OK\r\n")
	inner := hardware.NewMock()
	inner.SetFailWrite(true)
	m := hardware.NewModem(inner, port, quietLogger())

	if err := m.SetMicrophoneMute(true); err == nil {
		t.Fatal("inner failure must be returned")
	}
	if port.written.Len() != 0 {
		t.Errorf("modem written %q after inner failure", port.written.String())
	}
}

func TestModemDisabled(t *testing.T) {
	port := newFakePort("OK\r\n")
	m := hardware.NewModem(hardware.NewMock(), port, quietLogger())
	m.SetEnabled(false)

	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatal(err)
	}
	if port.written.Len() != 0 {
		t.Errorf("disabled mirror wrote %q", port.written.String())
	}
	if err := m.Close(); err != nil || !port.closed {
		t.Errorf("Close() = %v, closed = %t", err, port.closed)
	}
}

func TestModemName(t *testing.T) {
	m := hardware.NewModem(hardware.NewMock(), newFakePort(), nil)
	if m.Name() != "mock+modem" {
		t.Errorf("Name() = %q", m.Name())
	}
}

func TestModemSilentPortIsBounded(t *testing.T) {
	port := &silentPort{}
	inner := hardware.NewMock()
	m := hardware.NewModem(inner, port, quietLogger())
	hardware.SetModemReplyTimeout(m, 100*time.Millisecond)

	start := time.Now()
	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatalf("silent modem should not fail the mute: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SetMicrophoneMute took %s with a 100ms reply timeout", elapsed)
	}
	if !inner.IsMicrophoneMuted() {
		t.Error("inner control not muted")
	}
}

func TestModemDropsStaleReply(t *testing.T) {
	port := &stalePort{
		fakePort: fakePort{replies: []string{"+CME ERROR: 100\r\n"}},
		stale:    []string{"OK\r\n"},
	}
	m := hardware.NewModem(hardware.NewMock(), port, quietLogger())

	if err := m.SetMicrophoneMute(true); err != nil {
		t.Fatal(err)
	}
	if port.resets != 1 {
		t.Errorf("input resets = %d, want 1", port.resets)
	}
	if len(port.replies) != 0 {
		t.Error("the reply to this command was not read")
	}
}
