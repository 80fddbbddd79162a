package hardware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	modemBaudRate = 115200

	// modemReplyTimeout bounds a whole command. modemReadPoll is the serial
	// read timeout, so a silent modem is noticed between polls.
	modemReplyTimeout = 2 * time.Second
	modemReadPoll     = 200 * time.Millisecond
)

// ModemPort is the AT command channel to a cellular modem. A read that times
// out returns 0, nil.
type ModemPort interface {
	io.ReadWriteCloser
}

// inputResetter is implemented by serial ports that can drop unread input.
type inputResetter interface {
	ResetInputBuffer() error
}

// OpenModemPort opens the modem's AT command tty.
func OpenModemPort(dev string) (ModemPort, error) {
	port, err := serial.Open(dev, &serial.Mode{
		BaudRate: modemBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", dev, err)
	}
	if err := port.SetReadTimeout(modemReadPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem: set read timeout: %w", err)
	}
	return port, nil
}

// Modem wraps a Control and mirrors microphone mute onto the modem uplink
// with AT+CMUT. The mirror is best effort: a modem failure is logged and
// does not fail the mute, because the local capture path is already muted.
type Modem struct {
	Control

	mu      sync.Mutex
	port    ModemPort
	enabled bool
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewModem decorates inner with the modem mute mirror.
func NewModem(inner Control, port ModemPort, log *slog.Logger) *Modem {
	if log == nil {
		log = slog.Default()
	}
	return &Modem{
		Control: inner,
		port:    port,
		enabled: true,
		timeout: modemReplyTimeout,
		now:     time.Now,
		log:     log,
	}
}

// SetEnabled turns the mirror on or off (settings.modem_mute).
func (m *Modem) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

func (m *Modem) Name() string { return m.Control.Name() + "+modem" }

func (m *Modem) SetMicrophoneMute(muted bool) error {
	if err := m.Control.SetMicrophoneMute(muted); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return nil
	}
	cmd := "AT+CMUT=0"
	if muted {
		cmd = "AT+CMUT=1"
	}
	if err := m.command(cmd); err != nil {
		m.log.Warn("modem: uplink mute failed", "cmd", cmd, "err", err)
	}
	return nil
}

// command sends one AT command and waits for its final result code. The
// whole exchange is bounded by m.timeout; input left over from an earlier
// command that timed out is discarded first.
func (m *Modem) command(cmd string) error {
	if r, ok := m.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			m.log.Debug("modem: reset input failed", "err", err)
		}
	}
	if _, err := io.WriteString(m.port, cmd+"\r"); err != nil {
		return fmt.Errorf("modem: write: %w", err)
	}

	deadline := m.now().Add(m.timeout)
	buf := make([]byte, 128)
	var pending []byte
	for {
		n, err := m.port.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(string(pending[:i]))
			pending = pending[i+1:]
			switch {
			case line == "OK":
				m.log.Debug("modem: command ok", "cmd", cmd)
				return nil
			case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"):
				return fmt.Errorf("modem: %s: %s", cmd, line)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("modem: %s: no reply", cmd)
			}
			return fmt.Errorf("modem: read: %w", err)
		}
		if !m.now().Before(deadline) {
			return fmt.Errorf("modem: %s: no reply within %s", cmd, m.timeout)
		}
	}
}

// Close closes the modem port.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}

var _ Control = (*Modem)(nil)
