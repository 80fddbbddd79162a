package hardware

import "time"

// SetModemReplyTimeout shortens the command deadline in tests.
func SetModemReplyTimeout(m *Modem, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}
