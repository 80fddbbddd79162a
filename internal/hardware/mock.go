package hardware

import (
	"fmt"
	"sync"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// Mock is a thread-safe in-memory Control for tests and development. Every
// state-changing call is recorded in order and can be read back with Ops.
type Mock struct {
	mu        sync.Mutex
	muted     bool
	speaker   bool
	mode      models.Mode
	stream    models.FocusStream
	btAudio   bool
	ops       []string
	failWrite bool
}

// NewMock creates a mock in the platform's idle state (normal mode, no focus).
func NewMock() *Mock {
	return &Mock{mode: models.ModeNormal}
}

// SetFailWrite configures the mock to fail all state-changing calls. The
// call is still recorded.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// SetMicrophoneMutedState changes the reported mute flag without recording an
// operation, as if another process had touched the mixer.
func (m *Mock) SetMicrophoneMutedState(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *Mock) record(format string, args ...any) error {
	m.ops = append(m.ops, fmt.Sprintf(format, args...))
	if m.failWrite {
		return ErrHardware("mock: write failure configured")
	}
	return nil
}

func (m *Mock) SetMicrophoneMute(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mute=%t", muted); err != nil {
		return err
	}
	m.muted = muted
	return nil
}

func (m *Mock) IsMicrophoneMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Mock) SetSpeakerphoneOn(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("speaker=%t", on); err != nil {
		return err
	}
	m.speaker = on
	return nil
}

func (m *Mock) IsSpeakerphoneOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaker
}

func (m *Mock) RequestFocus(stream models.FocusStream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("focus=%s", stream); err != nil {
		return err
	}
	m.stream = stream
	return nil
}

func (m *Mock) AbandonFocus() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("abandon"); err != nil {
		return err
	}
	m.stream = models.StreamNone
	return nil
}

func (m *Mock) SetMode(mode models.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mode=%s", mode); err != nil {
		return err
	}
	m.mode = mode
	return nil
}

func (m *Mock) Mode() models.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Mock) ConnectBluetoothAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("bt=connect"); err != nil {
		return err
	}
	m.btAudio = true
	return nil
}

func (m *Mock) DisconnectBluetoothAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("bt=disconnect"); err != nil {
		return err
	}
	m.btAudio = false
	return nil
}

func (m *Mock) Name() string { return "mock" }

// FocusStream returns the focus stream last requested.
func (m *Mock) FocusStream() models.FocusStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// BluetoothAudioRequested reports whether the last bluetooth request was a connect.
func (m *Mock) BluetoothAudioRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.btAudio
}

// Ops returns a copy of the recorded operations.
func (m *Mock) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ops))
	copy(out, m.ops)
	return out
}

// ResetOps clears the operation log.
func (m *Mock) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

var _ Control = (*Mock)(nil)
