package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"golang.org/x/time/rate"

	"github.com/micro-nova/callaudio-go/internal/models"
)

const (
	pulseRequestTimeout = 2 * time.Second
	pulseOpsPerSec      = 20

	// PulseAudio port availability: unknown=0, no=1, yes=2.
	portAvailableYes = 2
)

// SinkPort is one output port of a sink.
type SinkPort struct {
	Name      string
	Available bool
}

// pulseServer is the set of server requests the backend issues.
type pulseServer interface {
	Defaults() (sink, source string, err error)
	SourceMuted(source string) (bool, error)
	SetSourceMute(source string, muted bool) error
	SinkPorts(sink string) (active string, ports []SinkPort, err error)
	SetSinkPort(sink, port string) error
	Close()
}

// pulseClient implements pulseServer over the native protocol.
type pulseClient struct {
	c *pulse.Client
}

func (p pulseClient) Defaults() (string, string, error) {
	var info proto.GetServerInfoReply
	if err := p.c.RawRequest(&proto.GetServerInfo{}, &info); err != nil {
		return "", "", err
	}
	return info.DefaultSinkName, info.DefaultSourceName, nil
}

func (p pulseClient) SourceMuted(source string) (bool, error) {
	var rpl proto.GetSourceInfoReply
	err := p.c.RawRequest(&proto.GetSourceInfo{SourceIndex: proto.Undefined, SourceName: source}, &rpl)
	return rpl.Mute, err
}

func (p pulseClient) SetSourceMute(source string, muted bool) error {
	return p.c.RawRequest(&proto.SetSourceMute{SourceIndex: proto.Undefined, SourceName: source, Mute: muted}, nil)
}

func (p pulseClient) SinkPorts(sink string) (string, []SinkPort, error) {
	var rpl proto.GetSinkInfoReply
	if err := p.c.RawRequest(&proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: sink}, &rpl); err != nil {
		return "", nil, err
	}
	ports := make([]SinkPort, 0, len(rpl.Ports))
	for _, port := range rpl.Ports {
		ports = append(ports, SinkPort{Name: port.Name, Available: port.Available == portAvailableYes})
	}
	return rpl.ActivePortName, ports, nil
}

func (p pulseClient) SetSinkPort(sink, port string) error {
	return p.c.RawRequest(&proto.SetSinkPort{SinkIndex: proto.Undefined, SinkName: sink, Port: port}, nil)
}

func (p pulseClient) Close() { p.c.Close() }

// Pulse drives a PulseAudio server: microphone mute on the default source
// and route selection by switching the active port of the default sink.
//
// PulseAudio has no notion of audio focus or telephony modes, so those are
// tracked in software. Bluetooth voice links are delegated to a
// BluetoothLink.
type Pulse struct {
	srv     pulseServer
	bt      BluetoothLink
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	ports   models.Settings
	sink    string
	source  string
	muted   bool
	speaker bool
	stream  models.FocusStream
	mode    models.Mode
}

// NewPulse connects to the PulseAudio server of the current user.
func NewPulse(settings models.Settings, bt BluetoothLink, log *slog.Logger) (*Pulse, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("callaudiod"),
		pulse.ClientApplicationIconName("call-start"),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse: connect: %w", err)
	}
	p, err := newPulse(pulseClient{c: client}, settings, bt, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func newPulse(srv pulseServer, settings models.Settings, bt BluetoothLink, log *slog.Logger) (*Pulse, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Pulse{
		srv:     srv,
		bt:      bt,
		limiter: rate.NewLimiter(rate.Limit(pulseOpsPerSec), 5),
		log:     log,
		ports:   settings,
		mode:    models.ModeNormal,
	}

	sink, source, err := srv.Defaults()
	if err != nil {
		return nil, fmt.Errorf("pulse: server info: %w", err)
	}
	p.sink, p.source = sink, source

	if muted, err := srv.SourceMuted(source); err == nil {
		p.muted = muted
	} else {
		log.Warn("pulse: read source state", "source", source, "err", err)
	}
	if active, _, err := srv.SinkPorts(sink); err == nil {
		p.speaker = active == settings.SpeakerPort
	} else {
		log.Warn("pulse: read sink state", "sink", sink, "err", err)
	}

	log.Info("pulse: connected", "sink", sink, "source", source, "muted", p.muted, "speaker", p.speaker)
	return p, nil
}

// Close disconnects from the server.
func (p *Pulse) Close() { p.srv.Close() }

// SetPorts changes the sink port names used for each route. Takes effect on
// the next route change.
func (p *Pulse) SetPorts(settings models.Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ports = settings
}

func (p *Pulse) Name() string { return "pulse" }

func (p *Pulse) wait() error {
	ctx, cancel := context.WithTimeout(context.Background(), pulseRequestTimeout)
	defer cancel()
	if err := p.limiter.Wait(ctx); err != nil {
		return ErrHardware("pulse: rate limited: " + err.Error())
	}
	return nil
}

func (p *Pulse) SetMicrophoneMute(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.wait(); err != nil {
		return err
	}
	if err := p.srv.SetSourceMute(p.source, muted); err != nil {
		return ErrHardware(fmt.Sprintf("pulse: set mute on %s: %v", p.source, err))
	}
	p.muted = muted
	p.log.Debug("pulse: microphone mute", "source", p.source, "muted", muted)
	return nil
}

// IsMicrophoneMuted reads the source so that changes made by other clients
// are seen. The last known value is returned if the server cannot be reached.
func (p *Pulse) IsMicrophoneMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wait() != nil {
		return p.muted
	}
	if muted, err := p.srv.SourceMuted(p.source); err == nil {
		p.muted = muted
	}
	return p.muted
}

// SetSpeakerphoneOn switches the sink to the speaker port, or back to the
// headset port when the jack reports it available and the earpiece port
// otherwise.
func (p *Pulse) SetSpeakerphoneOn(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.wait(); err != nil {
		return err
	}
	active, ports, err := p.srv.SinkPorts(p.sink)
	if err != nil {
		return ErrHardware(fmt.Sprintf("pulse: read sink %s: %v", p.sink, err))
	}
	port := p.ports.SpeakerPort
	if !on {
		port = p.ports.EarpiecePort
		if hp, ok := findPort(ports, p.ports.HeadsetPort); ok && hp.Available {
			port = p.ports.HeadsetPort
		}
	}
	if _, ok := findPort(ports, port); !ok {
		return ErrHardware(fmt.Sprintf("pulse: sink %s has no port %q", p.sink, port))
	}

	if active != port {
		if err := p.wait(); err != nil {
			return err
		}
		if err := p.srv.SetSinkPort(p.sink, port); err != nil {
			return ErrHardware(fmt.Sprintf("pulse: set port %q on %s: %v", port, p.sink, err))
		}
	}
	p.speaker = on
	p.log.Info("pulse: sink port", "sink", p.sink, "port", port)
	return nil
}

func (p *Pulse) IsSpeakerphoneOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaker
}

func findPort(ports []SinkPort, name string) (SinkPort, bool) {
	for _, port := range ports {
		if port.Name == name {
			return port, true
		}
	}
	return SinkPort{}, false
}

func (p *Pulse) RequestFocus(stream models.FocusStream) error {
	if stream == models.StreamNone {
		return ErrHardware("pulse: focus requested for no stream")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = stream
	p.log.Debug("pulse: focus", "stream", stream)
	return nil
}

func (p *Pulse) AbandonFocus() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = models.StreamNone
	p.log.Debug("pulse: focus abandoned")
	return nil
}

// FocusStream returns the stream focus is held for.
func (p *Pulse) FocusStream() models.FocusStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

func (p *Pulse) SetMode(mode models.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
	p.log.Debug("pulse: mode", "mode", mode)
	return nil
}

func (p *Pulse) Mode() models.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *Pulse) ConnectBluetoothAudio() error {
	if p.bt == nil {
		return ErrHardware("pulse: no bluetooth link")
	}
	return p.bt.ConnectAudio()
}

func (p *Pulse) DisconnectBluetoothAudio() error {
	if p.bt == nil {
		return nil
	}
	return p.bt.DisconnectAudio()
}

var _ Control = (*Pulse)(nil)
