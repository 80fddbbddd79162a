// Package headset detects whether a wired headset is plugged into the jack.
//
// Three sources are supported: an h2w-style switch state file, a jack-detect
// GPIO line and a Linux input device reporting jack switches.
package headset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Detector reports the wired headset state.
type Detector interface {
	// PluggedIn returns the last known state.
	PluggedIn() bool
	// Watch calls onChange on every state change until ctx is cancelled.
	Watch(ctx context.Context, onChange func(pluggedIn bool)) error
	Close() error
}

// Open creates a detector from a --headset flag value:
//
//	none                   no jack, always unplugged
//	file:<path>            switch state file (0 = unplugged)
//	gpio:<pin>             jack-detect line, high = plugged
//	gpio:!<pin>            jack-detect line, low = plugged
//	input:<device>         input device with headphone/microphone switches
func Open(spec string, log *slog.Logger) (Detector, error) {
	if log == nil {
		log = slog.Default()
	}
	kind, arg, _ := strings.Cut(spec, ":")
	switch kind {
	case "", "none":
		return None{}, nil
	case "file":
		d, err := NewFileDetector(arg, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "gpio":
		activeLow := strings.HasPrefix(arg, "!")
		d, err := NewGPIODetector(strings.TrimPrefix(arg, "!"), activeLow, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "input":
		d, err := NewInputDetector(arg, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("headset: unknown detector %q", spec)
}

// None is a Detector for hardware without a headset jack.
type None struct{}

func (None) PluggedIn() bool { return false }

func (None) Watch(ctx context.Context, _ func(bool)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (None) Close() error { return nil }
