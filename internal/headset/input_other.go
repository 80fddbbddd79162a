//go:build !linux

package headset

import (
	"context"
	"errors"
	"log/slog"
)

// InputDetector is only available on Linux.
type InputDetector struct{}

func NewInputDetector(path string, log *slog.Logger) (*InputDetector, error) {
	return nil, errors.New("headset: input devices are only supported on linux")
}

func (*InputDetector) PluggedIn() bool { return false }
func (*InputDetector) Watch(ctx context.Context, _ func(bool)) error {
	return errors.New("unsupported")
}
func (*InputDetector) Close() error { return nil }
