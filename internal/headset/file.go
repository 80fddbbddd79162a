package headset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSwitchPath is where Android-style kernels expose the jack switch.
const DefaultSwitchPath = "/sys/class/switch/h2w/state"

// filePollInterval backs up fsnotify, which sysfs attributes do not feed.
const filePollInterval = time.Second

// FileDetector reads the headset state from a switch state file. The file
// holds a number: 0 is unplugged, 1 a headset with microphone, 2 headphones.
type FileDetector struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	plugged bool
	watcher *fsnotify.Watcher
}

// NewFileDetector reads the initial state from path.
func NewFileDetector(path string, log *slog.Logger) (*FileDetector, error) {
	if path == "" {
		path = DefaultSwitchPath
	}
	if log == nil {
		log = slog.Default()
	}
	d := &FileDetector{path: path, log: log}
	plugged, err := d.read()
	if err != nil {
		return nil, err
	}
	d.plugged = plugged
	return d, nil
}

// ParseSwitchState decodes the contents of a switch state file.
func ParseSwitchState(data []byte) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, fmt.Errorf("headset: bad switch state %q: %w", strings.TrimSpace(string(data)), err)
	}
	return n != 0, nil
}

func (d *FileDetector) read() (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, fmt.Errorf("headset: read %s: %w", d.path, err)
	}
	return ParseSwitchState(data)
}

func (d *FileDetector) PluggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plugged
}

// Watch re-reads the file on fsnotify events for it and on a slow poll.
func (d *FileDetector) Watch(ctx context.Context, onChange func(bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("headset: could not create fsnotify watcher, polling only", "err", err)
	} else {
		if err := watcher.Add(filepath.Dir(d.path)); err != nil {
			d.log.Warn("headset: could not watch switch dir", "path", d.path, "err", err)
		}
		d.mu.Lock()
		d.watcher = watcher
		d.mu.Unlock()
		defer watcher.Close()
	}

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Name == d.path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				d.check(onChange)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.log.Warn("headset: watcher error", "err", err)
		case <-ticker.C:
			d.check(onChange)
		}
	}
}

func (d *FileDetector) check(onChange func(bool)) {
	plugged, err := d.read()
	if err != nil {
		d.log.Debug("headset: read failed", "err", err)
		return
	}
	d.mu.Lock()
	changed := plugged != d.plugged
	d.plugged = plugged
	d.mu.Unlock()
	if changed {
		d.log.Info("headset: wired headset changed", "plugged_in", plugged, "source", d.path)
		onChange(plugged)
	}
}

func (d *FileDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}
