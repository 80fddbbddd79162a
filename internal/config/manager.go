package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// ApplyFunc pushes settings to a running component.
type ApplyFunc func(ctx context.Context, s models.Settings) error

// Manager holds the current settings, persists changes through a Store and
// pushes them to the components registered with OnChange.
type Manager struct {
	store Store
	log   *slog.Logger

	mu       sync.Mutex
	current  models.Settings
	appliers []ApplyFunc
}

// NewManager loads the settings from store.
func NewManager(store Store, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("config: load settings: %w", err)
	}
	log.Info("config: settings loaded", "path", store.Path(),
		"speed_up_audio_on_mt_calls", s.SpeedUpAudioOnMTCalls, "modem_mute", s.ModemMute)
	return &Manager{store: store, log: log, current: *s}, nil
}

// Get returns the current settings.
func (m *Manager) Get() models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers fn to be called with the new settings after each update.
func (m *Manager) OnChange(fn ApplyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appliers = append(m.appliers, fn)
}

// Update validates and applies a partial settings change.
func (m *Manager) Update(ctx context.Context, upd models.SettingsUpdate) (models.Settings, *models.AppError) {
	m.mu.Lock()
	next := m.current.Apply(upd)
	if err := validate(next); err != nil {
		m.mu.Unlock()
		return m.Get(), err
	}
	m.current = next
	appliers := append([]ApplyFunc(nil), m.appliers...)
	m.mu.Unlock()

	if err := m.store.Save(&next); err != nil {
		m.log.Warn("config: failed to save settings", "err", err)
		return next, models.ErrInternal("save settings: " + err.Error())
	}
	for _, fn := range appliers {
		if err := fn(ctx, next); err != nil {
			m.log.Warn("config: failed to apply settings", "err", err)
			return next, models.ErrUnavailable("apply settings: " + err.Error())
		}
	}
	m.log.Info("config: settings updated",
		"speed_up_audio_on_mt_calls", next.SpeedUpAudioOnMTCalls, "modem_mute", next.ModemMute)
	return next, nil
}

func validate(s models.Settings) *models.AppError {
	ports := []struct{ name, value string }{
		{"speaker_port", s.SpeakerPort},
		{"earpiece_port", s.EarpiecePort},
		{"headset_port", s.HeadsetPort},
	}
	for _, p := range ports {
		if strings.TrimSpace(p.value) == "" {
			return models.ErrBadRequest(p.name + " must not be empty")
		}
	}
	return nil
}
