package config

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// legacySpeedUpKey is the key older builds wrote for the expedited audio flag.
const legacySpeedUpKey = "speed_up_mt_audio"

// migrateSettings fills in defaults for fields that may be missing or blank in
// older settings files and carries over renamed keys. raw is the decoded
// top-level object of the file.
func migrateSettings(s *models.Settings, raw map[string]json.RawMessage) {
	if _, ok := raw["speed_up_audio_on_mt_calls"]; !ok {
		if v, ok := raw[legacySpeedUpKey]; ok {
			var on bool
			if err := json.Unmarshal(v, &on); err == nil {
				slog.Info("config: migrating legacy speed-up key", "value", on)
				s.SpeedUpAudioOnMTCalls = on
			}
		}
	}

	def := models.DefaultSettings()
	fixPort := func(name string, port *string, fallback string) {
		if strings.TrimSpace(*port) == "" {
			slog.Warn("config: empty port name, using default", "port", name, "default", fallback)
			*port = fallback
		}
	}
	fixPort("speaker", &s.SpeakerPort, def.SpeakerPort)
	fixPort("earpiece", &s.EarpiecePort, def.EarpiecePort)
	fixPort("headset", &s.HeadsetPort, def.HeadsetPort)
}
