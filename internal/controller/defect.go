package controller

import (
	"context"
	"log/slog"

	"github.com/micro-nova/callaudio-go/internal/metrics"
)

// LevelDefect is the slog level for logic defects: conditions that should be
// impossible and are recovered from with a safe default. The daemon renders it
// as FATAL, but nothing exits.
const LevelDefect = slog.Level(12)

// logDefect records a recovered defect.
func logDefect(log *slog.Logger, m *metrics.Metrics, msg string, args ...any) {
	log.Log(context.Background(), LevelDefect, msg, args...)
	m.Defect()
}
