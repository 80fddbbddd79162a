// Command callaudiod is the call audio routing daemon. It arbitrates audio
// focus between ringing, calls and tones, and routes call audio between
// earpiece, speaker, wired headset and bluetooth.
// Run with --backend=mock to use simulated hardware.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/micro-nova/callaudio-go/internal/api"
	"github.com/micro-nova/callaudio-go/internal/auth"
	"github.com/micro-nova/callaudio-go/internal/bluetooth"
	"github.com/micro-nova/callaudio-go/internal/calls"
	"github.com/micro-nova/callaudio-go/internal/config"
	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/devices"
	"github.com/micro-nova/callaudio-go/internal/events"
	"github.com/micro-nova/callaudio-go/internal/hardware"
	"github.com/micro-nova/callaudio-go/internal/headset"
	"github.com/micro-nova/callaudio-go/internal/identity"
	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
	"github.com/micro-nova/callaudio-go/internal/zeroconf"
)

func main() {
	var (
		mock        = flag.Bool("mock", false, "shorthand for --backend=mock")
		backend     = flag.String("backend", "pulse", "audio backend: pulse or mock")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		cfgDir      = flag.String("config-dir", "", "config directory (default: ~/.config/callaudio)")
		debug       = flag.Bool("debug", false, "enable debug logging")
		modemDev    = flag.String("modem", "", "modem AT command tty for uplink mute, e.g. /dev/ttyUSB2")
		headsetSpec = flag.String("headset", "file:"+headset.DefaultSwitchPath, "wired headset detector: none, file:<path>, gpio:<pin>, gpio:!<pin> or input:<device>")
		ampPin      = flag.String("speaker-amp-gpio", "", "GPIO enabling the speaker amplifier, e.g. GPIO17")
		noBluetooth = flag.Bool("no-bluetooth", false, "disable bluetooth headset support")
		noZeroconf  = flag.Bool("no-zeroconf", false, "disable mDNS advertisement")
	)
	flag.Parse()
	if *mock {
		*backend = "mock"
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= controller.LevelDefect {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	})))
	log := slog.Default()

	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgDir = filepath.Join(home, ".config", "callaudio")
	}
	if err := os.MkdirAll(*cfgDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", *cfgDir, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Settings
	store := config.NewJSONStore(*cfgDir)
	settings, err := config.NewManager(store, log)
	if err != nil {
		slog.Error("settings initialization failed", "err", err)
		os.Exit(1)
	}
	current := settings.Get()

	m := metrics.New()
	bus := events.NewBus()

	// Bluetooth
	var (
		btSource devices.Bluetooth
		btLink   hardware.BluetoothLink
	)
	if !*noBluetooth {
		btMgr, err := bluetooth.New(log)
		if err != nil {
			slog.Warn("bluetooth unavailable, continuing without it", "err", err)
		} else {
			defer btMgr.Close()
			btSource, btLink = btMgr, btMgr
		}
	}

	// Wired headset
	detector, err := headset.Open(*headsetSpec, log)
	if err != nil {
		slog.Warn("headset detector unavailable, assuming no headset", "spec", *headsetSpec, "err", err)
		detector = headset.None{}
	}
	defer detector.Close()
	monitor := devices.NewMonitor(detector, btSource, log)

	// Audio backend and decorators
	var (
		hw    hardware.Control
		pulse *hardware.Pulse
		modem *hardware.Modem
	)
	switch *backend {
	case "mock":
		slog.Info("using mock audio backend")
		hw = hardware.NewMock()
	case "pulse":
		pulse, err = hardware.NewPulse(current, btLink, log)
		if err != nil {
			slog.Error("pulse backend initialization failed", "err", err)
			os.Exit(1)
		}
		defer pulse.Close()
		hw = pulse
	default:
		slog.Error("unknown backend", "backend", *backend)
		os.Exit(1)
	}
	if *modemDev != "" {
		port, err := hardware.OpenModemPort(*modemDev)
		if err != nil {
			slog.Warn("modem unavailable, uplink mute disabled", "err", err)
		} else {
			modem = hardware.NewModem(hw, port, log)
			modem.SetEnabled(current.ModemMute)
			defer modem.Close()
			hw = modem
		}
	}
	if *ampPin != "" {
		pin, err := hardware.OpenAmpPin(*ampPin)
		if err != nil {
			slog.Error("speaker amplifier gpio unavailable", "err", err)
			os.Exit(1)
		}
		amp, err := hardware.NewAmp(hw, pin, log)
		if err != nil {
			slog.Error("speaker amplifier initialization failed", "err", err)
			os.Exit(1)
		}
		hw = amp
	}

	// Calls and routing
	registry := calls.NewRegistry(nil, log)
	ctrl := controller.New(controller.Options{
		Hardware:              hw,
		Devices:               monitor,
		Calls:                 registry,
		Emergency:             registry,
		Foreground:            registry,
		Publisher:             bus,
		Logger:                log,
		Metrics:               m,
		SpeedUpAudioOnMTCalls: current.SpeedUpAudioOnMTCalls,
	})
	registry.SetSink(ctrl)
	monitor.SetSink(ctrl)

	settings.OnChange(func(ctx context.Context, s models.Settings) error {
		_, err := ctrl.Submit(ctx, controller.SetSpeedUp{Enabled: s.SpeedUpAudioOnMTCalls})
		return err
	})
	if pulse != nil {
		settings.OnChange(func(_ context.Context, s models.Settings) error {
			pulse.SetPorts(s)
			return nil
		})
	}
	if modem != nil {
		settings.OnChange(func(_ context.Context, s models.Settings) error {
			modem.SetEnabled(s.ModemMute)
			return nil
		})
	}

	go func() {
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("routing controller stopped", "err", err)
		}
	}()
	go func() {
		if err := monitor.Run(ctx); err != nil {
			slog.Warn("device monitor stopped", "err", err)
		}
	}()

	// Auth service
	authSvc, err := auth.NewService(*cfgDir, log)
	if err != nil {
		slog.Error("auth service initialization failed", "err", err)
		os.Exit(1)
	}
	defer authSvc.Close()

	info := identity.Load(*cfgDir, hw.Name())

	// Zeroconf mDNS registration
	if !*noZeroconf {
		zc := zeroconf.New(info.Hostname, listenPort(*addr), identity.TXT(info), log)
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	// HTTP server
	router := api.NewRouter(api.Deps{
		Router:   ctrl,
		Calls:    registry,
		Settings: settings,
		Devices:  monitor,
		Events:   bus,
		Auth:     authSvc,
		Metrics:  m,
		Info:     info,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("callaudiod listening", "addr", *addr, "backend", hw.Name(), "config", *cfgDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()

	if err := store.Flush(); err != nil {
		slog.Warn("failed to flush settings", "err", err)
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}

// listenPort extracts the TCP port from a listen address, defaulting to 8080.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 8080
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 8080
	}
	return port
}
