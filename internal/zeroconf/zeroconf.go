// Package zeroconf advertises the control API over mDNS/DNS-SD as
// _callaudio._tcp so local clients can find the daemon.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type of the control API.
const ServiceType = "_callaudio._tcp"

// Service manages the mDNS registration.
type Service struct {
	name string
	port int
	txt  []string
	log  *slog.Logger
}

// New creates a Service advertising instance name on port.
func New(name string, port int, txt []string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{name: name, port: port, txt: txt, log: log}
}

// Start registers the service and blocks until ctx is cancelled, then
// unregisters it.
func (s *Service) Start(ctx context.Context) error {
	if s.port <= 0 || s.port > 65535 {
		return fmt.Errorf("zeroconf: invalid port %d", s.port)
	}
	server, err := zeroconf.Register(s.name, ServiceType, "local.", s.port, s.txt, nil)
	if err != nil {
		return fmt.Errorf("zeroconf: register: %w", err)
	}
	s.log.Info("zeroconf: registered mDNS service",
		"name", s.name, "type", ServiceType, "port", s.port, "txt", s.txt)

	<-ctx.Done()

	server.Shutdown()
	s.log.Info("zeroconf: mDNS service unregistered")
	return nil
}
