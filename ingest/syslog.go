package ingest

import (
	"vigil/config"

	"go.uber.org/zap"
)

// SyslogListener receives syslog messages over UDP and TCP on one port.
// Both transports feed the same classifier cascade; content is never
// trusted to match any particular format.
type SyslogListener struct {
	*BaseListener
}

// NewSyslogListener creates a new syslog listener from configuration.
func NewSyslogListener(cfg *config.Config, ingestor *Ingestor, logger *zap.SugaredLogger) *SyslogListener {
	return &SyslogListener{
		BaseListener: NewBaseListener(
			cfg.Listeners.Syslog.Host,
			cfg.Listeners.Syslog.Port,
			cfg.Listeners.RateLimit,
			cfg.Listeners.MaxTCPConnections,
			cfg.Listeners.MaxConnectionsPerIP,
			ingestor,
			logger,
		),
	}
}

// Start starts the syslog listener on TCP and UDP.
func (s *SyslogListener) Start() error {
	go s.BaseListener.StartTCP("Syslog")
	go s.BaseListener.StartUDP("Syslog")
	return nil
}

// Stop stops the listener.
func (s *SyslogListener) Stop() {
	s.BaseListener.Stop()
}
