package audit

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackstackhq/trackstack/pkg/observability"
)

// SecurityLogger writes high-signal security events to a dedicated logrus
// channel, separate from the operational log, so failed master escalation
// attempts survive log-level filtering and can feed alerting.
type SecurityLogger struct {
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewSecurityLogger creates a security logger writing JSON to out.
// metrics may be nil.
func NewSecurityLogger(out io.Writer, metrics *observability.Metrics) *SecurityLogger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetLevel(logrus.WarnLevel)
	return &SecurityLogger{log: log, metrics: metrics}
}

// MasterLoginFailure records a failed master escalation attempt.
func (s *SecurityLogger) MasterLoginFailure(ip string, at time.Time) {
	if s.metrics != nil {
		s.metrics.MasterLoginFailures.Inc()
	}
	s.log.WithFields(logrus.Fields{
		"event":     "master_login_failure",
		"ip":        ip,
		"timestamp": at.UTC().Format(time.RFC3339Nano),
	}).Warn("failed master credentials attempt")
}
