package engine

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for outbound notifications. Payloads are JSON encodings of the
// record that changed.
const (
	SubjectPatternDetected = "insightd.pattern.detected"
	SubjectScoreUpdated    = "insightd.score.updated"
	SubjectContextDetected = "insightd.context.detected"
)

// Publisher sends outbound notifications. Implementations must tolerate
// publish failures without affecting the pipeline: notifications are
// best-effort.
type Publisher interface {
	Publish(subject string, payload any) error
	Close()
}

// NATSPublisher publishes notifications to a NATS server.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to the given NATS URL.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url, nats.Name("insightd"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", url))
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// Publish encodes the payload as JSON and publishes it.
func (p *NATSPublisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// publish is the engine-side wrapper: nil publisher means notifications are
// disabled, and failures are logged and counted but never propagated.
func (s *Service) publish(subject string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, payload); err != nil {
		EventsPublished.WithLabelValues(subject, "error").Inc()
		s.logger.Warn("event publish failed",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	EventsPublished.WithLabelValues(subject, "success").Inc()
}
