// Package events publishes fraud-alert audit records to Kafka for the
// downstream compliance pipeline.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers    []string
	AuditTopic string
}

// AuditEvent is the wire shape written to the audit topic.
type AuditEvent struct {
	EventType     string    `json:"event_type"`
	AlertID       string    `json:"alert_id"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AlertType     string    `json:"alert_type"`
	Severity      string    `json:"severity"`
	RiskScore     int       `json:"risk_score"`
	RiskFactors   []string  `json:"risk_factors"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// AuditProducer writes one audit event per created alert. Callers treat
// publish failures as best-effort; the durable alert record already
// exists by the time this runs.
type AuditProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewAuditProducer connects a synchronous Kafka producer
func NewAuditProducer(cfg Config, logger *zap.Logger) (*AuditProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &AuditProducer{
		producer: producer,
		topic:    cfg.AuditTopic,
		logger:   logger,
	}, nil
}

// RecordAlert publishes an audit event for a created alert
func (p *AuditProducer) RecordAlert(_ context.Context, a *alert.FraudAlert) error {
	event := AuditEvent{
		EventType:     "fraud_alert_created",
		AlertID:       a.ID.String(),
		UserID:        a.UserID,
		TransactionID: a.TransactionID,
		AlertType:     string(a.AlertType),
		Severity:      string(a.Severity),
		RiskScore:     a.RiskScore,
		RiskFactors:   a.RiskFactors,
		EmittedAt:     time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(a.UserID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send audit event: %w", err)
	}

	p.logger.Debug("audit event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close shuts the producer down
func (p *AuditProducer) Close() error {
	return p.producer.Close()
}
