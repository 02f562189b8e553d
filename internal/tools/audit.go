package tools

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

// Audit event types.
const (
	AuditExecuted = "TOOL_AUDIT"
	AuditDenied   = "TOOL_DENIED"
)

// AuditEvent describes one policy decision or tool execution.
type AuditEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Tool           string         `json:"tool"`
	TenantID       string         `json:"tenantId"`
	UserID         string         `json:"userId"`
	ConversationID string         `json:"conversationId"`
	Success        bool           `json:"success"`
	Detail         string         `json:"detail"`
	Payload        map[string]any `json:"payload,omitempty"`
	Audited        bool           `json:"audited"`
	Timestamp      time.Time      `json:"timestamp"`
}

func NewAuditEvent(eventType, tool string, req model.ChatRequest, success bool, detail string, payload map[string]any, audited bool) AuditEvent {
	return AuditEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		Tool:           tool,
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Success:        success,
		Detail:         detail,
		Payload:        payload,
		Audited:        audited,
		Timestamp:      time.Now().UTC(),
	}
}

// AuditSink receives audit events. Errors are logged by the registry and
// never fail the tool call.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// LogAuditSink writes audit events to the service log.
type LogAuditSink struct {
	logger logging.Logger
}

func NewLogAuditSink(logger logging.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger}
}

func (s *LogAuditSink) Record(_ context.Context, event AuditEvent) error {
	entry := s.logger.WithFields(logging.Fields{
		"tenant_id":       event.TenantID,
		"user_id":         event.UserID,
		"conversation_id": event.ConversationID,
		"tool":            event.Tool,
		"success":         event.Success,
		"detail":          event.Detail,
	})
	switch {
	case event.Type == AuditDenied:
		entry.Warn(AuditDenied)
	case event.Audited:
		entry.WithField("payload", event.Payload).Info(AuditExecuted)
	default:
		entry.Debug("Tool executed")
	}
	return nil
}

// Publisher is the subset of the Kafka producer used for audit events.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

// KafkaAuditSink publishes audit events keyed by tenant. Only events that
// are audited or denied are published.
type KafkaAuditSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaAuditSink(publisher Publisher, topic string) *KafkaAuditSink {
	return &KafkaAuditSink{publisher: publisher, topic: topic}
}

func (s *KafkaAuditSink) Record(ctx context.Context, event AuditEvent) error {
	if !event.Audited && event.Type != AuditDenied {
		return nil
	}
	return s.publisher.PublishJSON(ctx, s.topic, event.TenantID, event, map[string]string{
		"event_type": event.Type,
		"tool":       event.Tool,
	})
}

// MultiAuditSink fans an event out to every sink and joins their errors.
type MultiAuditSink []AuditSink

func (m MultiAuditSink) Record(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
