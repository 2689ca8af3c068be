package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType identifies a step in the life of one task request.
type AuditEventType string

const (
	AuditTaskReceived    AuditEventType = "task_received"
	AuditTaskClassified  AuditEventType = "task_classified"
	AuditParamsBound     AuditEventType = "params_bound"
	AuditHandlerComplete AuditEventType = "handler_complete"
	AuditTaskRejected    AuditEventType = "task_rejected"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	EventType AuditEventType
	RequestID string
	Intent    string
	Stage     string
	Success   bool
	Duration  time.Duration
	Error     string
	Message   string
	Fields    map[string]string
}

// Audit writes the event to the audit category.
func Audit(ev AuditEvent) {
	l := Get(CategoryAudit)
	if ev.Success || ev.Error == "" {
		l.Info(string(ev.EventType), ev.zapFields()...)
		return
	}
	l.Warn(string(ev.EventType), ev.zapFields()...)
}

func (e AuditEvent) zapFields() []zap.Field {
	fields := []zap.Field{
		zap.String("req", e.RequestID),
		zap.Bool("success", e.Success),
	}
	if e.Intent != "" {
		fields = append(fields, zap.String("intent", e.Intent))
	}
	if e.Stage != "" {
		fields = append(fields, zap.String("stage", e.Stage))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("msg", e.Message))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.String("param."+k, v))
	}
	return fields
}
