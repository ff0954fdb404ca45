package logging

import (
	"go.uber.org/zap"
)

// AuditEventType names a state-changing operation worth keeping in the audit stream.
type AuditEventType string

const (
	AuditNameRegistered AuditEventType = "name_registered"
	AuditCostsReset     AuditEventType = "costs_reset"
	AuditMemoryStore    AuditEventType = "memory_store"
	AuditMemoryDelete   AuditEventType = "memory_delete"
	AuditStoreReady     AuditEventType = "store_ready"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	Event   AuditEventType
	Target  string
	Success bool
	Error   string
	Fields  map[string]interface{}
}

// Audit writes ev to the audit category as a structured entry.
func Audit(ev AuditEvent) {
	l := Get(CategoryAudit).Zap()
	fields := make([]zap.Field, 0, 4+len(ev.Fields))
	fields = append(fields,
		zap.String("event", string(ev.Event)),
		zap.String("target", ev.Target),
		zap.Bool("success", ev.Success),
	)
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	l.Info("audit", fields...)
}
