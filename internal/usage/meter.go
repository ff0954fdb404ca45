package usage

import "memoryd/internal/logging"

// Meter is the telemetry boundary for billable calls. It records into the
// ledger and the activity log and never reports failure to the caller.
type Meter struct {
	ledger   *Ledger
	activity *ActivityLog
}

// NewMeter joins a ledger and an activity log. Either may be nil.
func NewMeter(ledger *Ledger, activity *ActivityLog) *Meter {
	return &Meter{ledger: ledger, activity: activity}
}

// Ledger returns the underlying ledger.
func (m *Meter) Ledger() *Ledger { return m.ledger }

// Activity returns the underlying activity log.
func (m *Meter) Activity() *ActivityLog { return m.activity }

// Embedding records one embedding call.
func (m *Meter) Embedding(source, operation string, tokens int64) {
	if m == nil {
		return
	}
	defer m.recoverTelemetry(source)

	var cost float64
	if m.ledger != nil {
		c, err := m.ledger.Record(source, tokens)
		if err != nil {
			logging.UsageDebug("telemetry record error (%s): %v", source, err)
			return
		}
		cost = c
	}
	if m.activity != nil {
		m.activity.Record(source, operation, tokens, cost)
	}
}

// Completion records one completion call.
func (m *Meter) Completion(source, operation string, prompt, cached, completion int64) {
	if m == nil {
		return
	}
	defer m.recoverTelemetry(source)

	var cost float64
	if m.ledger != nil {
		c, err := m.ledger.RecordCompletion(source, prompt, cached, completion)
		if err != nil {
			logging.UsageDebug("telemetry record error (%s): %v", source, err)
			return
		}
		cost = c
	}
	if m.activity != nil {
		m.activity.Record(source, operation, prompt+completion, cost)
	}
}

func (m *Meter) recoverTelemetry(source string) {
	if r := recover(); r != nil {
		logging.Get(logging.CategoryUsage).Warn("telemetry panic (%s): %v", source, r)
	}
}
