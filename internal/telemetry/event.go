package telemetry

import "time"

// Severity classifies a telemetry event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a structured diagnostic record. Events are immutable once recorded.
type Event struct {
	Type      string                 `json:"type" bson:"event_type"`
	Severity  Severity               `json:"severity" bson:"severity"`
	Message   string                 `json:"message,omitempty" bson:"-"`
	Context   map[string]interface{} `json:"context,omitempty" bson:"-"`
	UserID    string                 `json:"userId,omitempty" bson:"user_id,omitempty"`
	Path      string                 `json:"path,omitempty" bson:"-"`
	Timestamp time.Time              `json:"timestamp" bson:"created_at"`
}

// SinkContext is the context blob persisted by sinks: the event context plus message and path.
func (e Event) SinkContext() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Context)+2)
	for k, v := range e.Context {
		out[k] = v
	}
	if e.Message != "" {
		out["message"] = e.Message
	}
	if e.Path != "" {
		out["path"] = e.Path
	}
	return out
}

// Recorder accepts events for asynchronous delivery.
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev Event)

func (f RecorderFunc) Record(ev Event) { f(ev) }
