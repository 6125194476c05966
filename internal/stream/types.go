package stream

import (
	"encoding/json"
	"time"

	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// Event kinds carried on a run stream. Every stream delivers exactly one
// start, any number of interleaved heartbeat/finding events, then one
// terminal done (or error).
const (
	TypeStart     = "start"
	TypeHeartbeat = "heartbeat"
	TypeFinding   = "finding"
	TypeDone      = "done"
	TypeError     = "error"
)

// Event is the wire envelope for one stream message.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// StartData announces an accepted run and its endpoint count.
type StartData struct {
	RunID     string `json:"run_id"`
	Endpoints int    `json:"endpoints"`
}

// HeartbeatData tells an idle consumer the run is still alive.
type HeartbeatData struct {
	RunID string `json:"run_id"`
}

// FindingData carries enough of a finding for a consumer to update live
// per-endpoint counters without re-querying the store.
type FindingData struct {
	RunID       string          `json:"run_id"`
	EndpointKey string          `json:"endpoint_key"`
	DetectorID  string          `json:"detector_id"`
	Severity    models.Severity `json:"severity"`
	Title       string          `json:"title"`
}

// DoneData terminates a stream.
type DoneData struct {
	RunID      string `json:"run_id"`
	Findings   int    `json:"findings"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrorData terminates a stream abnormally.
type ErrorData struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// NewEvent wraps a payload in the wire envelope. Payload types above are
// always marshalable, so encoding failures cannot occur in practice and
// produce a null data field rather than a dropped event.
func NewEvent(eventType string, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// Start decodes the payload of a start event.
func (e Event) Start() (StartData, error) {
	var d StartData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// Finding decodes the payload of a finding event.
func (e Event) Finding() (FindingData, error) {
	var d FindingData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// Done decodes the payload of a done event.
func (e Event) Done() (DoneData, error) {
	var d DoneData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}
