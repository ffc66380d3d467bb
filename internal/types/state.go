package types

import (
	"encoding/json"
	"time"
)

// SnapshotVersion is written into every persisted AppState.
const SnapshotVersion = 1

type MachineStatus string

const (
	StatusRunning MachineStatus = "RUNNING"
	StatusStopped MachineStatus = "STOPPED"
)

type Machine struct {
	ID     string        `json:"id" yaml:"id"`
	Serial string        `json:"serial" yaml:"serial"`
	Model  string        `json:"model" yaml:"model"`
	Status MachineStatus `json:"status" yaml:"-"`
}

// ProductionEvent records Count units produced at Timestamp.
type ProductionEvent struct {
	ID        string
	Timestamp time.Time
	Count     int
}

type DowntimeEvent struct {
	ID       string
	Interval Interval
	Reason   string
}

type Operator struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type OperatorSession struct {
	ID         string
	OperatorID string
	Interval   Interval
}

// AppState is the aggregate root and the unit of persistence.
type AppState struct {
	Version           int               `json:"version"`
	Machine           Machine           `json:"machine"`
	ProductionEvents  []ProductionEvent `json:"productionEvents"`
	DowntimeEvents    []DowntimeEvent   `json:"downtimeEvents"`
	Operators         []Operator        `json:"operators"`
	OperatorSessions  []OperatorSession `json:"operatorSessions"`
	DemoMode          bool              `json:"demoMode"`
	ProfitPerEmpanada float64           `json:"profitPerEmpanada"`
	LastUpdated       time.Time         `json:"-"`
}

// Clone returns a deep copy; the event slices are never shared.
func (s AppState) Clone() AppState {
	out := s
	out.ProductionEvents = cloneSlice(s.ProductionEvents)
	out.DowntimeEvents = cloneSlice(s.DowntimeEvents)
	out.Operators = cloneSlice(s.Operators)
	out.OperatorSessions = cloneSlice(s.OperatorSessions)
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// ActiveDowntime returns the open downtime interval, earliest start first.
func (s AppState) ActiveDowntime() (DowntimeEvent, bool) {
	idx := -1
	for i, e := range s.DowntimeEvents {
		if !e.Interval.IsOpen() {
			continue
		}
		if idx < 0 || e.Interval.Start().Before(s.DowntimeEvents[idx].Interval.Start()) {
			idx = i
		}
	}
	if idx < 0 {
		return DowntimeEvent{}, false
	}
	return s.DowntimeEvents[idx], true
}

// ActiveSession returns the open operator session, earliest start first.
func (s AppState) ActiveSession() (OperatorSession, bool) {
	idx := -1
	for i, sess := range s.OperatorSessions {
		if !sess.Interval.IsOpen() {
			continue
		}
		if idx < 0 || sess.Interval.Start().Before(s.OperatorSessions[idx].Interval.Start()) {
			idx = i
		}
	}
	if idx < 0 {
		return OperatorSession{}, false
	}
	return s.OperatorSessions[idx], true
}

func (s AppState) Operator(id string) (Operator, bool) {
	for _, op := range s.Operators {
		if op.ID == id {
			return op, true
		}
	}
	return Operator{}, false
}

// Timestamps are persisted as Unix milliseconds.

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s AppState) MarshalJSON() ([]byte, error) {
	type Alias AppState
	return json.Marshal(struct {
		Alias
		LastUpdated int64 `json:"lastUpdated"`
	}{Alias(s), toMillis(s.LastUpdated)})
}

// UnmarshalJSON decodes over the receiver, so keys absent from data keep
// their current values.
func (s *AppState) UnmarshalJSON(data []byte) error {
	type Alias AppState
	aux := struct {
		*Alias
		LastUpdated *int64 `json:"lastUpdated"`
	}{Alias: (*Alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.LastUpdated != nil {
		s.LastUpdated = fromMillis(*aux.LastUpdated)
	}
	return nil
}

type productionEventJSON struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Count     int    `json:"count"`
}

func (e ProductionEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(productionEventJSON{ID: e.ID, Timestamp: toMillis(e.Timestamp), Count: e.Count})
}

func (e *ProductionEvent) UnmarshalJSON(data []byte) error {
	var raw productionEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ProductionEvent{ID: raw.ID, Timestamp: fromMillis(raw.Timestamp), Count: raw.Count}
	return nil
}

type downtimeEventJSON struct {
	ID        string `json:"id"`
	StartTime int64  `json:"startTime"`
	EndTime   *int64 `json:"endTime"`
	Reason    string `json:"reason"`
}

func (e DowntimeEvent) MarshalJSON() ([]byte, error) {
	start, end := intervalToJSON(e.Interval)
	return json.Marshal(downtimeEventJSON{ID: e.ID, StartTime: start, EndTime: end, Reason: e.Reason})
}

func (e *DowntimeEvent) UnmarshalJSON(data []byte) error {
	var raw downtimeEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	iv, err := intervalFromJSON(raw.StartTime, raw.EndTime)
	if err != nil {
		return err
	}
	*e = DowntimeEvent{ID: raw.ID, Interval: iv, Reason: raw.Reason}
	return nil
}

type operatorSessionJSON struct {
	ID         string `json:"id"`
	OperatorID string `json:"operatorId"`
	StartTime  int64  `json:"startTime"`
	EndTime    *int64 `json:"endTime"`
}

func (s OperatorSession) MarshalJSON() ([]byte, error) {
	start, end := intervalToJSON(s.Interval)
	return json.Marshal(operatorSessionJSON{ID: s.ID, OperatorID: s.OperatorID, StartTime: start, EndTime: end})
}

func (s *OperatorSession) UnmarshalJSON(data []byte) error {
	var raw operatorSessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	iv, err := intervalFromJSON(raw.StartTime, raw.EndTime)
	if err != nil {
		return err
	}
	*s = OperatorSession{ID: raw.ID, OperatorID: raw.OperatorID, Interval: iv}
	return nil
}

func intervalToJSON(iv Interval) (int64, *int64) {
	end, ok := iv.End()
	if !ok {
		return toMillis(iv.Start()), nil
	}
	ms := toMillis(end)
	return toMillis(iv.Start()), &ms
}

func intervalFromJSON(start int64, end *int64) (Interval, error) {
	if end == nil {
		return OpenInterval(fromMillis(start)), nil
	}
	return ClosedInterval(fromMillis(start), fromMillis(*end))
}
