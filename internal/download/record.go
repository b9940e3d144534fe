// Package download holds the lifecycle state of every download the service
// drives: the in-memory tracker keyed by download id, the orchestrator that
// runs yt-dlp and mutates tracker records, and the error taxonomy surfaced
// to clients.
package download

import (
	"encoding/json"
	"time"
)

// Status of a tracked download.
type Status int

const (
	Downloading Status = iota
	Complete
	Error
)

var statusToName = map[Status]string{
	Downloading: "downloading",
	Complete:    "complete",
	Error:       "error",
}

var nameToStatus = map[string]Status{
	"downloading": Downloading,
	"complete":    Complete,
	"error":       Error,
}

// Terminal reports whether no further mutation of the record is legitimate.
func (s Status) Terminal() bool {
	return s == Complete || s == Error
}

func (s Status) String() string {
	if name, ok := statusToName[s]; ok {
		return name
	}

	return "downloading"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	status, ok := nameToStatus[name]
	if !ok {
		status = Downloading
	}

	*s = status

	return nil
}

// maxOutputLines bounds the per-record output log; older lines drop FIFO.
const maxOutputLines = 100

// record is the tracker's mutable per-download state. It is only touched
// while holding the tracker lock.
type record struct {
	id          string
	status      Status
	progress    float64
	filename    string
	errMessage  string
	lastUpdated time.Time
	output      []string
}

// Snapshot is an immutable copy of a record handed to readers. The output
// slice is copied so later mutations never show through.
type Snapshot struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Filename    string    `json:"filename,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	Output      []string  `json:"output"`
}

func (r *record) snapshot() Snapshot {
	out := make([]string, len(r.output))
	copy(out, r.output)

	return Snapshot{
		ID:          r.id,
		Status:      r.status,
		Progress:    r.progress,
		Filename:    r.filename,
		Error:       r.errMessage,
		LastUpdated: r.lastUpdated,
		Output:      out,
	}
}
