package app

import "time"

// Operation names one CLI invocation. Its name and start time tag every log
// line the invocation writes, and its status is logged when the App closes.
type Operation struct {
	Name    string
	Started time.Time
	Status  string // "success" or "error"
}

// NewOperation starts an operation that is assumed to succeed until Fail is called.
func NewOperation(name string, started time.Time) *Operation {
	return &Operation{
		Name:    name,
		Started: started.UTC(),
		Status:  "success",
	}
}

// ID identifies the run in logs, e.g. "serve@20240115T103000Z".
func (op *Operation) ID() string {
	return op.Name + "@" + op.Started.Format("20060102T150405Z")
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}
