// Package queue defines message payloads exchanged over the message broker.
package queue

import "encoding/json"

// FormSubmittedEvent is published after a submission has been written to the
// backing file.  It carries the stored record so downstream consumers can log
// or index submissions without reading the file.
type FormSubmittedEvent struct {
	EventID     string          `json:"event_id"`
	RequestID   string          `json:"request_id,omitempty"`
	Index       int             `json:"index"`
	Record      json.RawMessage `json:"record"`
	RemoteIP    string          `json:"remote_ip,omitempty"`
	SubmittedAt string          `json:"submitted_at"`
}
