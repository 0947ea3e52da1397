package domain

import "math"

type EventType string

const (
	EventProgress EventType = "progress"
	EventMessage  EventType = "message"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// ProgressEvent is one entry of the ingestion progress stream.
type ProgressEvent struct {
	Type            EventType `json:"type"`
	ChunksProcessed int       `json:"chunksProcessed,omitempty"`
	TotalChunks     int       `json:"totalChunks,omitempty"`
	Percentage      float64   `json:"percentage,omitempty"`
	Message         string    `json:"message,omitempty"`
	Details         string    `json:"details,omitempty"`
	Output          string    `json:"output,omitempty"`
}

func ProgressOf(processed, total int) ProgressEvent {
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(processed)/float64(total)*10000) / 100
	}
	return ProgressEvent{
		Type:            EventProgress,
		ChunksProcessed: processed,
		TotalChunks:     total,
		Percentage:      pct,
	}
}

func MessageEvent(msg string) ProgressEvent {
	return ProgressEvent{Type: EventMessage, Message: msg}
}

func CompleteEvent(msg, output string) ProgressEvent {
	return ProgressEvent{Type: EventComplete, Message: msg, Output: output}
}

// ErrorEvent reports a failure together with how far ingestion got.
func ErrorEvent(err error, processed, total int) ProgressEvent {
	return ProgressEvent{
		Type:            EventError,
		ChunksProcessed: processed,
		TotalChunks:     total,
		Message:         Headline(err),
		Details:         Detail(err),
	}
}

// Terminal reports whether no further events follow this one.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventError || e.Type == EventComplete
}
