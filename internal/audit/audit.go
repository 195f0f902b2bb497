// Package audit defines the sink the engine reports lifecycle events to.
// The engine writes once per event and never reads the sink back.
package audit

import (
	"context"
	"log"
)

type Event struct {
	UserID       string         `json:"userId"`
	ActivityType string         `json:"activityType"`
	EntityType   string         `json:"entityType"`
	EntityID     string         `json:"entityId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes audit events to a logger. It is the default sink when
// no external audit service is configured.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, event Event) error {
	s.logger.Printf("audit: user=%s activity=%s entity=%s/%s", event.UserID, event.ActivityType, event.EntityType, event.EntityID)
	return nil
}

// NopSink discards audit events.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, event Event) error { return nil }
