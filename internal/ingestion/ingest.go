package ingestion

import (
	"context"
	"fmt"
	"time"

	"PerpCore/internal/event"
)

// IngestService is the admin/manual injection surface. It reuses the same
// wire formats as the NATS path, so a payload that works on a subject works
// here too. Not intended for high-throughput ingestion.
type IngestService struct {
	eventChan chan<- event.Event
}

func NewIngestService(eventChan chan<- event.Event) *IngestService {
	return &IngestService{eventChan: eventChan}
}

// Inject parses one raw command and queues it for the core.
func (s *IngestService) Inject(ctx context.Context, eventType string, payload []byte) error {
	evt, err := ParseRawEvent(RawEvent{Data: payload, Timestamp: time.Now()}, eventType)
	if err != nil {
		return fmt.Errorf("inject %s: %w", eventType, err)
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
