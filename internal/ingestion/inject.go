package ingestion

import (
	"context"
	"time"
)

// Injector accepts admin and manual events from the HTTP API and queues them
// behind the same parser and core loop as NATS input. It is not meant for
// high-throughput ingestion.
type Injector struct {
	eventChan chan<- RawEvent
}

func NewInjector(eventChan chan<- RawEvent) *Injector {
	return &Injector{eventChan: eventChan}
}

// Inject validates data as eventType and queues it. Malformed input is
// rejected before it reaches the queue.
func (s *Injector) Inject(ctx context.Context, eventType string, data []byte) error {
	raw := RawEvent{
		Subject:   "http",
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
	if _, err := ParseRawEvent(raw); err != nil {
		return err
	}

	select {
	case s.eventChan <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
