package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 2 * time.Second

// Dispatcher sends events after a commit. Failures are logged and swallowed so a
// transport outage never undoes a committed change.
type Dispatcher struct {
	publisher Publisher
	timeout   time.Duration
	log       *zap.Logger
}

func NewDispatcher(publisher Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		timeout:   defaultPublishTimeout,
		log:       log.With(zap.String("publisher", "dispatcher")),
	}
}

// Dispatch publishes one batch per screening. It runs detached from the request's
// cancellation, bounded by its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, byScreening map[uuid.UUID][]SeatEvent) {
	if d == nil || d.publisher == nil {
		return
	}

	for screeningID, events := range byScreening {
		if len(events) == 0 {
			continue
		}

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		err := d.publisher.Publish(pubCtx, screeningID, events)
		cancel()

		if err != nil {
			d.log.Warn("Failed to publish seat events",
				zap.Error(err),
				zap.String("screening_id", screeningID.String()),
				zap.Int("event_count", len(events)),
			)
		}
	}
}
