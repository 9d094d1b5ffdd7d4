package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type multiPublisher struct {
	publishers []Publisher
}

// NewMulti publishes to every publisher and joins their errors. One failing
// transport does not stop the others.
func NewMulti(publishers ...Publisher) Publisher {
	return &multiPublisher{publishers: publishers}
}

func (m *multiPublisher) Publish(ctx context.Context, screeningID uuid.UUID, events []SeatEvent) error {
	var err error
	for _, p := range m.publishers {
		err = multierr.Append(err, p.Publish(ctx, screeningID, events))
	}
	return err
}
