package app

import (
	"context"
	"errors"

	"practice-duel-service/internal/domain"
)

// MultiPublisher sends each event to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.RoomEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
