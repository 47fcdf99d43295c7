package app

import (
	"context"
	"fmt"

	"practice-duel-service/internal/domain"
)

// selectItems returns a random, fixed-order item list for a new room.
// A topic restricts the pool to that topic; otherwise items near the creator's
// aggregate rating are preferred, widening to any displayable item when short.
func (s *DuelService) selectItems(ctx context.Context, creatorID, topicID string, count int) ([]string, error) {
	if topicID != "" {
		candidates, err := s.items.SelectCandidateItems(ctx, domain.ItemFilter{TopicID: topicID})
		if err != nil {
			return nil, fmt.Errorf("select topic items: %w", err)
		}
		pool := displayablePool(candidates, domain.ItemFilter{TopicID: topicID})
		if len(pool) < count {
			return nil, fmt.Errorf("%w: topic %q has %d of %d items", domain.ErrInsufficientContent, topicID, len(pool), count)
		}
		return s.sample(pool, count), nil
	}

	rating, err := s.aggregateRating(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	lo, hi := rating-s.settings.RatingTolerance, rating+s.settings.RatingTolerance
	band := domain.ItemFilter{MinDifficulty: &lo, MaxDifficulty: &hi}
	candidates, err := s.items.SelectCandidateItems(ctx, band)
	if err != nil {
		return nil, fmt.Errorf("select rated items: %w", err)
	}
	pool := displayablePool(candidates, band)

	if len(pool) < count {
		s.logger.Debug("widening item pool", "creator", creatorID, "rating", rating, "in_band", len(pool), "wanted", count)
		candidates, err = s.items.SelectCandidateItems(ctx, domain.ItemFilter{})
		if err != nil {
			return nil, fmt.Errorf("select items: %w", err)
		}
		pool = displayablePool(candidates, domain.ItemFilter{})
	}
	if len(pool) < count {
		return nil, fmt.Errorf("%w: %d of %d items available", domain.ErrInsufficientContent, len(pool), count)
	}
	return s.sample(pool, count), nil
}

// aggregateRating is the mean of the user's tracked skills, or the neutral rating.
func (s *DuelService) aggregateRating(ctx context.Context, userID string) (float64, error) {
	ratings, err := s.ratings.SkillRatings(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load skill ratings: %w", err)
	}
	if len(ratings) == 0 {
		return s.settings.NeutralRating, nil
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r
	}
	return sum / float64(len(ratings)), nil
}

// displayablePool keeps real-time items that match the filter, deduplicated by id.
func displayablePool(items []domain.Item, filter domain.ItemFilter) []string {
	seen := make(map[string]struct{}, len(items))
	pool := make([]string, 0, len(items))
	for _, item := range items {
		if !item.Displayable() || !filter.Matches(item) {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		pool = append(pool, item.ID)
	}
	return pool
}

// sample draws count ids without replacement.
func (s *DuelService) sample(pool []string, count int) []string {
	s.rndMu.Lock()
	perm := s.rnd.Perm(len(pool))
	s.rndMu.Unlock()

	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}
