package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// SkillRatings reads per-skill ratings tracked for a user.
type SkillRatings struct {
	pool *pgxpool.Pool
}

func NewSkillRatings(pool *pgxpool.Pool) *SkillRatings {
	return &SkillRatings{pool: pool}
}

func (s *SkillRatings) SkillRatings(ctx context.Context, userID string) ([]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT rating FROM user_skill_ratings WHERE user_id = $1 ORDER BY skill_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select skill ratings: %w", err)
	}
	defer rows.Close()

	var ratings []float64
	for rows.Next() {
		var rating float64
		if err := rows.Scan(&rating); err != nil {
			return nil, fmt.Errorf("scan skill rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}
