package postgres

import (
	"context"
	"fmt"

	"practice-duel-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ItemLoader queries the item bank in Postgres.
type ItemLoader struct {
	pool *pgxpool.Pool
}

func NewItemLoader(pool *pgxpool.Pool) *ItemLoader {
	return &ItemLoader{pool: pool}
}

const itemColumns = `id, topic_id, prompt, format, difficulty`

func (l *ItemLoader) SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE ($1 = '' OR topic_id = $1)
		  AND ($2::double precision IS NULL OR difficulty >= $2)
		  AND ($3::double precision IS NULL OR difficulty <= $3)
		ORDER BY id`
	rows, err := l.pool.Query(ctx, query, filter.TopicID, filter.MinDifficulty, filter.MaxDifficulty)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ItemsByID returns items in the order requested.
func (l *ItemLoader) ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("load item %s: %w", id, domain.ErrItemNotFound)
		}
		out = append(out, item)
	}
	return out, nil
}

type itemRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanItems(rows itemRows) ([]domain.Item, error) {
	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var format string
		if err := rows.Scan(&item.ID, &item.TopicID, &item.Prompt, &format, &item.Difficulty); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Format = domain.ItemFormat(format)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
