package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-ladder-service/internal/domain"
)

// CatalogLoader reads the immutable question content from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadStage(ctx context.Context, stage int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT question_id, stage, text_value, weight FROM questions WHERE stage = $1`, stage)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.Question)
	var order []int64
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Stage, &q.Text, &q.Weight); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		byID[q.ID] = &q
		order = append(order, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(order) == 0 {
		return nil, domain.ErrStageNotFound
	}

	vrows, err := l.pool.Query(ctx, `
		SELECT v.question_id, v.variant_id, v.text_value, v.correct
		FROM variants v
		JOIN questions q ON q.question_id = v.question_id
		WHERE q.stage = $1
		ORDER BY v.question_id, v.variant_id`, stage)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var v domain.Variant
		if err := vrows.Scan(&v.QuestionID, &v.ID, &v.Text, &v.Correct); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if q, ok := byID[v.QuestionID]; ok {
			q.Variants = append(q.Variants, v)
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	questions := make([]domain.Question, 0, len(order))
	for _, id := range order {
		questions = append(questions, *byID[id])
	}
	return questions, nil
}
