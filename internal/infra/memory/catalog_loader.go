package memory

import (
	"context"

	"quiz-ladder-service/internal/domain"
)

// StaticCatalogLoader serves questions from an in-memory map keyed by stage
// (useful for tests and the no-database mode).
type StaticCatalogLoader struct {
	stages map[int64][]domain.Question
}

func NewStaticCatalogLoader(stages map[int64][]domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{stages: stages}
}

func (l *StaticCatalogLoader) LoadStage(_ context.Context, stage int64) ([]domain.Question, error) {
	questions, ok := l.stages[stage]
	if !ok {
		return nil, domain.ErrStageNotFound
	}
	return questions, nil
}
