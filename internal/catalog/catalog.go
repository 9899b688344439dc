// Package catalog holds the immutable per-stage question set. Catalog
// invariants (unique weights, at least one correct variant) are verified once
// at construction; runtime lookups can then assume a well-formed stage.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"quiz-ladder-service/internal/domain"
)

// Loader fetches the raw question set for a stage from a backing store.
type Loader interface {
	LoadStage(ctx context.Context, stage int64) ([]domain.Question, error)
}

// ConfigurationError marks content that violates catalog invariants. It is
// fatal at load time and never a per-request condition.
type ConfigurationError struct {
	Stage  int64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("catalog stage %d: %s", e.Stage, e.Reason)
}

// Stage is a validated, weight-ordered question set for one stage.
type Stage struct {
	stage     int64
	questions []domain.Question
	byID      map[int64]int
}

// NewStage validates and indexes the question set. Questions may arrive in
// any order; they are sorted by weight ascending.
func NewStage(stage int64, questions []domain.Question) (*Stage, error) {
	if len(questions) == 0 {
		return nil, domain.ErrStageNotFound
	}

	sorted := make([]domain.Question, len(questions))
	copy(sorted, questions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weight < sorted[j].Weight })

	byID := make(map[int64]int, len(sorted))
	seenWeights := make(map[int]int64, len(sorted))
	for i, q := range sorted {
		if q.Stage != stage {
			return nil, &ConfigurationError{Stage: stage, Reason: fmt.Sprintf("question %d belongs to stage %d", q.ID, q.Stage)}
		}
		if other, dup := seenWeights[q.Weight]; dup {
			return nil, &ConfigurationError{Stage: stage, Reason: fmt.Sprintf("questions %d and %d share weight %d", other, q.ID, q.Weight)}
		}
		seenWeights[q.Weight] = q.ID
		if _, dup := byID[q.ID]; dup {
			return nil, &ConfigurationError{Stage: stage, Reason: fmt.Sprintf("duplicate question id %d", q.ID)}
		}
		if len(q.Variants) == 0 {
			return nil, &ConfigurationError{Stage: stage, Reason: fmt.Sprintf("question %d has no variants", q.ID)}
		}
		if len(q.CorrectVariants()) == 0 {
			return nil, &ConfigurationError{Stage: stage, Reason: fmt.Sprintf("question %d has no correct variant", q.ID)}
		}
		byID[q.ID] = i
	}

	return &Stage{stage: stage, questions: sorted, byID: byID}, nil
}

// ID returns the stage identifier.
func (s *Stage) ID() int64 { return s.stage }

// Count returns the number of questions in the stage.
func (s *Stage) Count() int { return len(s.questions) }

// First returns the lowest-weight question.
func (s *Stage) First() domain.Question { return s.questions[0] }

// Question looks up a question by ID.
func (s *Stage) Question(id int64) (domain.Question, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Question{}, false
	}
	return s.questions[i], true
}

// After returns the next question strictly above the given weight, or false
// when the ladder is exhausted.
func (s *Stage) After(weight int) (domain.Question, bool) {
	i := sort.Search(len(s.questions), func(i int) bool { return s.questions[i].Weight > weight })
	if i == len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[i], true
}

// Questions returns the weight-ordered question slice. Callers must not mutate it.
func (s *Stage) Questions() []domain.Question { return s.questions }

// Repository loads validated stages, typically through a cache decorator.
type Repository interface {
	GetStage(ctx context.Context, stage int64) (*Stage, error)
}

// LoaderRepository adapts a raw Loader into a Repository by validating on
// every load. Wrap it in a cache for anything beyond tests.
type LoaderRepository struct {
	loader Loader
}

func NewLoaderRepository(loader Loader) *LoaderRepository {
	return &LoaderRepository{loader: loader}
}

func (r *LoaderRepository) GetStage(ctx context.Context, stage int64) (*Stage, error) {
	questions, err := r.loader.LoadStage(ctx, stage)
	if err != nil {
		return nil, err
	}
	return NewStage(stage, questions)
}
