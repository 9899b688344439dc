package catalog_test

import (
	"errors"
	"testing"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
)

func validQuestions() []domain.Question {
	return []domain.Question{
		{ID: 2, Stage: 1, Text: "Q2", Weight: 20, Variants: []domain.Variant{
			{QuestionID: 2, ID: "a", Text: "right", Correct: true},
			{QuestionID: 2, ID: "b", Text: "wrong"},
		}},
		{ID: 1, Stage: 1, Text: "Q1", Weight: 10, Variants: []domain.Variant{
			{QuestionID: 1, ID: "a", Text: "wrong"},
			{QuestionID: 1, ID: "b", Text: "right", Correct: true},
		}},
	}
}

func TestNewStageSortsByWeight(t *testing.T) {
	stage, err := catalog.NewStage(1, validQuestions())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	if stage.Count() != 2 {
		t.Fatalf("want 2 questions, got %d", stage.Count())
	}
	if stage.First().ID != 1 {
		t.Fatalf("first question must be the lowest weight, got %d", stage.First().ID)
	}

	next, ok := stage.After(10)
	if !ok || next.ID != 2 {
		t.Fatalf("After(10): got %+v ok=%v", next, ok)
	}
	if _, ok := stage.After(20); ok {
		t.Fatalf("After the top weight must report exhaustion")
	}
}

func TestNewStageEmpty(t *testing.T) {
	if _, err := catalog.NewStage(1, nil); !errors.Is(err, domain.ErrStageNotFound) {
		t.Fatalf("want ErrStageNotFound, got %v", err)
	}
}

func TestNewStageRejectsBadContent(t *testing.T) {
	cases := []struct {
		name      string
		questions []domain.Question
	}{
		{
			name: "duplicate weight",
			questions: []domain.Question{
				{ID: 1, Stage: 1, Weight: 10, Variants: []domain.Variant{{QuestionID: 1, ID: "a", Correct: true}}},
				{ID: 2, Stage: 1, Weight: 10, Variants: []domain.Variant{{QuestionID: 2, ID: "a", Correct: true}}},
			},
		},
		{
			name: "duplicate id",
			questions: []domain.Question{
				{ID: 1, Stage: 1, Weight: 10, Variants: []domain.Variant{{QuestionID: 1, ID: "a", Correct: true}}},
				{ID: 1, Stage: 1, Weight: 20, Variants: []domain.Variant{{QuestionID: 1, ID: "a", Correct: true}}},
			},
		},
		{
			name: "no variants",
			questions: []domain.Question{
				{ID: 1, Stage: 1, Weight: 10},
			},
		},
		{
			name: "no correct variant",
			questions: []domain.Question{
				{ID: 1, Stage: 1, Weight: 10, Variants: []domain.Variant{{QuestionID: 1, ID: "a"}, {QuestionID: 1, ID: "b"}}},
			},
		},
		{
			name: "wrong stage",
			questions: []domain.Question{
				{ID: 1, Stage: 2, Weight: 10, Variants: []domain.Variant{{QuestionID: 1, ID: "a", Correct: true}}},
			},
		},
	}
	for _, tc := range cases {
		_, err := catalog.NewStage(1, tc.questions)
		var cfgErr *catalog.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: want ConfigurationError, got %v", tc.name, err)
		}
	}
}

func TestStageQuestionLookup(t *testing.T) {
	stage, err := catalog.NewStage(1, validQuestions())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	q, ok := stage.Question(2)
	if !ok || q.Weight != 20 {
		t.Fatalf("lookup by id failed: %+v ok=%v", q, ok)
	}
	if _, ok := stage.Question(99); ok {
		t.Fatalf("unknown id must miss")
	}
}
