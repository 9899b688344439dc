package game

import (
	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
)

// NextQuestion decides which question the player must answer next, based on
// their most recent answer for the stage:
//
//   - no prior answer: the lowest-weight question;
//   - prior answer chose a wrong variant: the same question again (retry
//     limits are the state machine's concern, not the sequencer's);
//   - prior answer chose a correct variant: the next question up the ladder,
//     or none when the ladder is exhausted.
func NextQuestion(stage *catalog.Stage, last *domain.Answer) (domain.Question, bool, error) {
	if last == nil {
		return stage.First(), true, nil
	}

	question, ok := stage.Question(last.QuestionID)
	if !ok {
		return domain.Question{}, false, domain.ErrQuestionNotFound
	}
	variant, ok := question.Variant(last.VariantID)
	if !ok {
		return domain.Question{}, false, domain.ErrVariantNotFound
	}

	if !variant.Correct {
		return question, true, nil
	}
	next, ok := stage.After(question.Weight)
	return next, ok, nil
}
