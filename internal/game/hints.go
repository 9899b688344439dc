package game

import (
	"context"
	"math/rand"

	"quiz-ladder-service/internal/domain"
)

// Hint kinds carried over from the original game: halve the variant set, or
// show how other players answered. Each kind has its own global per-player
// usage limit; availability is independent of the question.
const (
	HintFifty = "fifty"
	HintStats = "stats"
)

var hintKinds = map[string]struct{}{
	HintFifty: {},
	HintStats: {},
}

// KnownHintKind reports whether kind is registered.
func KnownHintKind(kind string) bool {
	_, ok := hintKinds[kind]
	return ok
}

// hintPayload computes the kind-specific payload. It is a pure read over
// already-committed data and runs outside the usage-counter transaction.
func (s *Service) hintPayload(ctx context.Context, kind string, question domain.Question) (domain.HintPayload, error) {
	switch kind {
	case HintFifty:
		return fiftyPayload(question, s.rnd), nil
	case HintStats:
		dist, total, err := s.store.AnswerStats(ctx, question.ID)
		if err != nil {
			return domain.HintPayload{}, err
		}
		return domain.HintPayload{Distribution: dist, TotalAnswers: total}, nil
	default:
		return domain.HintPayload{}, domain.ErrUnknownHintKind
	}
}

// fiftyPayload keeps every correct variant plus a random sample of wrong
// ones, leaving ceil(n/2) variants overall. When the question is too small to
// halve, the full variant set comes back unchanged.
func fiftyPayload(question domain.Question, rnd *rand.Rand) domain.HintPayload {
	keep := len(question.Variants) - len(question.Variants)/2
	if keep <= 1 && len(question.Variants) > 1 {
		keep = 1
	}

	correct := question.CorrectVariants()
	if keep <= len(correct) {
		return domain.HintPayload{Variants: correct}
	}

	var wrong []domain.Variant
	for _, v := range question.Variants {
		if !v.Correct {
			wrong = append(wrong, v)
		}
	}
	rnd.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })

	rest := append([]domain.Variant{}, correct...)
	rest = append(rest, wrong[:keep-len(correct)]...)

	// Restore catalog order so the reduced keyboard looks stable to players.
	kept := make(map[string]struct{}, len(rest))
	for _, v := range rest {
		kept[v.ID] = struct{}{}
	}
	ordered := make([]domain.Variant, 0, len(rest))
	for _, v := range question.Variants {
		if _, ok := kept[v.ID]; ok {
			ordered = append(ordered, v)
		}
	}
	return domain.HintPayload{Variants: ordered}
}
