package game

import (
	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
)

// Machine is the progression state machine: the single source of truth for
// what should happen to a player next. It is stateless; every decision is a
// function of the persisted player, the most recent answer, and the catalog,
// so replaying an event against the same persisted state yields the same
// outcome.
type Machine struct {
	retryLimit int
}

func NewMachine(retryLimit int) Machine {
	return Machine{retryLimit: retryLimit}
}

// StepResult is the machine's verdict for one inbound event: the state to
// persist, the prompts the transport should present, and the question to
// show (when PromptQuestion is among the prompts).
type StepResult struct {
	State   domain.State
	Prompts []domain.Prompt
	Next    *domain.Question
}

// Recompute derives a player's state purely from their most recent answer,
// in strict priority order: no history means INIT; a finished ladder means
// WIN; exhausted tries mean LOSE; otherwise the answer's correctness decides
// between PLAY and REPEAT.
func (m Machine) Recompute(stage *catalog.Stage, last *domain.Answer) (domain.State, error) {
	if last == nil {
		return domain.StateInit, nil
	}

	question, ok := stage.Question(last.QuestionID)
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	variant, ok := question.Variant(last.VariantID)
	if !ok {
		return "", domain.ErrVariantNotFound
	}

	if variant.Correct {
		if _, remaining := stage.After(question.Weight); !remaining {
			return domain.StateWin, nil
		}
	}
	switch {
	case last.Tries > m.retryLimit:
		return domain.StateLose, nil
	case variant.Correct:
		return domain.StatePlay, nil
	case last.Tries >= m.retryLimit:
		return domain.StateLose, nil
	default:
		return domain.StateRepeat, nil
	}
}

// Step evaluates the transition policy for a progression event (start command
// or any plain message). Contact capture is handled separately by the
// service, because it carries free text the machine never sees.
func (m Machine) Step(player domain.Player, stage *catalog.Stage, last *domain.Answer) (StepResult, error) {
	state := player.State
	var prompts []domain.Prompt

	// Terminal states are rebuilt from history rather than forward-stepped,
	// so an admin stage advance or a ledger reset takes effect on the next
	// inbound event.
	if state.Terminal() {
		recomputed, err := m.Recompute(stage, last)
		if err != nil {
			return StepResult{}, err
		}
		if recomputed.Terminal() {
			return m.finishTerminal(player, recomputed, prompts), nil
		}
		state = recomputed
	}

	switch state {
	case domain.StateContact, domain.StateContactRequest:
		prompts = append(prompts, domain.PromptContact)
		return StepResult{State: domain.StateContactRequest, Prompts: prompts}, nil
	case domain.StateInit:
		prompts = append(prompts, domain.PromptGreeting)
		state = domain.StatePlay
	case domain.StateRepeat:
		prompts = append(prompts, domain.PromptRetry)
		state = domain.StatePlay
	}

	next, ok, err := NextQuestion(stage, last)
	if err != nil {
		return StepResult{}, err
	}
	if !ok {
		return m.finishTerminal(player, domain.StateWin, prompts), nil
	}
	prompts = append(prompts, domain.PromptQuestion)
	return StepResult{State: domain.StatePlay, Prompts: prompts, Next: &next}, nil
}

// finishTerminal applies the contact-capture rule: a player reaching WIN or
// LOSE without contact info on file is routed through the contact flow;
// otherwise they stay terminal.
func (m Machine) finishTerminal(player domain.Player, outcome domain.State, prompts []domain.Prompt) StepResult {
	if outcome == domain.StateWin {
		prompts = append(prompts, domain.PromptWin)
	} else {
		prompts = append(prompts, domain.PromptLose)
	}
	if !player.HasContact() {
		prompts = append(prompts, domain.PromptContact)
		return StepResult{State: domain.StateContactRequest, Prompts: prompts}
	}
	return StepResult{State: outcome, Prompts: prompts}
}
