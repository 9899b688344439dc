package domain

import "errors"

var (
	// ErrPlayerNotFound is returned when an operation references an unregistered player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrQuestionNotFound indicates a question ID missing from the catalog.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrVariantNotFound indicates a variant ID missing from the question.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrUnknownHintKind indicates an unregistered hint kind.
	ErrUnknownHintKind = errors.New("unknown hint kind")
	// ErrStageNotFound indicates the catalog has no questions for the stage.
	ErrStageNotFound = errors.New("stage not found")
	// ErrConflict signals a lost concurrent-write race; callers retry the
	// whole operation once before surfacing a transient error.
	ErrConflict = errors.New("concurrent update conflict")
)
