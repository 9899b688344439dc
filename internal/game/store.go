package game

import (
	"context"

	"quiz-ladder-service/internal/domain"
)

// Ledger is the transactional view of player progress. Inside Store.Atomic
// every read sees the transaction's snapshot and every write is committed
// atomically with the rest of the closure.
type Ledger interface {
	// Player returns a player by ID or domain.ErrPlayerNotFound.
	Player(ctx context.Context, id string) (domain.Player, error)
	// SavePlayer persists state and contact changes.
	SavePlayer(ctx context.Context, p domain.Player) error

	// Answer returns the single answer row for (player, question), if any.
	Answer(ctx context.Context, playerID string, questionID int64) (domain.Answer, bool, error)
	// SaveAnswer upserts the answer row. The unique (player, question) key is
	// the backstop that turns a lost race into domain.ErrConflict.
	SaveAnswer(ctx context.Context, a domain.Answer) error
	// LastAnswer returns the player's answer with the highest question weight
	// in the stage, if any.
	LastAnswer(ctx context.Context, playerID string, stage int64) (domain.Answer, bool, error)

	// HintUsage returns the per-kind counter for a player, if any.
	HintUsage(ctx context.Context, playerID, kind string) (domain.HintUsage, bool, error)
	// SaveHintUsage upserts the counter row.
	SaveHintUsage(ctx context.Context, u domain.HintUsage) error
}

// Store abstracts how progress is persisted (in-memory, Postgres).
type Store interface {
	Ledger

	// CreatePlayer inserts the player if absent and reports whether a row was
	// created. Re-creation is a no-op returning the existing record.
	CreatePlayer(ctx context.Context, p domain.Player) (domain.Player, bool, error)

	// Atomic runs fn against a transactional ledger; all mutations commit iff
	// fn returns nil. Conflicting concurrent writes surface as domain.ErrConflict.
	Atomic(ctx context.Context, fn func(tx Ledger) error) error

	// RankingRows returns the raw comparator inputs for every player with at
	// least one answer in the stage. Ordering is unspecified; the ranking
	// engine owns the comparator.
	RankingRows(ctx context.Context, stage int64) ([]domain.RankingRow, error)

	// AnswerStats returns the per-variant distribution of currently recorded
	// answers for a question, plus the total.
	AnswerStats(ctx context.Context, questionID int64) (map[string]int, int, error)

	// PlayersInState lists players currently in the given state.
	PlayersInState(ctx context.Context, state domain.State) ([]domain.Player, error)

	// ResetProgress clears the answer and hint ledgers and rewinds every
	// player to INIT. Player rows themselves persist.
	ResetProgress(ctx context.Context) error

	// Property reads a runtime property (e.g. the active stage override).
	Property(ctx context.Context, key string) (string, bool, error)
	// SetProperty stores a runtime property.
	SetProperty(ctx context.Context, key, value string) error
}
