package game

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
)

// stageProperty is the runtime override for the active stage; admins flip it
// mid-game without a restart.
const stageProperty = "game_stage"

// Config carries the tunable game rules.
type Config struct {
	RetryLimit      int
	HintLimit       int
	LeaderboardSize int
	Stage           int64
}

func (c Config) withDefaults() Config {
	if c.RetryLimit <= 0 {
		c.RetryLimit = 2
	}
	if c.HintLimit <= 0 {
		c.HintLimit = 1
	}
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = 10
	}
	if c.Stage <= 0 {
		c.Stage = 1
	}
	return c
}

// Service contains the core game use cases: player progression, the answer
// and hint ledgers, and the leaderboard.
type Service struct {
	store    Store
	catalogs catalog.Repository
	cfg      Config
	machine  Machine
	hub      *hub
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewService(store Store, catalogs catalog.Repository, cfg Config) *Service {
	return NewServiceWithClock(store, catalogs, cfg, time.Now)
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(store Store, catalogs catalog.Repository, cfg Config, now func() time.Time) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store:    store,
		catalogs: catalogs,
		cfg:      cfg,
		machine:  NewMachine(cfg.RetryLimit),
		hub:      newHub(),
		now:      now,
		rnd:      rand.New(rand.NewSource(now().UnixNano())),
	}
}

// Progression is the machine's verdict plus everything the transport needs to
// answer the player.
type Progression struct {
	Player  domain.Player
	Prompts []domain.Prompt
	Next    *domain.Question
}

// SubmitResult summarizes one answer submission.
type SubmitResult struct {
	Outcome domain.AnswerOutcome
	Player  domain.Player
	Answer  domain.Answer
	Next    *domain.Question
}

// GetOrCreatePlayer registers a player on first contact. Re-registration is a
// no-op returning the existing record; created reports which case happened.
func (s *Service) GetOrCreatePlayer(ctx context.Context, id, name string, chatID int64) (domain.Player, bool, error) {
	return s.store.CreatePlayer(ctx, domain.Player{
		ID:           id,
		Name:         name,
		ChatID:       chatID,
		State:        domain.StateInit,
		RegisteredAt: s.now(),
	})
}

// ActiveStage resolves the stage to play: the runtime property when set,
// otherwise the configured default.
func (s *Service) ActiveStage(ctx context.Context) (int64, error) {
	raw, ok, err := s.store.Property(ctx, stageProperty)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.cfg.Stage, nil
	}
	stage, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return stage, nil
}

// SetStage switches the active stage after checking the catalog actually has
// it. Players in terminal states get rebuilt from history on their next event.
func (s *Service) SetStage(ctx context.Context, stage int64) error {
	if _, err := s.catalogs.GetStage(ctx, stage); err != nil {
		return err
	}
	return s.store.SetProperty(ctx, stageProperty, strconv.FormatInt(stage, 10))
}

// GetProgression is the read model: the player as persisted plus the
// question the sequencer would serve next. It never mutates state.
func (s *Service) GetProgression(ctx context.Context, playerID string) (Progression, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return Progression{}, err
	}
	player, err := s.store.Player(ctx, playerID)
	if err != nil {
		return Progression{}, err
	}
	last, err := s.lastAnswer(ctx, playerID, stage.ID())
	if err != nil {
		return Progression{}, err
	}
	next, ok, err := NextQuestion(stage, last)
	if err != nil {
		return Progression{}, err
	}
	prog := Progression{Player: player}
	if ok {
		prog.Next = &next
	}
	return prog, nil
}

// Advance runs the transition policy for a start command or plain message,
// persists the resulting state, and tells the caller what to present.
func (s *Service) Advance(ctx context.Context, playerID string) (Progression, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return Progression{}, err
	}
	player, err := s.store.Player(ctx, playerID)
	if err != nil {
		return Progression{}, err
	}
	last, err := s.lastAnswer(ctx, playerID, stage.ID())
	if err != nil {
		return Progression{}, err
	}

	step, err := s.machine.Step(player, stage, last)
	if err != nil {
		return Progression{}, err
	}
	player, err = s.persistState(ctx, player, step.State)
	if err != nil {
		return Progression{}, err
	}
	return Progression{Player: player, Prompts: step.Prompts, Next: step.Next}, nil
}

// SubmitAnswer records one attempt at a question. The whole mutation runs in
// a single transaction keyed by (player, question); the sole persisted
// artifact is the upserted answer row plus the player's new state.
func (s *Service) SubmitAnswer(ctx context.Context, playerID string, questionID int64, variantID string, now time.Time) (SubmitResult, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	question, ok := stage.Question(questionID)
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}
	variant, ok := question.Variant(variantID)
	if !ok {
		return SubmitResult{}, domain.ErrVariantNotFound
	}

	var result SubmitResult
	err = s.withRetry(func() error {
		return s.store.Atomic(ctx, func(tx Ledger) error {
			player, err := tx.Player(ctx, playerID)
			if err != nil {
				return err
			}

			answer, exists, err := tx.Answer(ctx, playerID, questionID)
			if err != nil {
				return err
			}
			if exists && answer.Passed {
				// Completed questions below the frontier are rejected
				// silently so retries delivered twice can never double-count.
				result = SubmitResult{Outcome: domain.AnswerAlreadyRecorded, Player: player, Answer: answer}
				return nil
			}
			if !exists {
				answer = domain.Answer{PlayerID: playerID, QuestionID: questionID}
			}
			answer.Tries++
			answer.VariantID = variantID
			answer.AnsweredAt = now
			answer.Passed = variant.Correct && answer.Tries <= s.cfg.RetryLimit
			if err := tx.SaveAnswer(ctx, answer); err != nil {
				return err
			}

			last, err := s.lastAnswerTx(ctx, tx, playerID, stage.ID())
			if err != nil {
				return err
			}
			state, err := s.machine.Recompute(stage, last)
			if err != nil {
				return err
			}
			player.State = state
			if err := tx.SavePlayer(ctx, player); err != nil {
				return err
			}

			result = SubmitResult{Outcome: outcomeFor(answer, state), Player: player, Answer: answer}
			return nil
		})
	})
	if err != nil {
		return SubmitResult{}, err
	}

	switch result.Outcome {
	case domain.AnswerPassed, domain.AnswerRetry, domain.AnswerAlreadyRecorded:
		if next, ok, err := NextQuestion(stage, &result.Answer); err == nil && ok && !result.Player.State.Terminal() {
			result.Next = &next
		}
	}
	if result.Outcome != domain.AnswerAlreadyRecorded {
		s.broadcastLeaderboard(ctx, stage)
	}
	return result, nil
}

func outcomeFor(answer domain.Answer, state domain.State) domain.AnswerOutcome {
	if answer.Passed {
		return domain.AnswerPassed
	}
	if state == domain.StateLose {
		return domain.AnswerLost
	}
	return domain.AnswerRetry
}

// RequestHint charges one use of a hint kind and, when granted, computes the
// kind's payload from committed answer data.
func (s *Service) RequestHint(ctx context.Context, playerID, kind string, questionID int64) (domain.HintOutcome, error) {
	if !KnownHintKind(kind) {
		return domain.HintOutcome{}, domain.ErrUnknownHintKind
	}
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return domain.HintOutcome{}, err
	}
	question, ok := stage.Question(questionID)
	if !ok {
		return domain.HintOutcome{}, domain.ErrQuestionNotFound
	}
	if _, err := s.store.Player(ctx, playerID); err != nil {
		return domain.HintOutcome{}, err
	}

	granted := false
	err = s.withRetry(func() error {
		return s.store.Atomic(ctx, func(tx Ledger) error {
			usage, ok, err := tx.HintUsage(ctx, playerID, kind)
			if err != nil {
				return err
			}
			if !ok {
				usage = domain.HintUsage{PlayerID: playerID, Kind: kind}
			}
			if usage.Count+1 > s.cfg.HintLimit {
				granted = false
				return nil
			}
			usage.Count++
			if err := tx.SaveHintUsage(ctx, usage); err != nil {
				return err
			}
			granted = true
			return nil
		})
	})
	if err != nil {
		return domain.HintOutcome{}, err
	}
	if !granted {
		return domain.HintOutcome{Granted: false, Kind: kind}, nil
	}

	payload, err := s.hintPayloadLocked(ctx, kind, question)
	if err != nil {
		return domain.HintOutcome{}, err
	}
	return domain.HintOutcome{Granted: true, Kind: kind, Payload: payload}, nil
}

// SubmitContact handles free text while the machine waits for contact info.
// A restart command skips recording; anything else is appended to the
// player's contact field before the state is rebuilt from history.
func (s *Service) SubmitContact(ctx context.Context, playerID, text string, restart bool) (Progression, error) {
	player, err := s.store.Player(ctx, playerID)
	if err != nil {
		return Progression{}, err
	}
	if player.State != domain.StateContactRequest {
		return s.Advance(ctx, playerID)
	}

	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return Progression{}, err
	}

	if restart {
		player.State = domain.StateContact
		step, err := s.machine.Step(player, stage, nil)
		if err != nil {
			return Progression{}, err
		}
		player, err = s.persistState(ctx, player, step.State)
		if err != nil {
			return Progression{}, err
		}
		return Progression{Player: player, Prompts: step.Prompts, Next: step.Next}, nil
	}

	last, err := s.lastAnswer(ctx, playerID, stage.ID())
	if err != nil {
		return Progression{}, err
	}
	state, err := s.machine.Recompute(stage, last)
	if err != nil {
		return Progression{}, err
	}

	err = s.store.Atomic(ctx, func(tx Ledger) error {
		p, err := tx.Player(ctx, playerID)
		if err != nil {
			return err
		}
		p.Contact = strings.TrimSpace(strings.TrimSpace(p.Contact) + "\n" + strings.TrimSpace(text))
		p.State = state
		player = p
		return tx.SavePlayer(ctx, p)
	})
	if err != nil {
		return Progression{}, err
	}

	step, err := s.machine.Step(player, stage, last)
	if err != nil {
		return Progression{}, err
	}
	player, err = s.persistState(ctx, player, step.State)
	if err != nil {
		return Progression{}, err
	}
	return Progression{Player: player, Prompts: step.Prompts, Next: step.Next}, nil
}

// Leaderboard computes the dense-ranked scoreboard for the active stage.
// limit <= 0 falls back to the configured leaderboard size.
func (s *Service) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return s.leaderboardFor(ctx, stage, limit)
}

func (s *Service) leaderboardFor(ctx context.Context, stage *catalog.Stage, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = s.cfg.LeaderboardSize
	}
	rows, err := s.store.RankingRows(ctx, stage.ID())
	if err != nil {
		return domain.Leaderboard{}, err
	}
	rows = rankRows(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return domain.Leaderboard{
		Stage:         stage.ID(),
		Rows:          rows,
		QuestionCount: stage.Count(),
		UpdatedAt:     s.now(),
	}, nil
}

// PlayerRank returns the player's dense rank in the active stage, computed
// over the full ordering even when the player is outside any top-N window.
// ok is false for players with no recorded answers.
func (s *Service) PlayerRank(ctx context.Context, playerID string) (int, bool, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return 0, false, err
	}
	rows, err := s.store.RankingRows(ctx, stage.ID())
	if err != nil {
		return 0, false, err
	}
	rank, ok := rankOf(rows, playerID)
	return rank, ok, nil
}

// ResetAllProgress clears the answer and hint ledgers. Player rows persist;
// their next event starts from INIT as if freshly registered.
func (s *Service) ResetAllProgress(ctx context.Context) error {
	return s.store.ResetProgress(ctx)
}

// BulkAdvanceLosers gives every lost player another chance at the question
// that beat them: tries go back to zero and the state becomes REPEAT. onEach
// runs after the player's transaction commits, so a failing notification can
// never roll back the advance.
func (s *Service) BulkAdvanceLosers(ctx context.Context, onEach func(domain.Player)) (int, error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return 0, err
	}
	losers, err := s.store.PlayersInState(ctx, domain.StateLose)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, loser := range losers {
		var updated domain.Player
		err := s.store.Atomic(ctx, func(tx Ledger) error {
			p, err := tx.Player(ctx, loser.ID)
			if err != nil {
				return err
			}
			if p.State != domain.StateLose {
				return nil
			}
			last, ok, err := tx.LastAnswer(ctx, p.ID, stage.ID())
			if err != nil {
				return err
			}
			if ok && !last.Passed {
				last.Tries = 0
				if err := tx.SaveAnswer(ctx, last); err != nil {
					return err
				}
			}
			p.State = domain.StateRepeat
			if err := tx.SavePlayer(ctx, p); err != nil {
				return err
			}
			updated = p
			return nil
		})
		if err != nil {
			return advanced, err
		}
		if updated.ID == "" {
			continue
		}
		advanced++
		if onEach != nil {
			onEach(updated)
		}
	}
	return advanced, nil
}

// Subscribe returns a channel of leaderboard snapshots for the active stage,
// primed with the current one. The caller must invoke cancel to avoid leaks.
func (s *Service) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	stage, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.leaderboardFor(ctx, stage, 0)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(stage.ID(), initial)
	return ch, cancel, nil
}

func (s *Service) broadcastLeaderboard(ctx context.Context, stage *catalog.Stage) {
	lb, err := s.leaderboardFor(ctx, stage, 0)
	if err != nil {
		log.Printf("leaderboard broadcast skipped: %v", err)
		return
	}
	s.hub.broadcast(lb)
}

func (s *Service) activeCatalog(ctx context.Context) (*catalog.Stage, error) {
	stageID, err := s.ActiveStage(ctx)
	if err != nil {
		return nil, err
	}
	return s.catalogs.GetStage(ctx, stageID)
}

func (s *Service) lastAnswer(ctx context.Context, playerID string, stage int64) (*domain.Answer, error) {
	answer, ok, err := s.store.LastAnswer(ctx, playerID, stage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &answer, nil
}

func (s *Service) lastAnswerTx(ctx context.Context, tx Ledger, playerID string, stage int64) (*domain.Answer, error) {
	answer, ok, err := tx.LastAnswer(ctx, playerID, stage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &answer, nil
}

func (s *Service) persistState(ctx context.Context, player domain.Player, state domain.State) (domain.Player, error) {
	if player.State == state {
		return player, nil
	}
	err := s.store.Atomic(ctx, func(tx Ledger) error {
		p, err := tx.Player(ctx, player.ID)
		if err != nil {
			return err
		}
		p.State = state
		player = p
		return tx.SavePlayer(ctx, p)
	})
	if err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// withRetry re-runs fn once after a write conflict; a second conflict is
// surfaced to the caller as transient.
func (s *Service) withRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, domain.ErrConflict) {
		return fn()
	}
	return err
}

func (s *Service) hintPayloadLocked(ctx context.Context, kind string, question domain.Question) (domain.HintPayload, error) {
	if kind == HintFifty {
		s.rndMu.Lock()
		defer s.rndMu.Unlock()
	}
	return s.hintPayload(ctx, kind, question)
}
