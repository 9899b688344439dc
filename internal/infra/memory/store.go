package memory

import (
	"context"
	"sync"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
)

type answerKey struct {
	playerID   string
	questionID int64
}

type hintKey struct {
	playerID string
	kind     string
}

// tables is the mutable dataset behind the store. Atomic clones it, mutates
// the clone, and swaps it in on success, so a failed transaction leaves no
// trace.
type tables struct {
	players map[string]domain.Player
	answers map[answerKey]domain.Answer
	hints   map[hintKey]domain.HintUsage
	props   map[string]string
}

func newTables() *tables {
	return &tables{
		players: make(map[string]domain.Player),
		answers: make(map[answerKey]domain.Answer),
		hints:   make(map[hintKey]domain.HintUsage),
		props:   make(map[string]string),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.players {
		c.players[k] = v
	}
	for k, v := range t.answers {
		c.answers[k] = v
	}
	for k, v := range t.hints {
		c.hints[k] = v
	}
	for k, v := range t.props {
		c.props[k] = v
	}
	return c
}

// Store is an in-memory implementation of game.Store, used by tests and the
// no-database mode. A single mutex serializes every mutation, which already
// satisfies the per-player serialization the core requires.
type Store struct {
	mu       sync.Mutex
	catalogs catalog.Repository
	t        *tables
}

func NewStore(catalogs catalog.Repository) *Store {
	return &Store{catalogs: catalogs, t: newTables()}
}

var _ game.Store = (*Store)(nil)

func (s *Store) view() ledger {
	return ledger{t: s.t, catalogs: s.catalogs}
}

func (s *Store) Player(ctx context.Context, id string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Player(ctx, id)
}

func (s *Store) SavePlayer(ctx context.Context, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SavePlayer(ctx, p)
}

func (s *Store) Answer(ctx context.Context, playerID string, questionID int64) (domain.Answer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Answer(ctx, playerID, questionID)
}

func (s *Store) SaveAnswer(ctx context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveAnswer(ctx, a)
}

func (s *Store) LastAnswer(ctx context.Context, playerID string, stage int64) (domain.Answer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().LastAnswer(ctx, playerID, stage)
}

func (s *Store) HintUsage(ctx context.Context, playerID, kind string) (domain.HintUsage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().HintUsage(ctx, playerID, kind)
}

func (s *Store) SaveHintUsage(ctx context.Context, u domain.HintUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveHintUsage(ctx, u)
}

func (s *Store) CreatePlayer(ctx context.Context, p domain.Player) (domain.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.t.players[p.ID]; ok {
		return existing, false, nil
	}
	s.t.players[p.ID] = p
	return p, true, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx game.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scratch := s.t.clone()
	if err := fn(ledger{t: scratch, catalogs: s.catalogs}); err != nil {
		return err
	}
	s.t = scratch
	return nil
}

func (s *Store) RankingRows(ctx context.Context, stage int64) ([]domain.RankingRow, error) {
	stageCat, err := s.catalogs.GetStage(ctx, stage)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[string]*domain.RankingRow)
	for _, q := range stageCat.Questions() {
		for _, p := range s.t.players {
			a, ok := s.t.answers[answerKey{playerID: p.ID, questionID: q.ID}]
			if !ok {
				continue
			}
			row := rows[p.ID]
			if row == nil {
				row = &domain.RankingRow{PlayerID: p.ID, Name: p.Name, ChatID: p.ChatID}
				rows[p.ID] = row
			}
			row.SumTries += a.Tries
			if a.Passed {
				row.Passed++
				if a.AnsweredAt.After(row.LastPassed) {
					row.LastPassed = a.AnsweredAt
				}
			}
		}
	}
	for key, usage := range s.t.hints {
		if row, ok := rows[key.playerID]; ok {
			row.HintCount += usage.Count
		}
	}

	out := make([]domain.RankingRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *Store) AnswerStats(ctx context.Context, questionID int64) (map[string]int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist := make(map[string]int)
	total := 0
	for key, a := range s.t.answers {
		if key.questionID != questionID {
			continue
		}
		dist[a.VariantID]++
		total++
	}
	return dist, total, nil
}

func (s *Store) PlayersInState(ctx context.Context, state domain.State) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Player
	for _, p := range s.t.players {
		if p.State == state {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ResetProgress(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.t.answers = make(map[answerKey]domain.Answer)
	s.t.hints = make(map[hintKey]domain.HintUsage)
	for id, p := range s.t.players {
		p.State = domain.StateInit
		s.t.players[id] = p
	}
	return nil
}

func (s *Store) Property(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.t.props[key]
	return v, ok, nil
}

func (s *Store) SetProperty(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.props[key] = value
	return nil
}

// ledger implements game.Ledger over a tables snapshot. It never locks; the
// Store wraps every call site with its mutex.
type ledger struct {
	t        *tables
	catalogs catalog.Repository
}

func (l ledger) Player(_ context.Context, id string) (domain.Player, error) {
	p, ok := l.t.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (l ledger) SavePlayer(_ context.Context, p domain.Player) error {
	if _, ok := l.t.players[p.ID]; !ok {
		return domain.ErrPlayerNotFound
	}
	l.t.players[p.ID] = p
	return nil
}

func (l ledger) Answer(_ context.Context, playerID string, questionID int64) (domain.Answer, bool, error) {
	a, ok := l.t.answers[answerKey{playerID: playerID, questionID: questionID}]
	return a, ok, nil
}

func (l ledger) SaveAnswer(_ context.Context, a domain.Answer) error {
	l.t.answers[answerKey{playerID: a.PlayerID, questionID: a.QuestionID}] = a
	return nil
}

func (l ledger) LastAnswer(ctx context.Context, playerID string, stage int64) (domain.Answer, bool, error) {
	stageCat, err := l.catalogs.GetStage(ctx, stage)
	if err != nil {
		return domain.Answer{}, false, err
	}
	questions := stageCat.Questions()
	for i := len(questions) - 1; i >= 0; i-- {
		if a, ok := l.t.answers[answerKey{playerID: playerID, questionID: questions[i].ID}]; ok {
			return a, true, nil
		}
	}
	return domain.Answer{}, false, nil
}

func (l ledger) HintUsage(_ context.Context, playerID, kind string) (domain.HintUsage, bool, error) {
	u, ok := l.t.hints[hintKey{playerID: playerID, kind: kind}]
	return u, ok, nil
}

func (l ledger) SaveHintUsage(_ context.Context, u domain.HintUsage) error {
	l.t.hints[hintKey{playerID: u.PlayerID, kind: u.Kind}] = u
	return nil
}
