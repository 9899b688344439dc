package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
)

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID           string    `bun:"player_id,pk"`
	Name         string    `bun:"name"`
	ChatID       int64     `bun:"chat_id"`
	State        string    `bun:"state,notnull"`
	Contact      string    `bun:"contact"`
	RegisteredAt time.Time `bun:"registered_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	PlayerID   string    `bun:"player_id,pk"`
	QuestionID int64     `bun:"question_id,pk"`
	VariantID  string    `bun:"variant_id,notnull"`
	Tries      int       `bun:"tries,notnull"`
	Passed     bool      `bun:"passed,notnull"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

type hintRow struct {
	bun.BaseModel `bun:"table:hint_usages,alias:h"`

	PlayerID string `bun:"player_id,pk"`
	Kind     string `bun:"kind,pk"`
	Uses     int    `bun:"uses,notnull"`
}

type propertyRow struct {
	bun.BaseModel `bun:"table:properties,alias:pr"`

	Key   string `bun:"property_key,pk"`
	Value string `bun:"property_value,notnull"`
}

// Store is the bun-backed implementation of game.Store. Mutations inside
// Atomic re-read their rows with FOR UPDATE; the composite primary keys on
// answers and hint_usages are the backstop that turns a lost race into a
// detectable conflict instead of silent corruption.
type Store struct {
	ledger
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{ledger: ledger{db: db}, db: db}
}

var _ game.Store = (*Store)(nil)

func (s *Store) CreatePlayer(ctx context.Context, p domain.Player) (domain.Player, bool, error) {
	row := toPlayerRow(p)
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (player_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Player{}, false, mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return p, true, nil
	}
	existing, err := s.Player(ctx, p.ID)
	if err != nil {
		return domain.Player{}, false, err
	}
	return existing, false, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx game.Ledger) error) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ledger{db: tx, forUpdate: true})
	})
	return mapErr(err)
}

func (s *Store) RankingRows(ctx context.Context, stage int64) ([]domain.RankingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.player_id, p.name, p.chat_id,
		       COUNT(*) FILTER (WHERE a.passed)                    AS passed,
		       COALESCE(SUM(a.tries), 0)                           AS sum_tries,
		       COALESCE(h.uses, 0)                                 AS hint_uses,
		       MAX(a.answered_at) FILTER (WHERE a.passed)          AS last_passed
		FROM players p
		JOIN answers a   ON a.player_id = p.player_id
		JOIN questions q ON q.question_id = a.question_id AND q.stage = ?
		LEFT JOIN (
			SELECT player_id, SUM(uses) AS uses FROM hint_usages GROUP BY player_id
		) h ON h.player_id = p.player_id
		GROUP BY p.player_id, p.name, p.chat_id, h.uses`, stage)
	if err != nil {
		return nil, fmt.Errorf("ranking rows: %w", err)
	}
	defer rows.Close()

	var out []domain.RankingRow
	for rows.Next() {
		var (
			row        domain.RankingRow
			lastPassed sql.NullTime
		)
		if err := rows.Scan(&row.PlayerID, &row.Name, &row.ChatID, &row.Passed, &row.SumTries, &row.HintCount, &lastPassed); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		if lastPassed.Valid {
			row.LastPassed = lastPassed.Time
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) AnswerStats(ctx context.Context, questionID int64) (map[string]int, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, COUNT(*) FROM answers WHERE question_id = ? GROUP BY variant_id`, questionID)
	if err != nil {
		return nil, 0, fmt.Errorf("answer stats: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			variantID string
			count     int
		)
		if err := rows.Scan(&variantID, &count); err != nil {
			return nil, 0, fmt.Errorf("scan answer stats: %w", err)
		}
		dist[variantID] = count
		total += count
	}
	return dist, total, rows.Err()
}

func (s *Store) PlayersInState(ctx context.Context, state domain.State) ([]domain.Player, error) {
	var rows []playerRow
	if err := s.db.NewSelect().Model(&rows).Where("state = ?", string(state)).Scan(ctx); err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Player, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ResetProgress(ctx context.Context) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*hintRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().Model((*playerRow)(nil)).
			Set("state = ?", string(domain.StateInit)).
			Where("TRUE").
			Exec(ctx)
		return err
	})
	return mapErr(err)
}

func (s *Store) Property(ctx context.Context, key string) (string, bool, error) {
	var row propertyRow
	err := s.db.NewSelect().Model(&row).Where("property_key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return row.Value, true, nil
}

func (s *Store) SetProperty(ctx context.Context, key, value string) error {
	row := propertyRow{Key: key, Value: value}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (property_key) DO UPDATE").
		Set("property_value = EXCLUDED.property_value").
		Exec(ctx)
	return mapErr(err)
}

// ledger implements game.Ledger over either the root DB or a transaction.
// forUpdate is set inside Atomic so re-reads take row locks.
type ledger struct {
	db        bun.IDB
	forUpdate bool
}

func (l ledger) Player(ctx context.Context, id string) (domain.Player, error) {
	var row playerRow
	q := l.db.NewSelect().Model(&row).Where("player_id = ?", id)
	if l.forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (l ledger) SavePlayer(ctx context.Context, p domain.Player) error {
	row := toPlayerRow(p)
	_, err := l.db.NewUpdate().Model(&row).
		Column("name", "chat_id", "state", "contact").
		WherePK().
		Exec(ctx)
	return mapErr(err)
}

func (l ledger) Answer(ctx context.Context, playerID string, questionID int64) (domain.Answer, bool, error) {
	var row answerRow
	q := l.db.NewSelect().Model(&row).
		Where("a.player_id = ?", playerID).
		Where("a.question_id = ?", questionID)
	if l.forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, mapErr(err)
	}
	return row.toDomain(), true, nil
}

func (l ledger) SaveAnswer(ctx context.Context, a domain.Answer) error {
	row := answerRow{
		PlayerID:   a.PlayerID,
		QuestionID: a.QuestionID,
		VariantID:  a.VariantID,
		Tries:      a.Tries,
		Passed:     a.Passed,
		AnsweredAt: a.AnsweredAt,
	}
	_, err := l.db.NewInsert().Model(&row).
		On("CONFLICT (player_id, question_id) DO UPDATE").
		Set("variant_id = EXCLUDED.variant_id").
		Set("tries = EXCLUDED.tries").
		Set("passed = EXCLUDED.passed").
		Set("answered_at = EXCLUDED.answered_at").
		Exec(ctx)
	return mapErr(err)
}

func (l ledger) LastAnswer(ctx context.Context, playerID string, stage int64) (domain.Answer, bool, error) {
	var row answerRow
	q := l.db.NewSelect().Model(&row).
		Join("JOIN questions AS q ON q.question_id = a.question_id").
		Where("a.player_id = ?", playerID).
		Where("q.stage = ?", stage).
		OrderExpr("q.weight DESC").
		Limit(1)
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, mapErr(err)
	}
	return row.toDomain(), true, nil
}

func (l ledger) HintUsage(ctx context.Context, playerID, kind string) (domain.HintUsage, bool, error) {
	var row hintRow
	q := l.db.NewSelect().Model(&row).
		Where("h.player_id = ?", playerID).
		Where("h.kind = ?", kind)
	if l.forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HintUsage{}, false, nil
	}
	if err != nil {
		return domain.HintUsage{}, false, mapErr(err)
	}
	return domain.HintUsage{PlayerID: row.PlayerID, Kind: row.Kind, Count: row.Uses}, true, nil
}

func (l ledger) SaveHintUsage(ctx context.Context, u domain.HintUsage) error {
	row := hintRow{PlayerID: u.PlayerID, Kind: u.Kind, Uses: u.Count}
	_, err := l.db.NewInsert().Model(&row).
		On("CONFLICT (player_id, kind) DO UPDATE").
		Set("uses = EXCLUDED.uses").
		Exec(ctx)
	return mapErr(err)
}

func toPlayerRow(p domain.Player) playerRow {
	return playerRow{
		ID:           p.ID,
		Name:         p.Name,
		ChatID:       p.ChatID,
		State:        string(p.State),
		Contact:      p.Contact,
		RegisteredAt: p.RegisteredAt,
	}
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:           r.ID,
		Name:         r.Name,
		ChatID:       r.ChatID,
		State:        domain.State(r.State),
		Contact:      r.Contact,
		RegisteredAt: r.RegisteredAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		PlayerID:   r.PlayerID,
		QuestionID: r.QuestionID,
		VariantID:  r.VariantID,
		Tries:      r.Tries,
		Passed:     r.Passed,
		AnsweredAt: r.AnsweredAt,
	}
}

// mapErr translates store-level failures: unique violations and serialization
// failures become domain.ErrConflict so callers can retry the whole operation.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "23505", "40001":
			return domain.ErrConflict
		}
	}
	return err
}
