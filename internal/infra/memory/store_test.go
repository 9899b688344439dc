package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
	"quiz-ladder-service/internal/infra/memory"
)

var storeClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.NewStore(catalog.NewLoaderRepository(memory.NewStaticCatalogLoader(map[int64][]domain.Question{
		1: {
			{ID: 1, Stage: 1, Text: "Q1", Weight: 1, Variants: []domain.Variant{
				{QuestionID: 1, ID: "a", Text: "right", Correct: true},
				{QuestionID: 1, ID: "b", Text: "wrong"},
			}},
			{ID: 2, Stage: 1, Text: "Q2", Weight: 2, Variants: []domain.Variant{
				{QuestionID: 2, ID: "a", Text: "right", Correct: true},
				{QuestionID: 2, ID: "b", Text: "wrong"},
			}},
		},
	})))
}

func TestCreatePlayerIdempotent(t *testing.T) {
	store := newStore(t)

	p, created, err := store.CreatePlayer(context.Background(), domain.Player{ID: "u1", Name: "Alice", State: domain.StateInit})
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	p, created, err = store.CreatePlayer(context.Background(), domain.Player{ID: "u1", Name: "Imposter", State: domain.StateInit})
	if err != nil || created {
		t.Fatalf("re-create: created=%v err=%v", created, err)
	}
	if p.Name != "Alice" {
		t.Fatalf("re-create must return the original row, got %+v", p)
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	store := newStore(t)
	if _, _, err := store.CreatePlayer(context.Background(), domain.Player{ID: "u1", State: domain.StateInit}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := store.Atomic(context.Background(), func(tx game.Ledger) error {
		if err := tx.SaveAnswer(context.Background(), domain.Answer{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true}); err != nil {
			return err
		}
		p, err := tx.Player(context.Background(), "u1")
		if err != nil {
			return err
		}
		p.State = domain.StatePlay
		if err := tx.SavePlayer(context.Background(), p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the transaction error back, got %v", err)
	}

	if _, ok, _ := store.Answer(context.Background(), "u1", 1); ok {
		t.Fatalf("rolled-back answer must not be visible")
	}
	p, err := store.Player(context.Background(), "u1")
	if err != nil || p.State != domain.StateInit {
		t.Fatalf("rolled-back state must not be visible: %+v err=%v", p, err)
	}
}

func TestAtomicCommitsOnSuccess(t *testing.T) {
	store := newStore(t)
	if _, _, err := store.CreatePlayer(context.Background(), domain.Player{ID: "u1", State: domain.StateInit}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.Atomic(context.Background(), func(tx game.Ledger) error {
		return tx.SaveAnswer(context.Background(), domain.Answer{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true, AnsweredAt: storeClock})
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
	a, ok, err := store.Answer(context.Background(), "u1", 1)
	if err != nil || !ok || !a.Passed {
		t.Fatalf("committed answer missing: %+v ok=%v err=%v", a, ok, err)
	}
}

func TestLastAnswerPicksHighestWeight(t *testing.T) {
	store := newStore(t)
	if _, _, err := store.CreatePlayer(context.Background(), domain.Player{ID: "u1", State: domain.StateInit}); err != nil {
		t.Fatalf("create: %v", err)
	}
	seed := []domain.Answer{
		{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true, AnsweredAt: storeClock},
		{PlayerID: "u1", QuestionID: 2, VariantID: "b", Tries: 1, AnsweredAt: storeClock.Add(time.Minute)},
	}
	for _, a := range seed {
		if err := store.SaveAnswer(context.Background(), a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	last, ok, err := store.LastAnswer(context.Background(), "u1", 1)
	if err != nil || !ok {
		t.Fatalf("last answer: ok=%v err=%v", ok, err)
	}
	if last.QuestionID != 2 {
		t.Fatalf("want the highest-weight answered question, got %d", last.QuestionID)
	}
}

func TestRankingRowsAggregation(t *testing.T) {
	store := newStore(t)
	for _, p := range []domain.Player{
		{ID: "u1", Name: "Alice", ChatID: 1, State: domain.StatePlay},
		{ID: "u2", Name: "Bob", ChatID: 2, State: domain.StatePlay},
		{ID: "u3", Name: "Carol", ChatID: 3, State: domain.StateInit},
	} {
		if _, _, err := store.CreatePlayer(context.Background(), p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	answers := []domain.Answer{
		{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true, AnsweredAt: storeClock},
		{PlayerID: "u1", QuestionID: 2, VariantID: "a", Tries: 2, Passed: true, AnsweredAt: storeClock.Add(time.Minute)},
		{PlayerID: "u2", QuestionID: 1, VariantID: "b", Tries: 2},
	}
	for _, a := range answers {
		if err := store.SaveAnswer(context.Background(), a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.SaveHintUsage(context.Background(), domain.HintUsage{PlayerID: "u1", Kind: "fifty", Count: 1}); err != nil {
		t.Fatalf("save hint: %v", err)
	}

	rows, err := store.RankingRows(context.Background(), 1)
	if err != nil {
		t.Fatalf("ranking rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("players without answers must not appear, got %d rows", len(rows))
	}
	byID := make(map[string]domain.RankingRow, len(rows))
	for _, r := range rows {
		byID[r.PlayerID] = r
	}
	u1 := byID["u1"]
	if u1.Passed != 2 || u1.SumTries != 3 || u1.HintCount != 1 || !u1.LastPassed.Equal(storeClock.Add(time.Minute)) {
		t.Fatalf("u1 aggregation wrong: %+v", u1)
	}
	u2 := byID["u2"]
	if u2.Passed != 0 || u2.SumTries != 2 || u2.HintCount != 0 {
		t.Fatalf("u2 aggregation wrong: %+v", u2)
	}
}

func TestAnswerStats(t *testing.T) {
	store := newStore(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		if _, _, err := store.CreatePlayer(context.Background(), domain.Player{ID: id, State: domain.StateInit}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	for _, a := range []domain.Answer{
		{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true},
		{PlayerID: "u2", QuestionID: 1, VariantID: "b", Tries: 1},
		{PlayerID: "u3", QuestionID: 2, VariantID: "a", Tries: 1, Passed: true},
	} {
		if err := store.SaveAnswer(context.Background(), a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	dist, total, err := store.AnswerStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if total != 2 || dist["a"] != 1 || dist["b"] != 1 {
		t.Fatalf("unexpected stats total=%d dist=%v", total, dist)
	}
}

func TestResetProgress(t *testing.T) {
	store := newStore(t)
	if _, _, err := store.CreatePlayer(context.Background(), domain.Player{ID: "u1", State: domain.StateWin}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SaveAnswer(context.Background(), domain.Answer{PlayerID: "u1", QuestionID: 1, VariantID: "a", Tries: 1, Passed: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveHintUsage(context.Background(), domain.HintUsage{PlayerID: "u1", Kind: "fifty", Count: 1}); err != nil {
		t.Fatalf("save hint: %v", err)
	}

	if err := store.ResetProgress(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, ok, _ := store.Answer(context.Background(), "u1", 1); ok {
		t.Fatalf("answers must be cleared")
	}
	if _, ok, _ := store.HintUsage(context.Background(), "u1", "fifty"); ok {
		t.Fatalf("hint counters must be cleared")
	}
	p, err := store.Player(context.Background(), "u1")
	if err != nil || p.State != domain.StateInit {
		t.Fatalf("players must survive with state INIT: %+v err=%v", p, err)
	}
}

func TestProperties(t *testing.T) {
	store := newStore(t)

	if _, ok, err := store.Property(context.Background(), "game_stage"); ok || err != nil {
		t.Fatalf("unset property: ok=%v err=%v", ok, err)
	}
	if err := store.SetProperty(context.Background(), "game_stage", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := store.Property(context.Background(), "game_stage")
	if err != nil || !ok || v != "2" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := store.SetProperty(context.Background(), "game_stage", "3"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ := store.Property(context.Background(), "game_stage"); v != "3" {
		t.Fatalf("overwrite must win, got %q", v)
	}
}

func TestSavePlayerUnknown(t *testing.T) {
	store := newStore(t)
	err := store.SavePlayer(context.Background(), domain.Player{ID: "ghost"})
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("want ErrPlayerNotFound, got %v", err)
	}
}
