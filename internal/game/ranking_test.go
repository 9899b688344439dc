package game

import (
	"testing"
	"time"

	"quiz-ladder-service/internal/domain"
)

var rankClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBetterThanKeyOrder(t *testing.T) {
	base := domain.RankingRow{Passed: 3, SumTries: 5, HintCount: 1, LastPassed: rankClock}

	cases := []struct {
		name   string
		a, b   domain.RankingRow
		better bool
	}{
		{"more passed wins", domain.RankingRow{Passed: 4, SumTries: 9}, base, true},
		{"fewer tries breaks passed tie", domain.RankingRow{Passed: 3, SumTries: 4, HintCount: 9}, base, true},
		{"fewer hints breaks tries tie", domain.RankingRow{Passed: 3, SumTries: 5, HintCount: 0}, base, true},
		{"earlier finish breaks hints tie", domain.RankingRow{Passed: 3, SumTries: 5, HintCount: 1, LastPassed: rankClock.Add(-time.Minute)}, base, true},
		{"identical tuple is not better", base, base, false},
	}
	for _, tc := range cases {
		if got := betterThan(tc.a, tc.b); got != tc.better {
			t.Fatalf("%s: betterThan=%v, want %v", tc.name, got, tc.better)
		}
	}
}

func TestRankRowsDenseRanking(t *testing.T) {
	rows := []domain.RankingRow{
		{PlayerID: "c", Passed: 2, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "a", Passed: 3, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "b", Passed: 3, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "d", Passed: 1, SumTries: 2, LastPassed: rankClock},
	}

	ranked := rankRows(rows)

	wantOrder := []string{"a", "b", "c", "d"}
	wantRanks := []int{1, 1, 2, 3}
	for i, row := range ranked {
		if row.PlayerID != wantOrder[i] || row.Rank != wantRanks[i] {
			t.Fatalf("row %d: got %s rank %d, want %s rank %d", i, row.PlayerID, row.Rank, wantOrder[i], wantRanks[i])
		}
	}
}

func TestRankRowsTieOrderIsDeterministic(t *testing.T) {
	tie := func(id string) domain.RankingRow {
		return domain.RankingRow{PlayerID: id, Passed: 2, SumTries: 2, LastPassed: rankClock}
	}
	first := rankRows([]domain.RankingRow{tie("z"), tie("a"), tie("m")})
	second := rankRows([]domain.RankingRow{tie("m"), tie("z"), tie("a")})

	for i := range first {
		if first[i].PlayerID != second[i].PlayerID {
			t.Fatalf("tie order depends on input order: %v vs %v", first, second)
		}
		if first[i].Rank != 1 {
			t.Fatalf("all tied rows share rank 1, got %d for %s", first[i].Rank, first[i].PlayerID)
		}
	}
}

func TestRankOf(t *testing.T) {
	rows := []domain.RankingRow{
		{PlayerID: "a", Passed: 3, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "b", Passed: 3, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "c", Passed: 2, SumTries: 3, LastPassed: rankClock},
		{PlayerID: "d", Passed: 1, SumTries: 2, LastPassed: rankClock},
	}

	// Rank is computed over the full ordering, independent of any top-N cut.
	for id, want := range map[string]int{"a": 1, "b": 1, "c": 2, "d": 3} {
		rank, ok := rankOf(rows, id)
		if !ok || rank != want {
			t.Fatalf("rankOf(%s)=%d ok=%v, want %d", id, rank, ok, want)
		}
	}

	if rank, ok := rankOf(rows, "ghost"); ok || rank != 0 {
		t.Fatalf("players without answers are unranked, got rank=%d ok=%v", rank, ok)
	}
}
