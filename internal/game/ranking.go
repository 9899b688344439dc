package game

import (
	"sort"

	"quiz-ladder-service/internal/domain"
)

// betterThan is the single leaderboard comparator, best first: more passed
// questions, then fewer total tries, then fewer hints, then the earlier last
// passing answer. Keeping it in one place guarantees in-process ranking and
// any store-side ordering can never drift apart.
func betterThan(a, b domain.RankingRow) bool {
	if a.Passed != b.Passed {
		return a.Passed > b.Passed
	}
	if a.SumTries != b.SumTries {
		return a.SumTries < b.SumTries
	}
	if a.HintCount != b.HintCount {
		return a.HintCount < b.HintCount
	}
	return a.LastPassed.Before(b.LastPassed)
}

// sameTuple reports whether two rows tie on all four comparator keys.
func sameTuple(a, b domain.RankingRow) bool {
	return a.Passed == b.Passed &&
		a.SumTries == b.SumTries &&
		a.HintCount == b.HintCount &&
		a.LastPassed.Equal(b.LastPassed)
}

// rankRows sorts rows best-first and assigns dense ranks: tied tuples share a
// rank and the next distinct tuple gets the count of strictly better tuples
// plus one, so no rank numbers are skipped.
func rankRows(rows []domain.RankingRow) []domain.RankingRow {
	sort.SliceStable(rows, func(i, j int) bool {
		if sameTuple(rows[i], rows[j]) {
			// Deterministic output order inside a tie; the rank itself is shared.
			return rows[i].PlayerID < rows[j].PlayerID
		}
		return betterThan(rows[i], rows[j])
	})

	rank := 0
	for i := range rows {
		if i == 0 || !sameTuple(rows[i], rows[i-1]) {
			rank++
		}
		rows[i].Rank = rank
	}
	return rows
}

// rankOf returns the dense rank of playerID within rows, or false when the
// player has no row (no recorded answers means unranked, never rank zero).
func rankOf(rows []domain.RankingRow, playerID string) (int, bool) {
	var target *domain.RankingRow
	for i := range rows {
		if rows[i].PlayerID == playerID {
			target = &rows[i]
			break
		}
	}
	if target == nil {
		return 0, false
	}

	distinct := make([]domain.RankingRow, 0, len(rows))
	for _, row := range rows {
		if !betterThan(row, *target) {
			continue
		}
		dup := false
		for _, seen := range distinct {
			if sameTuple(seen, row) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, row)
		}
	}
	return len(distinct) + 1, true
}
