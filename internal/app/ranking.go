package app

import (
	"sort"

	"practice-duel-service/internal/domain"
)

// AllAnswered reports whether every participant has an attempt for every item.
func AllAnswered(state domain.RoomState) bool {
	if len(state.Room.Participants) == 0 {
		return false
	}
	counts := make(map[string]int, len(state.Room.Participants))
	for _, a := range state.Attempts {
		counts[a.Participant]++
	}
	for _, id := range state.Room.Participants {
		if counts[id] != len(state.Room.ItemIDs) {
			return false
		}
	}
	return true
}

// ComputeRankings orders participants by score (desc) then average latency (asc)
// and assigns dense ranks. Only exact ties on both keys share a rank.
func ComputeRankings(state domain.RoomState) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(state.Room.Participants))
	for _, id := range state.Room.Participants {
		entry := domain.RankingEntry{Participant: id}
		var elapsed int64
		attempts := state.AttemptsBy(id)
		for _, a := range attempts {
			entry.Score += a.Score
			if a.Correct {
				entry.CorrectCount++
			}
			elapsed += a.ElapsedMs
		}
		if len(attempts) > 0 {
			entry.AvgLatencyMs = float64(elapsed) / float64(len(attempts))
		}
		entries = append(entries, entry)
	}

	// Stable on join order so exact ties always come out the same way.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].AvgLatencyMs < entries[j].AvgLatencyMs
	})

	rank := 0
	for i := range entries {
		if i == 0 || !sameStanding(entries[i-1], entries[i]) {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}

func sameStanding(a, b domain.RankingEntry) bool {
	return a.Score == b.Score && a.AvgLatencyMs == b.AvgLatencyMs
}
