package service

import (
	"codementor/internal/model"
)

// Leaderboard accumulates per-name score and time across rounds, keeping
// insertion order.
type Leaderboard struct {
	entries []model.Standing
	index   map[string]int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{index: make(map[string]int)}
}

// Record adds score and speed to name's entry, creating it on first use.
func (b *Leaderboard) Record(name string, score int, speed float64) {
	if i, ok := b.index[name]; ok {
		b.entries[i].Score += score
		b.entries[i].Speed += speed
		return
	}
	b.index[name] = len(b.entries)
	b.entries = append(b.entries, model.Standing{Name: name, Score: score, Speed: speed})
}

// Entries returns a copy in insertion order.
func (b *Leaderboard) Entries() []model.Standing {
	return append([]model.Standing{}, b.entries...)
}

// Sorted returns score desc, then time asc, then name.
func (b *Leaderboard) Sorted() []model.Standing {
	out := b.Entries()
	model.SortStandings(out)
	return out
}

func (b *Leaderboard) Len() int { return len(b.entries) }

func leaderboardFrom(entries []model.Standing) *Leaderboard {
	b := NewLeaderboard()
	for _, e := range entries {
		b.Record(e.Name, e.Score, e.Speed)
	}
	return b
}
