package service

import (
	"context"
	"sync"
	"time"

	"codementor/internal/cache"
	"codementor/internal/model"

	"goa.design/clue/log"
)

// LeaderboardPublisher receives standings after every change. Publish must
// not block the loop.
type LeaderboardPublisher interface {
	Publish(sessionID string, standings []model.Standing)
}

type NopPublisher struct{}

func (NopPublisher) Publish(string, []model.Standing) {}

// LeaderboardMirror copies standings into Redis from its own goroutine so
// the admin API can serve them after a session is swept. Updates are
// coalesced per session: only the latest standings are written.
type LeaderboardMirror struct {
	cache   cache.LeaderboardCache
	timeout time.Duration

	mu      sync.Mutex
	pending map[string][]model.Standing
	wake    chan struct{}
}

func NewLeaderboardMirror(lb cache.LeaderboardCache) *LeaderboardMirror {
	return &LeaderboardMirror{
		cache:   lb,
		timeout: 2 * time.Second,
		pending: make(map[string][]model.Standing),
		wake:    make(chan struct{}, 1),
	}
}

// Publish records standings as the next write for sessionID, replacing any
// update not yet written.
func (m *LeaderboardMirror) Publish(sessionID string, standings []model.Standing) {
	m.mu.Lock()
	m.pending[sessionID] = standings
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes pending updates until ctx is cancelled.
func (m *LeaderboardMirror) Run(ctx context.Context) {
	for {
		select {
		case <-m.wake:
			m.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *LeaderboardMirror) flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string][]model.Standing)
	m.mu.Unlock()

	for sessionID, standings := range batch {
		wctx, cancel := context.WithTimeout(ctx, m.timeout)
		var err error
		if len(standings) == 0 {
			err = m.cache.Delete(wctx, sessionID)
		} else {
			err = m.cache.Replace(wctx, sessionID, standings)
		}
		cancel()
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "mirror leaderboard"}, log.KV{K: "session", V: sessionID})
		}
	}
}

// Standings reads mirrored standings, best first.
func (m *LeaderboardMirror) Standings(ctx context.Context, sessionID string) ([]model.Standing, error) {
	return m.cache.GetTop(ctx, sessionID, 0)
}
