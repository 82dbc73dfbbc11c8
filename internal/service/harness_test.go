package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"codementor/internal/model"

	"github.com/stretchr/testify/require"
	"goa.design/clue/log"
)

const testSecret = "s3cret"

func testContext() context.Context {
	return log.Context(context.Background(), log.WithOutput(io.Discard))
}

var errBrokenConn = errors.New("broken pipe")

type recConn struct {
	id     string
	msgs   []model.Outbound
	closed bool
	broken bool
}

func newConn(id string) *recConn { return &recConn{id: id} }

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(msg model.Outbound) error {
	if c.broken {
		return errBrokenConn
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recConn) Close() error {
	c.closed = true
	return nil
}

func (c *recConn) Closed() bool { return c.closed }

func (c *recConn) types() []string {
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.OutboundType()
	}
	return out
}

func (c *recConn) reset() { c.msgs = nil }

func lastOf[T model.Outbound](t *testing.T, c *recConn) T {
	t.Helper()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if m, ok := c.msgs[i].(T); ok {
			return m
		}
	}
	var zero T
	t.Fatalf("%s never received %T; got %v", c.id, zero, c.types())
	return zero
}

func allOf[T model.Outbound](c *recConn) []T {
	var out []T
	for _, m := range c.msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(c *recConn, typ string, last bool) int {
	idx := -1
	for i, m := range c.msgs {
		if m.OutboundType() == typ {
			idx = i
			if !last {
				return idx
			}
		}
	}
	return idx
}

// manualLoop runs posted events when drained. With deferGo, blocking work is
// parked until runPending is called.
type manualLoop struct {
	queue   []func(ctx context.Context)
	pending []func()
	deferGo bool
}

func (l *manualLoop) Post(fn func(ctx context.Context)) { l.queue = append(l.queue, fn) }

func (l *manualLoop) Go(fn func()) {
	if l.deferGo {
		l.pending = append(l.pending, fn)
		return
	}
	fn()
}

func (l *manualLoop) drain(ctx context.Context) {
	for len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue = l.queue[1:]
		fn(ctx)
	}
}

func (l *manualLoop) runPending(ctx context.Context) {
	pending := l.pending
	l.pending = nil
	for _, fn := range pending {
		fn()
	}
	l.drain(ctx)
}

type fakeTimer struct {
	fn        func(ctx context.Context)
	cancelled bool
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) Every(_ time.Duration, fn func(ctx context.Context)) func() {
	t := &fakeTimer{fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

func (s *fakeScheduler) active() int {
	n := 0
	for _, t := range s.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type stubEvaluator struct {
	mu    sync.Mutex
	calls []model.EvaluationRequest
	fn    func(req model.EvaluationRequest) (model.Evaluation, error)
}

func (e *stubEvaluator) Evaluate(_ context.Context, req model.EvaluationRequest) (model.Evaluation, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(req)
	}
	return model.Evaluation{Score: 5, Feedback: "ok"}, nil
}

type memSnapshots struct {
	saved map[string]*model.Snapshot
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{saved: make(map[string]*model.Snapshot)} }

func (m *memSnapshots) Save(_ context.Context, snap *model.Snapshot) (string, error) {
	m.saved[snap.SessionID] = snap
	return "mem://" + snap.SessionID, nil
}

func (m *memSnapshots) Load(_ context.Context, id string) (*model.Snapshot, error) {
	snap, ok := m.saved[id]
	if !ok {
		return nil, fmt.Errorf("no snapshot %s", id)
	}
	return snap, nil
}

type recPublisher struct {
	published map[string][]model.Standing
}

func (p *recPublisher) Publish(id string, standings []model.Standing) {
	if p.published == nil {
		p.published = make(map[string][]model.Standing)
	}
	p.published[id] = standings
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	c     *Coordinator
	store *SessionStore
	loop  *manualLoop
	sched *fakeScheduler
	clock *fakeClock
	eval  *stubEvaluator
	snaps *memSnapshots
	pub   *recPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   testContext(),
		store: NewSessionStore(),
		loop:  &manualLoop{},
		sched: &fakeScheduler{},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		eval:  &stubEvaluator{},
		snaps: newMemSnapshots(),
		pub:   &recPublisher{},
	}
	h.c = NewCoordinator(Options{
		Secret:       testSecret,
		Store:        h.store,
		Loop:         h.loop,
		Scheduler:    h.sched,
		Evaluator:    h.eval,
		Snapshots:    h.snaps,
		Publisher:    h.pub,
		Now:          h.clock.Now,
		TickInterval: time.Second,
		PassingScore: 7,
	})
	return h
}

func (h *harness) send(conn *recConn, typ string, payload any) {
	h.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(h.t, err)
	frame, err := json.Marshal(model.Envelope{Type: typ, Payload: raw})
	require.NoError(h.t, err)
	h.c.HandleMessage(h.ctx, conn, frame)
	h.loop.drain(h.ctx)
}

// close mirrors the transport: the connection is closed before HandleClose.
func (h *harness) close(conn *recConn) {
	conn.closed = true
	h.c.HandleClose(h.ctx, conn)
	h.loop.drain(h.ctx)
}

// tick advances the clock one second and fires every live timer.
func (h *harness) tick() {
	h.clock.advance(time.Second)
	for _, t := range h.sched.timers {
		if !t.cancelled {
			t.fn(h.ctx)
		}
	}
	h.loop.drain(h.ctx)
}

func (h *harness) createSession(mentor *recConn) string {
	h.t.Helper()
	h.send(mentor, model.MsgCreateSession, model.CreateSession{Secret: testSecret})
	return lastOf[model.SessionCreated](h.t, mentor).SessionID
}

func (h *harness) joinLearner(sessionID string, conn *recConn, name string) string {
	h.t.Helper()
	h.send(conn, model.MsgJoinSession, model.JoinSession{SessionID: sessionID, Role: model.RoleLearner, Name: name})
	return lastOf[model.SessionJoined](h.t, conn).LearnerID
}

func (h *harness) mentorCmd(sessionID string) model.MentorCommand {
	return model.MentorCommand{SessionID: sessionID, Secret: testSecret}
}

func (h *harness) assign(mentor *recConn, sessionID string, limit int, learnerIDs ...string) {
	h.t.Helper()
	h.send(mentor, model.MsgAssignTask, model.AssignTask{
		SessionID:  sessionID,
		TaskID:     "t1",
		Content:    "reverse a string",
		LearnerIDs: learnerIDs,
		Secret:     testSecret,
		Language:   "go",
		TimeLimit:  limit,
	})
}

func (h *harness) session(id string) *Session {
	h.t.Helper()
	s, err := h.store.Get(id)
	require.NoError(h.t, err)
	return s
}
