package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"codementor/internal/model"

	"goa.design/clue/log"
)

const (
	msgInvalidFormat   = "Invalid message format"
	msgInvalidSecret   = "Unauthorized: Invalid secret"
	msgNotMentor       = "Unauthorized: not the session mentor"
	msgSessionNotFound = "Session not found"
	msgKicked          = "You have been kicked from the session."
	msgBanned          = "You have been banned from the session."
)

// Options configures a Coordinator.
type Options struct {
	Secret       string
	Store        *SessionStore
	Loop         Loop
	Scheduler    Scheduler
	Evaluator    Evaluator
	Snapshots    SnapshotRepo
	Publisher    LeaderboardPublisher
	Now          func() time.Time
	TickInterval time.Duration
	PassingScore int
}

// Coordinator routes inbound messages to session handlers. Every method must
// run on the loop goroutine.
type Coordinator struct {
	secret       []byte
	store        *SessionStore
	loop         Loop
	sched        Scheduler
	evaluator    Evaluator
	snapshots    SnapshotRepo
	publisher    LeaderboardPublisher
	now          func() time.Time
	tick         time.Duration
	passingScore int
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		secret:       []byte(opts.Secret),
		store:        opts.Store,
		loop:         opts.Loop,
		sched:        opts.Scheduler,
		evaluator:    opts.Evaluator,
		snapshots:    opts.Snapshots,
		publisher:    opts.Publisher,
		now:          opts.Now,
		tick:         opts.TickInterval,
		passingScore: opts.PassingScore,
	}
	if c.store == nil {
		c.store = NewSessionStore()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.tick <= 0 {
		c.tick = time.Second
	}
	if c.publisher == nil {
		c.publisher = NopPublisher{}
	}
	if c.passingScore <= 0 {
		c.passingScore = 7
	}
	return c
}

func (c *Coordinator) Store() *SessionStore { return c.store }

// HandleMessage decodes one frame from conn and runs the matching handler.
func (c *Coordinator) HandleMessage(ctx context.Context, conn Conn, raw []byte) {
	ctx = log.With(ctx, log.KV{K: "conn", V: conn.ID()})
	msg, err := model.DecodeInbound(raw)
	if err != nil {
		if errors.Is(err, model.ErrUnknownMessageType) {
			log.Info(ctx, log.KV{K: "msg", V: "dropping unknown message"}, log.KV{K: "err", V: err.Error()})
			return
		}
		log.Warn(ctx, log.KV{K: "msg", V: "malformed message"}, log.KV{K: "err", V: err.Error()})
		send(ctx, conn, model.ErrorMsg{Message: msgInvalidFormat})
		return
	}
	c.dispatch(ctx, conn, msg)
}

func (c *Coordinator) dispatch(ctx context.Context, conn Conn, msg model.Inbound) {
	switch m := msg.(type) {
	case *model.CreateSession:
		c.createSession(ctx, conn, m)
	case *model.JoinSession:
		c.joinSession(ctx, conn, m)
	case *model.CodeChange:
		c.codeChange(ctx, m)
	case *model.SubmitCode:
		c.submitCode(ctx, conn, m)
	case *model.AssignTask:
		c.assignTask(ctx, conn, m)
	case *model.StartQuizRound:
		c.startRound(ctx, conn, m)
	case *model.StopQuizRound:
		c.stopRound(ctx, conn, m)
	case *model.StopSession:
		c.stopSession(ctx, conn, m)
	case *model.KickParticipant:
		c.removeParticipant(ctx, conn, m.SessionID, m.ParticipantID, m.Secret, false)
	case *model.BanParticipant:
		c.removeParticipant(ctx, conn, m.SessionID, m.ParticipantID, m.Secret, true)
	case *model.ExportSession:
		c.exportSession(ctx, conn, m)
	case *model.ImportSession:
		c.importSession(ctx, conn, m)
	case *model.ToggleCoding:
		c.toggleCoding(ctx, conn, m)
	case *model.ResetSession:
		c.resetSession(ctx, conn, m)
	default:
		log.Printf(ctx, "no handler for %T", msg)
	}
}

func (c *Coordinator) secretOK(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), c.secret) == 1
}

// mentorSession checks the secret, looks up the session and verifies that
// conn is its registered mentor.
func (c *Coordinator) mentorSession(sessionID string, conn Conn, secret string) (*Session, error) {
	if !c.secretOK(secret) {
		return nil, ErrUnauthorized
	}
	s, err := c.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !sameConn(s.mentor, conn) {
		return nil, ErrNotMentor
	}
	return s, nil
}

// authorize runs mentorSession and answers conn on failure.
func (c *Coordinator) authorize(ctx context.Context, conn Conn, sessionID, secret string) (*Session, bool) {
	s, err := c.mentorSession(sessionID, conn, secret)
	if err == nil {
		return s, true
	}
	log.Info(ctx, log.KV{K: "msg", V: "mentor operation rejected"}, log.KV{K: "session", V: sessionID}, log.KV{K: "err", V: err.Error()})
	send(ctx, conn, model.ErrorMsg{Message: errorText(err)})
	return nil, false
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return msgInvalidSecret
	case errors.Is(err, ErrNotMentor):
		return msgNotMentor
	case errors.Is(err, ErrSessionNotFound):
		return msgSessionNotFound
	case errors.Is(err, ErrLearnerNotFound):
		return "Learner not found"
	case errors.Is(err, ErrRoundNotRunning):
		return "Submissions are only accepted while a round is running"
	}
	return err.Error()
}

func (c *Coordinator) createSession(ctx context.Context, conn Conn, m *model.CreateSession) {
	if !c.secretOK(m.Secret) {
		send(ctx, conn, model.AuthFailed{Error: msgInvalidSecret})
		return
	}
	s, err := c.store.Create(conn)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "create session"})
		send(ctx, conn, model.ErrorMsg{Message: "Failed to create session"})
		return
	}
	log.Info(ctx, log.KV{K: "msg", V: "session created"}, log.KV{K: "session", V: s.ID})
	send(ctx, conn, model.SessionCreated{SessionID: s.ID})
}

// HandleClose detaches conn from whichever session references it.
func (c *Coordinator) HandleClose(ctx context.Context, conn Conn) {
	for _, s := range c.store.List() {
		touched := false
		if sameConn(s.mentor, conn) {
			s.mentor = nil
			touched = true
			log.Info(ctx, log.KV{K: "msg", V: "mentor disconnected"}, log.KV{K: "session", V: s.ID})
		}
		for l, ok := s.learners.ByConn(conn); ok; l, ok = s.learners.ByConn(conn) {
			s.learners.Remove(l.ID)
			touched = true
			log.Info(ctx, log.KV{K: "msg", V: "learner disconnected"}, log.KV{K: "session", V: s.ID}, log.KV{K: "learner", V: l.ID})
			toMentor(ctx, s, model.LearnerDisconnected{LearnerID: l.ID})
		}
		if touched {
			c.sweep(ctx, s.ID)
		}
	}
}

func (c *Coordinator) sweep(ctx context.Context, sessionID string) {
	if c.store.Sweep(sessionID) {
		log.Info(ctx, log.KV{K: "msg", V: "session swept"}, log.KV{K: "session", V: sessionID})
	}
}

// Sessions lists live sessions for the admin API.
func (c *Coordinator) Sessions() []model.SessionSummary {
	list := c.store.List()
	out := make([]model.SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, s.Summary())
	}
	return out
}

// Standings returns the sorted leaderboard of a live session.
func (c *Coordinator) Standings(sessionID string) ([]model.Standing, error) {
	s, err := c.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.leaderboard.Sorted(), nil
}
