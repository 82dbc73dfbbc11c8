package service

import (
	"errors"
	"fmt"
	"slices"

	"codementor/internal/ident"
	"codementor/internal/model"
)

var (
	ErrUnauthorized    = errors.New("unauthorized: invalid secret")
	ErrNotMentor       = errors.New("unauthorized: not the session mentor")
	ErrSessionNotFound = errors.New("session not found")
	ErrLearnerNotFound = errors.New("learner not found")
	ErrRoundNotRunning = errors.New("no round is running")
	ErrInvalidPayload  = errors.New("invalid payload")
)

// roundTimer is the cancellable handle of a running round. Ticks compare
// handles by pointer so a late tick from a replaced timer is ignored.
type roundTimer struct {
	cancel func()
}

// Session is one mentor, its learners and their shared round state.
type Session struct {
	ID            string
	mentor        Conn
	learners      *Directory
	taskOrder     []string
	tasks         map[string]model.Task
	quizState     model.QuizState
	current       *model.CurrentTask
	leaderboard   *Leaderboard
	codingEnabled bool
	timer         *roundTimer
}

func newSession(id string, mentor Conn) *Session {
	return &Session{
		ID:          id,
		mentor:      mentor,
		learners:    NewDirectory(),
		tasks:       make(map[string]model.Task),
		quizState:   model.QuizIdle,
		leaderboard: NewLeaderboard(),
	}
}

func (s *Session) putTask(t model.Task) {
	if _, ok := s.tasks[t.TaskID]; !ok {
		s.taskOrder = append(s.taskOrder, t.TaskID)
	}
	s.tasks[t.TaskID] = t
}

func (s *Session) taskList() []model.Task {
	out := make([]model.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id])
	}
	return out
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.cancel()
		s.timer = nil
	}
}

// State returns the mentor view of the session.
func (s *Session) State() model.SessionState {
	var current *model.CurrentTask
	if s.current != nil {
		c := *s.current
		c.Submissions = make(map[string]model.Submission, len(s.current.Submissions))
		for k, v := range s.current.Submissions {
			c.Submissions[k] = v
		}
		current = &c
	}
	return model.SessionState{
		Learners:        s.learners.Summaries(),
		Tasks:           s.taskList(),
		Leaderboard:     s.leaderboard.Entries(),
		IsCodingEnabled: s.codingEnabled,
		CurrentTask:     current,
		QuizState:       s.quizState,
	}
}

func (s *Session) Summary() model.SessionSummary {
	return model.SessionSummary{
		SessionID:       s.ID,
		Learners:        s.learners.Len(),
		QuizState:       s.quizState,
		IsCodingEnabled: s.codingEnabled,
		MentorConnected: s.mentor != nil,
	}
}

func (s *Session) QuizState() model.QuizState { return s.quizState }
func (s *Session) CodingEnabled() bool        { return s.codingEnabled }
func (s *Session) Leaderboard() *Leaderboard  { return s.leaderboard }
func (s *Session) Learners() *Directory       { return s.learners }

// SessionStore is the registry of live sessions. It is owned by the loop
// goroutine and is not safe for concurrent use.
type SessionStore struct {
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create allocates a session with a fresh code and mentor as its mentor.
func (st *SessionStore) Create(mentor Conn) (*Session, error) {
	id, err := ident.NewSessionCode(func(code string) bool {
		_, ok := st.sessions[code]
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s := newSession(id, mentor)
	st.sessions[id] = s
	return s, nil
}

func (st *SessionStore) Get(id string) (*Session, error) {
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Put installs s, replacing any session with the same ID.
func (st *SessionStore) Put(s *Session) {
	if old, ok := st.sessions[s.ID]; ok && old != s {
		old.cancelTimer()
	}
	st.sessions[s.ID] = s
}

// Sweep removes the session when it has neither a mentor nor learners.
// It reports whether the session was removed.
func (st *SessionStore) Sweep(id string) bool {
	s, ok := st.sessions[id]
	if !ok || s.mentor != nil || s.learners.Len() > 0 {
		return false
	}
	s.cancelTimer()
	delete(st.sessions, id)
	return true
}

// List returns every live session ordered by ID.
func (st *SessionStore) List() []*Session {
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Session) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (st *SessionStore) Len() int { return len(st.sessions) }
