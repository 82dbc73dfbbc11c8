package service

import (
	"context"
	"fmt"
	"math"

	"codementor/internal/ident"
	"codementor/internal/model"

	"goa.design/clue/log"
)

func (c *Coordinator) joinSession(ctx context.Context, conn Conn, m *model.JoinSession) {
	s, err := c.store.Get(m.SessionID)
	if err != nil {
		send(ctx, conn, model.SessionNotFound{Error: msgSessionNotFound})
		return
	}
	ctx = log.With(ctx, log.KV{K: "session", V: s.ID})

	switch m.Role {
	case model.RoleMentor:
		c.joinMentor(ctx, conn, s, m)
	case model.RoleLearner:
		c.joinLearner(ctx, conn, s, m)
	default:
		send(ctx, conn, model.ErrorMsg{Message: "Unknown role: " + string(m.Role)})
	}
}

func (c *Coordinator) joinMentor(ctx context.Context, conn Conn, s *Session, m *model.JoinSession) {
	if !c.secretOK(m.Secret) {
		send(ctx, conn, model.AuthFailed{Error: msgInvalidSecret})
		return
	}
	s.mentor = conn
	log.Info(ctx, log.KV{K: "msg", V: "mentor joined"})
	send(ctx, conn, model.SessionJoined{SessionID: s.ID, Role: model.RoleMentor})
	send(ctx, conn, model.SessionStateMsg{SessionState: s.State()})
}

func (c *Coordinator) joinLearner(ctx context.Context, conn Conn, s *Session, m *model.JoinSession) {
	if m.Name == "" {
		send(ctx, conn, model.ErrorMsg{Message: fmt.Errorf("%w: name is required", ErrInvalidPayload).Error()})
		return
	}

	l, reconnect := s.learners.ByName(m.Name)
	if reconnect {
		l.conn = conn
		log.Info(ctx, log.KV{K: "msg", V: "learner reconnected"}, log.KV{K: "learner", V: l.ID})
	} else {
		l = &Learner{
			ID:       ident.NewLearnerID(),
			Name:     m.Name,
			Gravatar: ident.Gravatar(m.Name),
			Status:   model.LearnerIdle,
			conn:     conn,
		}
		s.learners.Add(l)
		log.Info(ctx, log.KV{K: "msg", V: "learner joined"}, log.KV{K: "learner", V: l.ID})
	}

	coding := s.codingEnabled
	send(ctx, conn, model.SessionJoined{
		SessionID:       s.ID,
		Role:            model.RoleLearner,
		LearnerID:       l.ID,
		Gravatar:        l.Gravatar,
		IsCodingEnabled: &coding,
	})

	if cur := s.current; cur != nil {
		l.Task = cur.Content
		l.Language = cur.Language
		send(ctx, conn, taskAssigned(cur.Task))
	}
	if s.quizState == model.QuizRunning && s.current != nil {
		remaining := c.remaining(s.current)
		send(ctx, conn, model.QuizRoundStarted{TimeLimit: s.current.TimeLimit, TimeRemaining: &remaining})
	}

	if reconnect {
		toMentor(ctx, s, model.LearnerReconnected{LearnerSummary: l.Summary()})
	} else {
		toMentor(ctx, s, model.LearnerJoined{LearnerSummary: l.Summary()})
	}
}

func (c *Coordinator) codeChange(ctx context.Context, m *model.CodeChange) {
	s, err := c.store.Get(m.SessionID)
	if err != nil {
		return
	}
	l, ok := s.learners.Get(m.LearnerID)
	if !ok {
		return
	}
	l.Code = m.Code
	if l.Status == model.LearnerIdle {
		l.Status = model.LearnerActive
	}
	toMentor(ctx, s, model.LearnerCodeChange{LearnerID: l.ID, Code: l.Code})
}

// removeParticipant implements kick and ban. Both close the learner's
// connection and delete its record; ban keeps no blocklist.
func (c *Coordinator) removeParticipant(ctx context.Context, conn Conn, sessionID, participantID, secret string, ban bool) {
	s, ok := c.authorize(ctx, conn, sessionID, secret)
	if !ok {
		return
	}
	ctx = log.With(ctx, log.KV{K: "session", V: s.ID})
	l, found := s.learners.Get(participantID)
	if !found {
		send(ctx, conn, model.ErrorMsg{Message: "Participant not found"})
		return
	}

	if ban {
		send(ctx, l.conn, model.Banned{Message: msgBanned})
	} else {
		send(ctx, l.conn, model.Kicked{Message: msgKicked})
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "close removed learner"}, log.KV{K: "learner", V: l.ID})
		}
	}
	s.learners.Remove(l.ID)
	log.Info(ctx, log.KV{K: "msg", V: "participant removed"}, log.KV{K: "learner", V: l.ID}, log.KV{K: "ban", V: ban})

	if ban {
		send(ctx, conn, model.ParticipantBanned{ParticipantID: l.ID})
	} else {
		send(ctx, conn, model.ParticipantKicked{ParticipantID: l.ID})
	}
	c.sweep(ctx, s.ID)
}

func taskAssigned(t model.Task) model.TaskAssigned {
	return model.TaskAssigned{TaskID: t.TaskID, Content: t.Content, Language: t.Language, TimeLimit: t.TimeLimit}
}

// remaining is the round time left in seconds, rounded to milliseconds.
func (c *Coordinator) remaining(cur *model.CurrentTask) float64 {
	if cur.StartTime == nil {
		return float64(cur.TimeLimit)
	}
	elapsed := c.now().Sub(*cur.StartTime).Seconds()
	left := math.Max(0, float64(cur.TimeLimit)-elapsed)
	return math.Round(left*1000) / 1000
}
