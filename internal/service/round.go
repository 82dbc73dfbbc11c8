package service

import (
	"context"
	"fmt"
	"math"

	"codementor/internal/ident"
	"codementor/internal/model"

	"goa.design/clue/log"
)

func (c *Coordinator) assignTask(ctx context.Context, conn Conn, m *model.AssignTask) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok {
		return
	}
	if m.TimeLimit <= 0 {
		send(ctx, conn, model.ErrorMsg{Message: fmt.Errorf("%w: time limit must be a positive number of seconds", ErrInvalidPayload).Error()})
		return
	}
	taskID := m.TaskID
	if taskID == "" {
		taskID = ident.NewTaskID()
	}
	learnerIDs := m.LearnerIDs
	if learnerIDs == nil {
		learnerIDs = []string{}
	}

	s.cancelTimer()
	task := model.Task{
		TaskID:     taskID,
		Content:    m.Content,
		LearnerIDs: learnerIDs,
		Language:   m.Language,
		TimeLimit:  m.TimeLimit,
	}
	s.putTask(task)
	s.current = &model.CurrentTask{Task: task, Submissions: make(map[string]model.Submission)}
	s.quizState = model.QuizIdle

	for _, id := range learnerIDs {
		l, ok := s.learners.Get(id)
		if !ok {
			continue
		}
		l.Task = task.Content
		l.Language = task.Language
		send(ctx, l.conn, taskAssigned(task))
	}
	log.Info(ctx, log.KV{K: "msg", V: "task assigned"}, log.KV{K: "session", V: s.ID}, log.KV{K: "task", V: taskID})
	send(ctx, conn, model.TaskAssignedConfirmation{
		TaskID:     taskID,
		Content:    task.Content,
		LearnerIDs: learnerIDs,
		Language:   task.Language,
		TimeLimit:  task.TimeLimit,
	})
}

func (c *Coordinator) startRound(ctx context.Context, conn Conn, m *model.StartQuizRound) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok || s.current == nil {
		return
	}
	s.cancelTimer()
	start := c.now()
	s.current.StartTime = &start
	s.current.Submissions = make(map[string]model.Submission)
	s.quizState = model.QuizRunning
	s.codingEnabled = true

	toLearners(ctx, s, model.QuizRoundStarted{TimeLimit: s.current.TimeLimit})
	toMentor(ctx, s, model.QuizRoundStartedConfirmation{})
	toMentor(ctx, s, model.CodingToggled{IsCodingEnabled: true})

	t := &roundTimer{}
	sessionID := s.ID
	t.cancel = c.sched.Every(c.tick, func(ctx context.Context) {
		c.onTick(ctx, sessionID, t)
	})
	s.timer = t
	log.Info(ctx, log.KV{K: "msg", V: "round started"}, log.KV{K: "session", V: s.ID}, log.KV{K: "limit", V: s.current.TimeLimit})
}

func (c *Coordinator) onTick(ctx context.Context, sessionID string, t *roundTimer) {
	s, err := c.store.Get(sessionID)
	if err != nil || s.timer != t || s.current == nil {
		return
	}
	left := c.remaining(s.current)
	toEveryone(ctx, s, model.TimerUpdate{TimeRemaining: left})
	if left > 0 {
		return
	}
	s.cancelTimer()
	if s.quizState == model.QuizRunning {
		c.finishRound(ctx, s, true)
	}
}

// finishRound closes the open round. With autoSubmit every learner that has
// not submitted is evaluated with its current buffer and charged the full limit.
func (c *Coordinator) finishRound(ctx context.Context, s *Session, autoSubmit bool) {
	if autoSubmit && s.current != nil {
		limit := float64(s.current.TimeLimit)
		for _, l := range s.learners.All() {
			if _, done := s.current.Submissions[l.ID]; done {
				continue
			}
			c.requestEvaluation(ctx, s, l, l.Code, s.current.Content, limit)
		}
	}
	s.quizState = model.QuizFinished
	s.codingEnabled = false
	toEveryone(ctx, s, model.QuizRoundFinished{})
	toEveryone(ctx, s, model.CodingDisabled{})
	toMentor(ctx, s, model.CodingToggled{IsCodingEnabled: false})
	log.Info(ctx, log.KV{K: "msg", V: "round finished"}, log.KV{K: "session", V: s.ID}, log.KV{K: "auto", V: autoSubmit})
}

func (c *Coordinator) stopRound(ctx context.Context, conn Conn, m *model.StopQuizRound) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok || s.quizState != model.QuizRunning {
		return
	}
	s.cancelTimer()
	c.finishRound(ctx, s, false)
}

func (c *Coordinator) stopSession(ctx context.Context, conn Conn, m *model.StopSession) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok {
		return
	}
	s.cancelTimer()
	s.quizState = model.QuizFinished
	s.codingEnabled = false

	final := model.FinalLeaderboard{Leaderboard: s.leaderboard.Entries()}
	toLearners(ctx, s, final)
	toLearners(ctx, s, model.CodingDisabled{})
	toMentor(ctx, s, final)
	toMentor(ctx, s, model.CodingToggled{IsCodingEnabled: false})
	c.publisher.Publish(s.ID, s.leaderboard.Entries())
	log.Info(ctx, log.KV{K: "msg", V: "session stopped"}, log.KV{K: "session", V: s.ID})
}

// resetSession returns the session to an empty idle state. Standings survive.
func (c *Coordinator) resetSession(ctx context.Context, conn Conn, m *model.ResetSession) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok {
		return
	}
	s.cancelTimer()
	s.current = nil
	s.taskOrder = nil
	s.tasks = make(map[string]model.Task)
	s.quizState = model.QuizIdle
	s.codingEnabled = false
	for _, l := range s.learners.All() {
		l.Code = ""
		l.Task = ""
		l.Status = model.LearnerIdle
	}
	toLearners(ctx, s, model.SessionReset{})
	toMentor(ctx, s, model.SessionStateMsg{SessionState: s.State()})
	log.Info(ctx, log.KV{K: "msg", V: "session reset"}, log.KV{K: "session", V: s.ID})
}

func (c *Coordinator) toggleCoding(ctx context.Context, conn Conn, m *model.ToggleCoding) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok {
		return
	}
	s.codingEnabled = !s.codingEnabled
	if s.codingEnabled {
		toLearners(ctx, s, model.CodingEnabled{})
	} else {
		toLearners(ctx, s, model.CodingDisabled{})
	}
	toMentor(ctx, s, model.CodingToggled{IsCodingEnabled: s.codingEnabled})
}

func (c *Coordinator) submitCode(ctx context.Context, conn Conn, m *model.SubmitCode) {
	s, err := c.store.Get(m.SessionID)
	if err != nil {
		send(ctx, conn, model.ErrorMsg{Message: errorText(err)})
		return
	}
	l, ok := s.learners.Get(m.LearnerID)
	if !ok {
		send(ctx, conn, model.ErrorMsg{Message: errorText(ErrLearnerNotFound)})
		return
	}
	if s.quizState != model.QuizRunning || s.current == nil {
		send(ctx, conn, model.ErrorMsg{Message: errorText(ErrRoundNotRunning)})
		return
	}

	now := c.now()
	s.current.Submissions[l.ID] = model.Submission{Code: m.Code, SubmittedAt: now}
	l.Code = m.Code
	l.Status = model.LearnerSubmitted

	task := m.Task
	if task == "" {
		task = s.current.Content
	}
	speed := float64(s.current.TimeLimit)
	if s.current.StartTime != nil {
		speed = math.Round(now.Sub(*s.current.StartTime).Seconds()*1000) / 1000
	}

	toMentor(ctx, s, model.CodeSubmitted{LearnerID: l.ID, Code: m.Code, Task: task})
	c.requestEvaluation(ctx, s, l, m.Code, task, speed)
	send(ctx, conn, model.SubmissionAcknowledged{})
}
