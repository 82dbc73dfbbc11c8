package service

import (
	"context"

	"codementor/internal/model"

	"goa.design/clue/log"
)

// Evaluator scores one submission. Implementations may block.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.Evaluation, error)
}

// requestEvaluation runs the evaluator off the loop. The result re-enters the
// loop and is applied only if the session and learner still exist.
func (c *Coordinator) requestEvaluation(ctx context.Context, s *Session, l *Learner, code, task string, speed float64) {
	req := model.EvaluationRequest{
		SessionID: s.ID,
		LearnerID: l.ID,
		Code:      code,
		Task:      task,
	}
	if s.current != nil {
		req.Language = s.current.Language
	}
	if c.evaluator == nil {
		c.completeEvaluation(ctx, req, model.Evaluation{}, ErrNoEvaluator, speed)
		return
	}
	c.loop.Go(func() {
		res, err := c.evaluator.Evaluate(ctx, req)
		c.loop.Post(func(ctx context.Context) {
			c.completeEvaluation(ctx, req, res, err, speed)
		})
	})
}

func (c *Coordinator) completeEvaluation(ctx context.Context, req model.EvaluationRequest, res model.Evaluation, evalErr error, speed float64) {
	s, err := c.store.Get(req.SessionID)
	if err != nil {
		log.Info(ctx, log.KV{K: "msg", V: "evaluation discarded"}, log.KV{K: "session", V: req.SessionID}, log.KV{K: "reason", V: "session gone"})
		return
	}
	l, ok := s.learners.Get(req.LearnerID)
	if !ok {
		log.Info(ctx, log.KV{K: "msg", V: "evaluation discarded"}, log.KV{K: "session", V: req.SessionID}, log.KV{K: "learner", V: req.LearnerID}, log.KV{K: "reason", V: "learner gone"})
		return
	}

	switch {
	case evalErr != nil:
		log.Error(ctx, evalErr, log.KV{K: "msg", V: "evaluation failed"}, log.KV{K: "session", V: s.ID}, log.KV{K: "learner", V: l.ID})
		res = model.Evaluation{Score: 0, Feedback: "Error during evaluation: " + evalErr.Error()}
		l.Status = model.LearnerError
	case res.Score >= c.passingScore:
		l.Status = model.LearnerCorrect
	default:
		l.Status = model.LearnerSubmitted
	}

	s.leaderboard.Record(l.Name, res.Score, speed)
	send(ctx, l.conn, model.EvaluationResultMsg{Score: res.Score, Feedback: res.Feedback})
	toMentor(ctx, s, model.EvaluationComplete{LearnerID: l.ID, Result: res})
	toMentor(ctx, s, model.LeaderboardUpdate{Leaderboard: s.leaderboard.Entries()})
	c.publisher.Publish(s.ID, s.leaderboard.Entries())
}
