package service

import (
	"errors"
	"testing"
	"time"

	"codementor/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestAssignTask(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	bob := newConn("bob")
	h.joinLearner(id, bob, "Bob")

	h.assign(mentor, id, 30, anaID, "l_ghost")
	got := lastOf[model.TaskAssigned](t, ana)
	require.Equal(t, model.TaskAssigned{TaskID: "t1", Content: "reverse a string", Language: "go", TimeLimit: 30}, got)
	require.Empty(t, allOf[model.TaskAssigned](bob))

	conf := lastOf[model.TaskAssignedConfirmation](t, mentor)
	require.Equal(t, []string{anaID, "l_ghost"}, conf.LearnerIDs)

	s := h.session(id)
	require.Equal(t, model.QuizIdle, s.QuizState())
	state := s.State()
	require.Len(t, state.Tasks, 1)
	require.NotNil(t, state.CurrentTask)
	require.Nil(t, state.CurrentTask.StartTime)
}

func TestAssignTaskValidation(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)

	h.assign(mentor, id, 0)
	require.Equal(t, "error", mentor.types()[len(mentor.msgs)-1])
	require.Nil(t, h.session(id).State().CurrentTask)

	h.send(mentor, model.MsgAssignTask, model.AssignTask{SessionID: id, Secret: testSecret, Content: "x", TimeLimit: 5})
	conf := lastOf[model.TaskAssignedConfirmation](t, mentor)
	require.NotEmpty(t, conf.TaskID)
	require.Equal(t, []string{}, conf.LearnerIDs)
}

func TestStartRoundWithoutTaskIsIgnored(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	mentor.reset()

	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	require.Empty(t, mentor.msgs)
	require.Equal(t, model.QuizIdle, h.session(id).QuizState())
	require.Equal(t, 0, h.sched.active())
}

// A full round: submit, evaluate, leaderboard.
func TestRoundSubmitAndEvaluate(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(req model.EvaluationRequest) (model.Evaluation, error) {
		return model.Evaluation{Score: 8, Feedback: "clean"}, nil
	}
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)

	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	require.Equal(t, model.QuizRunning, h.session(id).QuizState())
	require.True(t, h.session(id).CodingEnabled())
	require.Equal(t, 30, lastOf[model.QuizRoundStarted](t, ana).TimeLimit)
	require.Nil(t, lastOf[model.QuizRoundStarted](t, ana).TimeRemaining)
	require.Less(t, indexOf(mentor, "quizRoundStartedConfirmation", true), indexOf(mentor, "codingToggled", true))

	h.clock.advance(4250 * time.Millisecond)
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "func r() {}"})

	require.Len(t, h.eval.calls, 1)
	require.Equal(t, model.EvaluationRequest{SessionID: id, LearnerID: anaID, Code: "func r() {}", Task: "reverse a string", Language: "go"}, h.eval.calls[0])

	require.Equal(t, model.EvaluationResultMsg{Score: 8, Feedback: "clean"}, lastOf[model.EvaluationResultMsg](t, ana))
	require.Len(t, allOf[model.SubmissionAcknowledged](ana), 1)
	require.Equal(t, "func r() {}", lastOf[model.CodeSubmitted](t, mentor).Code)
	require.Equal(t, model.EvaluationComplete{LearnerID: anaID, Result: model.Evaluation{Score: 8, Feedback: "clean"}}, lastOf[model.EvaluationComplete](t, mentor))
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 8, Speed: 4.25}}, lastOf[model.LeaderboardUpdate](t, mentor).Leaderboard)
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 8, Speed: 4.25}}, h.pub.published[id])

	l, _ := h.session(id).Learners().Get(anaID)
	require.Equal(t, model.LearnerCorrect, l.Status)
	require.Equal(t, "func r() {}", l.Code)
}

func TestResubmitOverwritesAndAccumulates(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(req model.EvaluationRequest) (model.Evaluation, error) {
		return model.Evaluation{Score: 5, Feedback: "ok"}, nil
	}
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))

	h.clock.advance(2 * time.Second)
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "v1"})
	h.clock.advance(3 * time.Second)
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "v2"})

	subs := h.session(id).current.Submissions
	require.Len(t, subs, 1)
	require.Equal(t, "v2", subs[anaID].Code)
	require.Len(t, h.eval.calls, 2)
	require.Equal(t, "v2", h.eval.calls[1].Code)
	require.Len(t, allOf[model.SubmissionAcknowledged](ana), 2)
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 10, Speed: 7}}, h.session(id).Leaderboard().Entries())
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 10, Speed: 7}}, lastOf[model.LeaderboardUpdate](t, mentor).Leaderboard)
}

func TestSubmitOutsideRound(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)

	ana.reset()
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})
	require.Equal(t, []string{"error"}, ana.types())
	require.Empty(t, h.eval.calls)
	require.Equal(t, 0, h.session(id).Leaderboard().Len())

	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: "l_nobody", Code: "x"})
	require.Equal(t, "Learner not found", lastOf[model.ErrorMsg](t, ana).Message)
}

func TestTimerCountsDownAndAutoSubmits(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	bob := newConn("bob")
	bobID := h.joinLearner(id, bob, "Bob")
	h.assign(mentor, id, 3, anaID, bobID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))

	h.send(bob, model.MsgCodeChange, model.CodeChange{SessionID: id, LearnerID: bobID, Code: "draft"})
	h.clock.advance(time.Second)
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "done"})
	h.clock.advance(-time.Second)

	for i := 0; i < 3; i++ {
		h.tick()
	}

	var remaining []float64
	for _, u := range allOf[model.TimerUpdate](mentor) {
		remaining = append(remaining, u.TimeRemaining)
	}
	require.Equal(t, []float64{2, 1, 0}, remaining)
	require.Len(t, allOf[model.TimerUpdate](ana), 3)

	s := h.session(id)
	require.Equal(t, model.QuizFinished, s.QuizState())
	require.False(t, s.CodingEnabled())
	require.Equal(t, 0, h.sched.active())

	// Ana submitted; only Bob is auto-evaluated with his draft.
	require.Len(t, h.eval.calls, 2)
	require.Equal(t, bobID, h.eval.calls[1].LearnerID)
	require.Equal(t, "draft", h.eval.calls[1].Code)

	require.Len(t, allOf[model.QuizRoundFinished](bob), 1)
	require.Len(t, allOf[model.CodingDisabled](bob), 1)
	require.False(t, lastOf[model.CodingToggled](t, mentor).IsCodingEnabled)

	standings := s.Leaderboard().Entries()
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 5, Speed: 1}, {Name: "Bob", Score: 5, Speed: 3}}, standings)

	// Later ticks from the cancelled timer change nothing.
	h.sched.timers[0].fn(h.ctx)
	h.loop.drain(h.ctx)
	require.Len(t, allOf[model.TimerUpdate](mentor), 3)
	require.Len(t, h.eval.calls, 2)
}

func TestTimerUpdatesAreMonotonic(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	h.assign(mentor, id, 10)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))

	for i := 0; i < 15; i++ {
		h.tick()
	}
	updates := allOf[model.TimerUpdate](mentor)
	require.Len(t, updates, 10)
	for i, u := range updates {
		require.GreaterOrEqual(t, u.TimeRemaining, 0.0)
		require.LessOrEqual(t, u.TimeRemaining, 10.0)
		if i > 0 {
			require.Less(t, u.TimeRemaining, updates[i-1].TimeRemaining)
		}
	}
}

func TestRestartIgnoresStaleTimer(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	h.assign(mentor, id, 30)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	stale := h.sched.timers[0]

	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	require.True(t, stale.cancelled)
	require.Equal(t, 1, h.sched.active())

	stale.fn(h.ctx)
	h.loop.drain(h.ctx)
	require.Empty(t, allOf[model.TimerUpdate](mentor))

	h.tick()
	require.Len(t, allOf[model.TimerUpdate](mentor), 1)
}

func TestAssignTaskCancelsRunningTimer(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	h.assign(mentor, id, 30)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	require.Equal(t, 1, h.sched.active())

	h.assign(mentor, id, 45)
	require.Equal(t, 0, h.sched.active())
	require.Equal(t, model.QuizIdle, h.session(id).QuizState())
	require.Equal(t, 45, h.session(id).State().CurrentTask.TimeLimit)
}

func TestStopRoundSkipsAutoSubmit(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))

	h.send(mentor, model.MsgStopQuizRound, h.mentorCmd(id))
	require.Equal(t, model.QuizFinished, h.session(id).QuizState())
	require.Empty(t, h.eval.calls)
	require.Equal(t, 0, h.sched.active())
	require.Len(t, allOf[model.QuizRoundFinished](ana), 1)

	// Stopping again is a no-op.
	h.send(mentor, model.MsgStopQuizRound, h.mentorCmd(id))
	require.Len(t, allOf[model.QuizRoundFinished](ana), 1)
}

func TestStopSession(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

	h.send(mentor, model.MsgStopSession, h.mentorCmd(id))
	want := []model.Standing{{Name: "Ana", Score: 5, Speed: 0}}
	require.Equal(t, want, lastOf[model.FinalLeaderboard](t, ana).Leaderboard)
	require.Equal(t, want, lastOf[model.FinalLeaderboard](t, mentor).Leaderboard)
	require.Equal(t, "codingDisabled", ana.types()[len(ana.msgs)-1])
	require.False(t, lastOf[model.CodingToggled](t, mentor).IsCodingEnabled)

	s := h.session(id)
	require.Equal(t, model.QuizFinished, s.QuizState())
	require.Equal(t, 0, h.sched.active())
	require.False(t, ana.closed, "learners stay connected")
}

func TestResetSessionKeepsLeaderboard(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

	h.send(mentor, model.MsgResetSession, h.mentorCmd(id))
	require.Len(t, allOf[model.SessionReset](ana), 1)
	state := lastOf[model.SessionStateMsg](t, mentor)
	require.Equal(t, model.QuizIdle, state.QuizState)
	require.Nil(t, state.CurrentTask)
	require.Empty(t, state.Tasks)
	require.False(t, state.IsCodingEnabled)
	require.Len(t, state.Leaderboard, 1)
	require.Equal(t, []model.LearnerSummary{{ID: anaID, Name: "Ana", Gravatar: state.Learners[0].Gravatar, Status: model.LearnerIdle, Language: "go"}}, state.Learners)
	require.Equal(t, 0, h.sched.active())
}

func TestToggleCodingIsAnInvolution(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("n toggles leave coding enabled iff n is odd", prop.ForAll(
		func(n int) bool {
			h := newHarness(t)
			mentor := newConn("mentor")
			id := h.createSession(mentor)
			for i := 0; i < n; i++ {
				h.send(mentor, model.MsgToggleCoding, h.mentorCmd(id))
			}
			return h.session(id).CodingEnabled() == (n%2 == 1)
		},
		gen.IntRange(0, 12),
	))
	properties.TestingRun(t)
}

func TestToggleCodingNotifiesLearners(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	h.joinLearner(id, ana, "Ana")

	h.send(mentor, model.MsgToggleCoding, h.mentorCmd(id))
	h.send(mentor, model.MsgToggleCoding, h.mentorCmd(id))
	require.Equal(t, []string{"codingEnabled", "codingDisabled"}, ana.types()[1:])
	toggles := allOf[model.CodingToggled](mentor)
	require.Len(t, toggles, 2)
	require.True(t, toggles[0].IsCodingEnabled)
	require.False(t, toggles[1].IsCodingEnabled)
}

func TestEvaluationDiscardedAfterKick(t *testing.T) {
	h := newHarness(t)
	h.loop.deferGo = true
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})
	require.Len(t, h.loop.pending, 1)

	h.send(mentor, model.MsgKickParticipant, model.KickParticipant{SessionID: id, ParticipantID: anaID, Secret: testSecret})
	h.loop.runPending(h.ctx)

	require.Empty(t, allOf[model.EvaluationResultMsg](ana))
	require.Empty(t, allOf[model.EvaluationComplete](mentor))
	require.Equal(t, 0, h.session(id).Leaderboard().Len())
}

func TestEvaluationDiscardedAfterSweep(t *testing.T) {
	h := newHarness(t)
	h.loop.deferGo = true
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

	h.close(mentor)
	h.close(ana)
	require.Equal(t, 0, h.store.Len())
	h.loop.runPending(h.ctx)
	require.Empty(t, h.pub.published)
}

func TestEvaluatorErrorIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(model.EvaluationRequest) (model.Evaluation, error) {
		return model.Evaluation{}, errors.New("quota exceeded")
	}
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

	res := lastOf[model.EvaluationResultMsg](t, ana)
	require.Equal(t, 0, res.Score)
	require.Equal(t, "Error during evaluation: quota exceeded", res.Feedback)
	l, _ := h.session(id).Learners().Get(anaID)
	require.Equal(t, model.LearnerError, l.Status)
	require.Equal(t, []model.Standing{{Name: "Ana", Score: 0, Speed: 0}}, h.session(id).Leaderboard().Entries())
}

func TestPassingScoreSetsStatus(t *testing.T) {
	for score, want := range map[int]model.LearnerStatus{6: model.LearnerSubmitted, 7: model.LearnerCorrect, 10: model.LearnerCorrect} {
		h := newHarness(t)
		h.eval.fn = func(model.EvaluationRequest) (model.Evaluation, error) {
			return model.Evaluation{Score: score}, nil
		}
		mentor := newConn("mentor")
		id := h.createSession(mentor)
		ana := newConn("ana")
		anaID := h.joinLearner(id, ana, "Ana")
		h.assign(mentor, id, 30, anaID)
		h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
		h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

		l, _ := h.session(id).Learners().Get(anaID)
		require.Equal(t, want, l.Status, "score %d", score)
	}
}

func TestNoEvaluatorConfigured(t *testing.T) {
	h := newHarness(t)
	h.c.evaluator = nil
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	ana := newConn("ana")
	anaID := h.joinLearner(id, ana, "Ana")
	h.assign(mentor, id, 30, anaID)
	h.send(mentor, model.MsgStartQuizRound, h.mentorCmd(id))
	h.send(ana, model.MsgSubmitCode, model.SubmitCode{SessionID: id, LearnerID: anaID, Code: "x"})

	require.Contains(t, lastOf[model.EvaluationResultMsg](t, ana).Feedback, ErrNoEvaluator.Error())
}

func TestCodeChangeForUnknownLearnerIsIgnored(t *testing.T) {
	h := newHarness(t)
	mentor := newConn("mentor")
	id := h.createSession(mentor)
	mentor.reset()

	h.send(mentor, model.MsgCodeChange, model.CodeChange{SessionID: id, LearnerID: "l_nobody", Code: "x"})
	h.send(mentor, model.MsgCodeChange, model.CodeChange{SessionID: "NOPE", LearnerID: "l_nobody", Code: "x"})
	require.Empty(t, mentor.msgs)
}
