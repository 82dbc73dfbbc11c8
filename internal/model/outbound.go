package model

import (
	"encoding/json"
	"fmt"
)

// Outbound is implemented by every server-to-client message.
type Outbound interface {
	OutboundType() string
}

// Encode wraps an outbound message in the {type, payload} envelope.
func Encode(msg Outbound) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.OutboundType(), err)
	}
	return json.Marshal(Envelope{Type: msg.OutboundType(), Payload: payload})
}

type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

type SessionJoined struct {
	SessionID       string `json:"sessionId"`
	Role            Role   `json:"role"`
	LearnerID       string `json:"learnerId,omitempty"`
	Gravatar        string `json:"gravatar,omitempty"`
	IsCodingEnabled *bool  `json:"isCodingEnabled,omitempty"`
}

type SessionNotFound struct {
	Error string `json:"error"`
}

type AuthFailed struct {
	Error string `json:"error"`
}

// SessionStateMsg is the full view pushed to a mentor on join and reset.
type SessionStateMsg struct {
	SessionState
}

type LearnerJoined struct {
	LearnerSummary
}

type LearnerReconnected struct {
	LearnerSummary
}

type LearnerDisconnected struct {
	LearnerID string `json:"learnerId"`
}

type LearnerCodeChange struct {
	LearnerID string `json:"learnerId"`
	Code      string `json:"code"`
}

type TaskAssigned struct {
	TaskID    string `json:"taskId"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	TimeLimit int    `json:"timeLimit"`
}

type TaskAssignedConfirmation struct {
	TaskID     string   `json:"taskId"`
	Content    string   `json:"content"`
	LearnerIDs []string `json:"learnerIds"`
	Language   string   `json:"language"`
	TimeLimit  int      `json:"timeLimit"`
}

type QuizRoundStarted struct {
	TimeLimit     int      `json:"timeLimit"`
	TimeRemaining *float64 `json:"timeRemaining,omitempty"`
}

type QuizRoundStartedConfirmation struct{}

type TimerUpdate struct {
	TimeRemaining float64 `json:"timeRemaining"`
}

type QuizRoundFinished struct{}

type SubmissionAcknowledged struct{}

type CodeSubmitted struct {
	LearnerID string `json:"learnerId"`
	Code      string `json:"code"`
	Task      string `json:"task"`
}

type EvaluationResultMsg struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

type EvaluationComplete struct {
	LearnerID string     `json:"learnerId"`
	Result    Evaluation `json:"result"`
}

type LeaderboardUpdate struct {
	Leaderboard []Standing `json:"leaderboard"`
}

type FinalLeaderboard struct {
	Leaderboard []Standing `json:"leaderboard"`
}

type CodingEnabled struct{}

type CodingDisabled struct{}

type CodingToggled struct {
	IsCodingEnabled bool `json:"isCodingEnabled"`
}

type Kicked struct {
	Message string `json:"message"`
}

type Banned struct {
	Message string `json:"message"`
}

type ParticipantKicked struct {
	ParticipantID string `json:"participantId"`
}

type ParticipantBanned struct {
	ParticipantID string `json:"participantId"`
}

type SessionReset struct{}

type SessionExported struct {
	SessionID   string `json:"sessionId"`
	FilePath    string `json:"filePath"`
	FileContent string `json:"fileContent"`
}

type SessionImported struct {
	SessionID string `json:"sessionId"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}

func (SessionCreated) OutboundType() string               { return "sessionCreated" }
func (SessionJoined) OutboundType() string                { return "sessionJoined" }
func (SessionNotFound) OutboundType() string              { return "sessionNotFound" }
func (AuthFailed) OutboundType() string                   { return "authFailed" }
func (SessionStateMsg) OutboundType() string              { return "sessionState" }
func (LearnerJoined) OutboundType() string                { return "learnerJoined" }
func (LearnerReconnected) OutboundType() string           { return "learnerReconnected" }
func (LearnerDisconnected) OutboundType() string          { return "learnerDisconnected" }
func (LearnerCodeChange) OutboundType() string            { return "learnerCodeChange" }
func (TaskAssigned) OutboundType() string                 { return "taskAssigned" }
func (TaskAssignedConfirmation) OutboundType() string     { return "taskAssignedConfirmation" }
func (QuizRoundStarted) OutboundType() string             { return "quizRoundStarted" }
func (QuizRoundStartedConfirmation) OutboundType() string { return "quizRoundStartedConfirmation" }
func (TimerUpdate) OutboundType() string                  { return "timerUpdate" }
func (QuizRoundFinished) OutboundType() string            { return "quizRoundFinished" }
func (SubmissionAcknowledged) OutboundType() string       { return "submissionAcknowledged" }
func (CodeSubmitted) OutboundType() string                { return "codeSubmitted" }
func (EvaluationResultMsg) OutboundType() string          { return "evaluationResult" }
func (EvaluationComplete) OutboundType() string           { return "evaluationComplete" }
func (LeaderboardUpdate) OutboundType() string            { return "leaderboardUpdate" }
func (FinalLeaderboard) OutboundType() string             { return "finalLeaderboard" }
func (CodingEnabled) OutboundType() string                { return "codingEnabled" }
func (CodingDisabled) OutboundType() string               { return "codingDisabled" }
func (CodingToggled) OutboundType() string                { return "codingToggled" }
func (Kicked) OutboundType() string                       { return "kicked" }
func (Banned) OutboundType() string                       { return "banned" }
func (ParticipantKicked) OutboundType() string            { return "participantKicked" }
func (ParticipantBanned) OutboundType() string            { return "participantBanned" }
func (SessionReset) OutboundType() string                 { return "sessionReset" }
func (SessionExported) OutboundType() string              { return "sessionExported" }
func (SessionImported) OutboundType() string              { return "sessionImported" }
func (ErrorMsg) OutboundType() string                     { return "error" }
