package model

// EvaluationRequest is what the evaluator sees for one submission
type EvaluationRequest struct {
	SessionID string
	LearnerID string
	Code      string
	Task      string
	Language  string
}
