package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// QuizState is the round lifecycle of a session
type QuizState string

const (
	QuizIdle     QuizState = "idle"
	QuizRunning  QuizState = "running"
	QuizFinished QuizState = "finished"
)

// LearnerStatus tags a learner's progress in the current round
type LearnerStatus string

const (
	LearnerIdle      LearnerStatus = "idle"
	LearnerActive    LearnerStatus = "active"
	LearnerSubmitted LearnerStatus = "submitted"
	LearnerCorrect   LearnerStatus = "correct"
	LearnerError     LearnerStatus = "error"
)

// Task is a coding assignment staged by the mentor
type Task struct {
	TaskID     string   `json:"taskId" bson:"taskId"`
	Content    string   `json:"content" bson:"content"`
	LearnerIDs []string `json:"learnerIds" bson:"learnerIds"`
	Language   string   `json:"language" bson:"language"`
	TimeLimit  int      `json:"timeLimit" bson:"timeLimit"`
}

// Submission is one learner's latest code for the open round
type Submission struct {
	Code        string    `json:"code"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// CurrentTask is the active task plus the state of its round.
type CurrentTask struct {
	Task
	StartTime   *time.Time            `json:"startTime,omitempty"`
	Submissions map[string]Submission `json:"submissions"`
}

// LearnerSummary is the connection-free view of a learner.
type LearnerSummary struct {
	ID       string        `json:"id" bson:"id"`
	Name     string        `json:"name" bson:"name"`
	Code     string        `json:"code" bson:"code"`
	Task     string        `json:"task" bson:"task"`
	Gravatar string        `json:"gravatar" bson:"gravatar"`
	Language string        `json:"language" bson:"language"`
	Status   LearnerStatus `json:"status,omitempty" bson:"status,omitempty"`
}

// Standing is one leaderboard row. Speed is the cumulative time taken in seconds.
type Standing struct {
	Name  string  `json:"name" bson:"name"`
	Score int     `json:"score" bson:"score"`
	Speed float64 `json:"speed" bson:"speed"`
}

// Evaluation is the score and feedback produced for one submission.
type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// SessionState is the full mentor view of a session
type SessionState struct {
	Learners        []LearnerSummary `json:"learners"`
	Tasks           []Task           `json:"tasks"`
	Leaderboard     []Standing       `json:"leaderboard"`
	IsCodingEnabled bool             `json:"isCodingEnabled"`
	CurrentTask     *CurrentTask     `json:"currentTask"`
	QuizState       QuizState        `json:"quizState"`
}

// SessionSummary is the admin API listing row
type SessionSummary struct {
	SessionID       string    `json:"sessionId"`
	Learners        int       `json:"learners"`
	QuizState       QuizState `json:"quizState"`
	IsCodingEnabled bool      `json:"isCodingEnabled"`
	MentorConnected bool      `json:"mentorConnected"`
}

// TaskEntry is a task keyed by its ID. It encodes to JSON as a [taskId, task] pair.
type TaskEntry struct {
	TaskID string `bson:"taskId"`
	Task   Task   `bson:"task"`
}

func (e TaskEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.TaskID, e.Task})
}

func (e *TaskEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("task entry: expected [taskId, task], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.TaskID); err != nil {
		return fmt.Errorf("task entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Task); err != nil {
		return fmt.Errorf("task entry body: %w", err)
	}
	return nil
}

// Snapshot is the exported, connection-free copy of a session.
type Snapshot struct {
	SessionID   string           `json:"-" bson:"_id"`
	Learners    []LearnerSummary `json:"learners" bson:"learners"`
	Tasks       []TaskEntry      `json:"tasks" bson:"tasks"`
	Leaderboard []Standing       `json:"leaderboard" bson:"leaderboard"`
	ExportedAt  time.Time        `json:"-" bson:"exportedAt"`
}

// ParseSnapshot decodes exported snapshot content.
func ParseSnapshot(content []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrMalformedMessage, err)
	}
	return &snap, nil
}

// SortStandings orders by score desc, then time asc, then name.
func SortStandings(s []Standing) {
	slices.SortStableFunc(s, func(a, b Standing) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		if a.Speed != b.Speed {
			if a.Speed < b.Speed {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}
