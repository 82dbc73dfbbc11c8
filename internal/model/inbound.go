package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage   = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Inbound message types
const (
	MsgCreateSession   = "createSession"
	MsgJoinSession     = "joinSession"
	MsgCodeChange      = "codeChange"
	MsgSubmitCode      = "submitCode"
	MsgAssignTask      = "assignTask"
	MsgStartQuizRound  = "startQuizRound"
	MsgStopQuizRound   = "stopQuizRound"
	MsgStopSession     = "stopSession"
	MsgKickParticipant = "kickParticipant"
	MsgBanParticipant  = "banParticipant"
	MsgExportSession   = "exportSession"
	MsgImportSession   = "importSession"
	MsgToggleCoding    = "toggleCoding"
	MsgResetSession    = "resetSession"
)

// Envelope is the wire format shared by both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is implemented by every client-to-server message. The set is closed:
// only types in this file satisfy it.
type Inbound interface {
	inbound()
}

// Role of a participant joining a session
type Role string

const (
	RoleMentor  Role = "mentor"
	RoleLearner Role = "learner"
)

type CreateSession struct {
	Secret string `json:"secret"`
}

type JoinSession struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	Secret    string `json:"secret,omitempty"`
}

type CodeChange struct {
	SessionID string `json:"sessionId"`
	LearnerID string `json:"learnerId"`
	Code      string `json:"code"`
}

type SubmitCode struct {
	SessionID string `json:"sessionId"`
	LearnerID string `json:"learnerId"`
	Code      string `json:"code"`
	Task      string `json:"task,omitempty"`
}

type AssignTask struct {
	SessionID  string   `json:"sessionId"`
	TaskID     string   `json:"taskId"`
	Content    string   `json:"content"`
	LearnerIDs []string `json:"learnerIds"`
	Secret     string   `json:"secret"`
	Language   string   `json:"language"`
	TimeLimit  int      `json:"timeLimit"`
}

// MentorCommand carries the fields shared by the argument-less mentor operations.
type MentorCommand struct {
	SessionID string `json:"sessionId"`
	Secret    string `json:"secret"`
}

type StartQuizRound struct{ MentorCommand }
type StopQuizRound struct{ MentorCommand }
type StopSession struct{ MentorCommand }
type ExportSession struct{ MentorCommand }
type ToggleCoding struct{ MentorCommand }
type ResetSession struct{ MentorCommand }

type KickParticipant struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Secret        string `json:"secret"`
}

type BanParticipant struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Secret        string `json:"secret"`
}

type ImportSession struct {
	SessionID   string `json:"sessionId"`
	FileContent string `json:"fileContent,omitempty"`
	Secret      string `json:"secret"`
}

func (CreateSession) inbound()   {}
func (JoinSession) inbound()     {}
func (CodeChange) inbound()      {}
func (SubmitCode) inbound()      {}
func (AssignTask) inbound()      {}
func (StartQuizRound) inbound()  {}
func (StopQuizRound) inbound()   {}
func (StopSession) inbound()     {}
func (KickParticipant) inbound() {}
func (BanParticipant) inbound()  {}
func (ExportSession) inbound()   {}
func (ImportSession) inbound()   {}
func (ToggleCoding) inbound()    {}
func (ResetSession) inbound()    {}

var inboundDecoders = map[string]func() Inbound{
	MsgCreateSession:   func() Inbound { return &CreateSession{} },
	MsgJoinSession:     func() Inbound { return &JoinSession{} },
	MsgCodeChange:      func() Inbound { return &CodeChange{} },
	MsgSubmitCode:      func() Inbound { return &SubmitCode{} },
	MsgAssignTask:      func() Inbound { return &AssignTask{} },
	MsgStartQuizRound:  func() Inbound { return &StartQuizRound{} },
	MsgStopQuizRound:   func() Inbound { return &StopQuizRound{} },
	MsgStopSession:     func() Inbound { return &StopSession{} },
	MsgKickParticipant: func() Inbound { return &KickParticipant{} },
	MsgBanParticipant:  func() Inbound { return &BanParticipant{} },
	MsgExportSession:   func() Inbound { return &ExportSession{} },
	MsgImportSession:   func() Inbound { return &ImportSession{} },
	MsgToggleCoding:    func() Inbound { return &ToggleCoding{} },
	MsgResetSession:    func() Inbound { return &ResetSession{} },
}

// DecodeInbound parses one transport frame. The returned value is always a
// pointer to one of the message structs above.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	newMsg, ok := inboundDecoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	msg := newMsg()
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, env.Type, err)
	}
	return msg, nil
}
