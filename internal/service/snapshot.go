package service

import (
	"context"
	"encoding/json"
	"errors"

	"codementor/internal/model"

	"goa.design/clue/log"
)

var ErrSessionOwned = errors.New("session is owned by another mentor")

// SnapshotRepo persists exported sessions.
type SnapshotRepo interface {
	Save(ctx context.Context, snap *model.Snapshot) (location string, err error)
	Load(ctx context.Context, sessionID string) (*model.Snapshot, error)
}

// buildSnapshot copies the connection-free part of s.
func buildSnapshot(s *Session) *model.Snapshot {
	snap := &model.Snapshot{
		SessionID:   s.ID,
		Learners:    s.learners.Summaries(),
		Tasks:       make([]model.TaskEntry, 0, len(s.taskOrder)),
		Leaderboard: s.leaderboard.Entries(),
	}
	for _, id := range s.taskOrder {
		snap.Tasks = append(snap.Tasks, model.TaskEntry{TaskID: id, Task: s.tasks[id]})
	}
	return snap
}

// restoreSession rebuilds a session from snap with every learner detached.
func restoreSession(id string, mentor Conn, snap *model.Snapshot) *Session {
	s := newSession(id, mentor)
	for _, ls := range snap.Learners {
		status := ls.Status
		if status == "" {
			status = model.LearnerIdle
		}
		s.learners.Add(&Learner{
			ID:       ls.ID,
			Name:     ls.Name,
			Gravatar: ls.Gravatar,
			Code:     ls.Code,
			Task:     ls.Task,
			Language: ls.Language,
			Status:   status,
		})
	}
	for _, te := range snap.Tasks {
		t := te.Task
		if t.TaskID == "" {
			t.TaskID = te.TaskID
		}
		if t.LearnerIDs == nil {
			t.LearnerIDs = []string{}
		}
		s.taskOrder = append(s.taskOrder, te.TaskID)
		s.tasks[te.TaskID] = t
	}
	s.leaderboard = leaderboardFrom(snap.Leaderboard)
	return s
}

func (c *Coordinator) exportSession(ctx context.Context, conn Conn, m *model.ExportSession) {
	s, ok := c.authorize(ctx, conn, m.SessionID, m.Secret)
	if !ok {
		return
	}
	snap := buildSnapshot(s)
	snap.ExportedAt = c.now()
	content, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode snapshot"}, log.KV{K: "session", V: s.ID})
		send(ctx, conn, model.ErrorMsg{Message: "Failed to export session"})
		return
	}
	if c.snapshots == nil {
		send(ctx, conn, model.SessionExported{SessionID: s.ID, FileContent: string(content)})
		return
	}

	sessionID := s.ID
	c.loop.Go(func() {
		location, err := c.snapshots.Save(ctx, snap)
		c.loop.Post(func(ctx context.Context) {
			if err != nil {
				log.Error(ctx, err, log.KV{K: "msg", V: "save snapshot"}, log.KV{K: "session", V: sessionID})
				send(ctx, conn, model.ErrorMsg{Message: "Failed to export session"})
				return
			}
			log.Info(ctx, log.KV{K: "msg", V: "session exported"}, log.KV{K: "session", V: sessionID}, log.KV{K: "location", V: location})
			send(ctx, conn, model.SessionExported{SessionID: sessionID, FilePath: location, FileContent: string(content)})
		})
	})
}

func (c *Coordinator) importSession(ctx context.Context, conn Conn, m *model.ImportSession) {
	if !c.secretOK(m.Secret) {
		send(ctx, conn, model.ErrorMsg{Message: msgInvalidSecret})
		return
	}
	if m.SessionID == "" {
		send(ctx, conn, model.ErrorMsg{Message: "Session ID is required"})
		return
	}
	if err := c.checkImportTarget(m.SessionID, conn); err != nil {
		send(ctx, conn, model.ErrorMsg{Message: "Failed to import session: " + err.Error()})
		return
	}

	if m.FileContent != "" {
		snap, err := model.ParseSnapshot([]byte(m.FileContent))
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "parse snapshot"}, log.KV{K: "session", V: m.SessionID})
			send(ctx, conn, model.ErrorMsg{Message: "Failed to import session"})
			return
		}
		c.installSnapshot(ctx, conn, m.SessionID, snap)
		return
	}

	if c.snapshots == nil {
		send(ctx, conn, model.ErrorMsg{Message: "Failed to import session: no snapshot content"})
		return
	}
	sessionID := m.SessionID
	c.loop.Go(func() {
		snap, err := c.snapshots.Load(ctx, sessionID)
		c.loop.Post(func(ctx context.Context) {
			// HandleClose for conn may already have run.
			if conn.Closed() {
				log.Info(ctx, log.KV{K: "msg", V: "import dropped"}, log.KV{K: "session", V: sessionID}, log.KV{K: "reason", V: "connection closed"})
				return
			}
			if err != nil {
				log.Error(ctx, err, log.KV{K: "msg", V: "load snapshot"}, log.KV{K: "session", V: sessionID})
				send(ctx, conn, model.ErrorMsg{Message: "Failed to import session"})
				return
			}
			if err := c.checkImportTarget(sessionID, conn); err != nil {
				send(ctx, conn, model.ErrorMsg{Message: "Failed to import session: " + err.Error()})
				return
			}
			c.installSnapshot(ctx, conn, sessionID, snap)
		})
	})
}

// checkImportTarget refuses to overwrite a live session whose mentor is a
// different connection.
func (c *Coordinator) checkImportTarget(sessionID string, conn Conn) error {
	existing, err := c.store.Get(sessionID)
	if err != nil {
		return nil
	}
	if existing.mentor != nil && !sameConn(existing.mentor, conn) {
		return ErrSessionOwned
	}
	return nil
}

func (c *Coordinator) installSnapshot(ctx context.Context, conn Conn, sessionID string, snap *model.Snapshot) {
	s := restoreSession(sessionID, conn, snap)
	c.store.Put(s)
	log.Info(ctx, log.KV{K: "msg", V: "session imported"}, log.KV{K: "session", V: sessionID}, log.KV{K: "learners", V: s.learners.Len()})
	send(ctx, conn, model.SessionImported{SessionID: sessionID})
	send(ctx, conn, model.SessionStateMsg{SessionState: s.State()})
	c.publisher.Publish(sessionID, s.leaderboard.Entries())
}

// Snapshot returns the export view of a live session.
func (c *Coordinator) Snapshot(sessionID string) (*model.Snapshot, error) {
	s, err := c.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return buildSnapshot(s), nil
}
