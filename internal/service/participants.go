package service

import (
	"codementor/internal/model"
)

// Learner is a participant working on tasks. conn is nil while detached.
type Learner struct {
	ID       string
	Name     string
	Gravatar string
	Code     string
	Task     string
	Language string
	Status   model.LearnerStatus
	conn     Conn
}

func (l *Learner) Summary() model.LearnerSummary {
	return model.LearnerSummary{
		ID:       l.ID,
		Name:     l.Name,
		Code:     l.Code,
		Task:     l.Task,
		Gravatar: l.Gravatar,
		Language: l.Language,
		Status:   l.Status,
	}
}

func (l *Learner) Connected() bool { return l.conn != nil }

// Directory is the insertion-ordered learner set of one session.
type Directory struct {
	order []string
	byID  map[string]*Learner
}

func NewDirectory() *Directory {
	return &Directory{byID: make(map[string]*Learner)}
}

func (d *Directory) Add(l *Learner) {
	if _, ok := d.byID[l.ID]; !ok {
		d.order = append(d.order, l.ID)
	}
	d.byID[l.ID] = l
}

func (d *Directory) Get(id string) (*Learner, bool) {
	l, ok := d.byID[id]
	return l, ok
}

// ByName finds a learner by exact display name.
func (d *Directory) ByName(name string) (*Learner, bool) {
	for _, id := range d.order {
		if l := d.byID[id]; l.Name == name {
			return l, true
		}
	}
	return nil, false
}

func (d *Directory) ByConn(conn Conn) (*Learner, bool) {
	for _, id := range d.order {
		if l := d.byID[id]; sameConn(l.conn, conn) {
			return l, true
		}
	}
	return nil, false
}

func (d *Directory) Remove(id string) bool {
	if _, ok := d.byID[id]; !ok {
		return false
	}
	delete(d.byID, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns learners in join order.
func (d *Directory) All() []*Learner {
	out := make([]*Learner, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

func (d *Directory) Summaries() []model.LearnerSummary {
	out := make([]model.LearnerSummary, 0, len(d.order))
	for _, l := range d.All() {
		out = append(out, l.Summary())
	}
	return out
}

func (d *Directory) Len() int { return len(d.order) }
