package service

import (
	"context"
	"errors"

	"codementor/internal/model"
)

// Caller runs fn on the loop and waits for it.
type Caller interface {
	Call(ctx context.Context, fn func(ctx context.Context)) error
}

// StandingsSource serves standings that outlive a session.
type StandingsSource interface {
	Standings(ctx context.Context, sessionID string) ([]model.Standing, error)
}

// AdminService answers admin API reads by hopping onto the loop.
type AdminService struct {
	loop     Caller
	coord    *Coordinator
	fallback StandingsSource
}

// NewAdminService creates the admin read service. fallback may be nil.
func NewAdminService(loop Caller, coord *Coordinator, fallback StandingsSource) *AdminService {
	return &AdminService{loop: loop, coord: coord, fallback: fallback}
}

func (a *AdminService) Sessions(ctx context.Context) ([]model.SessionSummary, error) {
	var out []model.SessionSummary
	err := a.loop.Call(ctx, func(context.Context) {
		out = a.coord.Sessions()
	})
	return out, err
}

// Standings returns live standings, or mirrored ones once the session is gone.
func (a *AdminService) Standings(ctx context.Context, sessionID string) ([]model.Standing, error) {
	var (
		out     []model.Standing
		liveErr error
	)
	if err := a.loop.Call(ctx, func(context.Context) {
		out, liveErr = a.coord.Standings(sessionID)
	}); err != nil {
		return nil, err
	}
	if liveErr == nil {
		return out, nil
	}
	if !errors.Is(liveErr, ErrSessionNotFound) || a.fallback == nil {
		return nil, liveErr
	}
	out, err := a.fallback.Standings(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, liveErr
	}
	return out, nil
}

func (a *AdminService) Snapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	var (
		snap    *model.Snapshot
		liveErr error
	)
	if err := a.loop.Call(ctx, func(context.Context) {
		snap, liveErr = a.coord.Snapshot(sessionID)
	}); err != nil {
		return nil, err
	}
	return snap, liveErr
}
