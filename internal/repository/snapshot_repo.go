package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codementor/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrInvalidSnapshotID = errors.New("invalid snapshot id")
)

type SnapshotRepo interface {
	Save(ctx context.Context, snap *model.Snapshot) (string, error)
	Load(ctx context.Context, sessionID string) (*model.Snapshot, error)
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

type mongoSnapshotRepo struct {
	collection *mongo.Collection
	location   string
}

func NewMongoSnapshotRepo(client *mongo.Client, database string) SnapshotRepo {
	db := client.Database(database)
	return &mongoSnapshotRepo{
		collection: db.Collection("snapshots"),
		location:   "mongodb://" + database + "/snapshots/",
	}
}

func (r *mongoSnapshotRepo) Save(ctx context.Context, snap *model.Snapshot) (string, error) {
	if !validID(snap.SessionID) {
		return "", ErrInvalidSnapshotID
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": snap.SessionID}, snap, options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return r.location + snap.SessionID, nil
}

func (r *mongoSnapshotRepo) Load(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		return nil, err
	}
	return &snap, nil
}

// fileSnapshotRepo stores one indented JSON file per session in dir.
type fileSnapshotRepo struct {
	dir string
}

func NewFileSnapshotRepo(dir string) SnapshotRepo {
	return &fileSnapshotRepo{dir: dir}
}

func (r *fileSnapshotRepo) path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".json")
}

func (r *fileSnapshotRepo) Save(ctx context.Context, snap *model.Snapshot) (string, error) {
	if !validID(snap.SessionID) {
		return "", ErrInvalidSnapshotID
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(r.dir, snap.SessionID+".*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	target := r.path(snap.SessionID)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

func (r *fileSnapshotRepo) Load(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	if !validID(sessionID) {
		return nil, ErrInvalidSnapshotID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		return nil, err
	}
	snap, err := model.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	snap.SessionID = sessionID
	return snap, nil
}
