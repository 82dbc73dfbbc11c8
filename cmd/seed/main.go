package main

import (
	"context"
	"flag"
	"os"
	"time"

	"codementor/internal/cache"
	"codementor/internal/config"
	"codementor/internal/ident"
	"codementor/internal/model"
	"codementor/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/log"
)

func main() {
	sessionID := flag.String("session", "DEMO2345", "session ID to store the demo snapshot under")
	flag.Parse()

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo repository.SnapshotRepo
	switch cfg.SnapshotBackend {
	case config.SnapshotMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf(ctx, err, "failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())
		repo = repository.NewMongoSnapshotRepo(client, cfg.MongoDatabase)
	case config.SnapshotRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		defer rdb.Close()
		repo = cache.NewSnapshotCache(rdb, cfg.SnapshotTTL)
	case config.SnapshotFile:
		repo = repository.NewFileSnapshotRepo(cfg.SessionsDir)
	default:
		log.Printf(ctx, "unknown SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
		os.Exit(1)
	}

	location, err := repo.Save(ctx, demoSnapshot(*sessionID))
	if err != nil {
		log.Fatalf(ctx, err, "failed to save demo snapshot")
	}
	log.Print(ctx, log.KV{K: "msg", V: "demo snapshot stored"}, log.KV{K: "session", V: *sessionID}, log.KV{K: "location", V: location})
}

func demoSnapshot(sessionID string) *model.Snapshot {
	learners := []model.LearnerSummary{
		{ID: ident.NewLearnerID(), Name: "Ana", Gravatar: ident.Gravatar("Ana"), Language: "python",
			Code: "def fizzbuzz(n):\n    return [str(i) for i in range(1, n + 1)]\n", Task: "Write fizzbuzz(n)"},
		{ID: ident.NewLearnerID(), Name: "Bruno", Gravatar: ident.Gravatar("Bruno"), Language: "python",
			Task: "Write fizzbuzz(n)"},
		{ID: ident.NewLearnerID(), Name: "Chen", Gravatar: ident.Gravatar("Chen"), Language: "go",
			Code: "func Reverse(s string) string {\n\treturn s\n}\n", Task: "Reverse a string"},
	}
	ids := []string{learners[0].ID, learners[1].ID}

	tasks := []model.TaskEntry{
		{TaskID: "t_fizz", Task: model.Task{TaskID: "t_fizz", Content: "Write fizzbuzz(n)", LearnerIDs: ids, Language: "python", TimeLimit: 300}},
		{TaskID: "t_rev", Task: model.Task{TaskID: "t_rev", Content: "Reverse a string", LearnerIDs: []string{learners[2].ID}, Language: "go", TimeLimit: 180}},
	}

	return &model.Snapshot{
		SessionID: sessionID,
		Learners:  learners,
		Tasks:     tasks,
		Leaderboard: []model.Standing{
			{Name: "Ana", Score: 8, Speed: 142.5},
			{Name: "Bruno", Score: 3, Speed: 300},
			{Name: "Chen", Score: 6, Speed: 97.2},
		},
		ExportedAt: time.Now(),
	}
}
