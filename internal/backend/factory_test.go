package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"salvadanaio/internal/config"
	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/remote"
	"salvadanaio/internal/services"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: applog.NewHandler(io.Discard, "text", slog.LevelError)})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory direct", Config{Remote: MemoryRemote, Mode: DirectMode}, false},
		{"mongo direct", Config{Remote: MongoRemote, Mode: DirectMode, MongoURI: "mongodb://localhost", MongoDatabase: "db", MongoCollection: "c"}, false},
		{"memory queue", Config{Remote: MemoryRemote, Mode: QueueMode, AMQPURL: "amqp://localhost"}, false},
		{"unknown remote", Config{Remote: "sheets", Mode: DirectMode}, true},
		{"unknown mode", Config{Remote: MemoryRemote, Mode: "carrier-pigeon"}, true},
		{"mongo without uri", Config{Remote: MongoRemote, Mode: DirectMode, MongoDatabase: "db", MongoCollection: "c"}, true},
		{"mongo without collection", Config{Remote: MongoRemote, Mode: DirectMode, MongoURI: "mongodb://localhost", MongoDatabase: "db"}, true},
		{"queue without url", Config{Remote: MemoryRemote, Mode: QueueMode}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := &config.Config{
		RemoteBackend:   config.BackendMongo,
		SyncMode:        config.SyncModeDirect,
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "salvadanaio",
		MongoCollection: "profiles",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Remote != MongoRemote || cfg.Mode != DirectMode || cfg.MongoCollection != "profiles" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	ctx := context.Background()
	seed := t.TempDir()
	doc := `{"id":"p1","revision":3,"accounts":[],"categories":[],"transactions":[],"goals":[]}`
	if err := os.WriteFile(filepath.Join(seed, "p1.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(quietLogger()).CreateBackend(ctx, Config{Remote: MemoryRemote, Mode: DirectMode, MemorySeedDir: seed})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup(ctx)

	if got, err := res.Store.Read(ctx, remote.ProfilePath("p1")); err != nil || string(got) != doc {
		t.Fatalf("seeded document = %q, %v", got, err)
	}

	p := core.NewProfile("p2")
	p.Revision = 1
	p.UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := res.Pusher.Push(ctx, p)
	if err != nil || state != services.PushDelivered {
		t.Fatalf("Push() = %s, %v", state, err)
	}
	if _, err := res.Store.Read(ctx, remote.ProfilePath("p2")); err != nil {
		t.Fatalf("pushed document missing: %v", err)
	}
}

func TestCreateBackend_Invalid(t *testing.T) {
	_, err := NewFactory(quietLogger()).CreateBackend(context.Background(), Config{Remote: "sheets", Mode: DirectMode})
	if err == nil {
		t.Fatal("expected error for unknown remote")
	}
}
