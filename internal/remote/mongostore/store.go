// Package mongostore stores profile documents in a MongoDB collection and
// streams replacements through change streams. Change streams need a
// replica set or sharded cluster.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	applog "salvadanaio/internal/log"
	"salvadanaio/internal/remote"
)

const (
	minResubscribeDelay = 500 * time.Millisecond
	maxResubscribeDelay = 30 * time.Second
)

// record is how a profile document is laid out in the collection. The
// document itself lives under doc so its fields cannot clash with _id.
type record struct {
	ID        string    `bson:"_id"`
	Revision  int64     `bson:"revision"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Doc       bson.Raw  `bson:"doc"`
}

type changeEvent struct {
	OperationType string  `bson:"operationType"`
	FullDocument  *record `bson:"fullDocument"`
}

type Store struct {
	coll   DataStore
	now    func() time.Time
	logger *applog.Logger
}

var _ remote.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(coll DataStore, opts ...Option) *Store {
	s := &Store{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentRemote,
		})
	}
	return s
}

func (s *Store) Write(ctx context.Context, path string, doc []byte) error {
	var header struct {
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(doc, &header); err != nil {
		return fmt.Errorf("read document header: %w", err)
	}
	var body bson.D
	if err := bson.UnmarshalExtJSON(doc, false, &body); err != nil {
		return fmt.Errorf("convert document to bson: %w", err)
	}

	replacement := bson.D{
		{Key: "_id", Value: path},
		{Key: "revision", Value: int64(header.Revision)},
		{Key: "updatedAt", Value: s.now().UTC()},
		{Key: "doc", Value: body},
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: path}}, replacement, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: path}}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	raw, err := s.coll.FindRaw(ctx, bson.D{{Key: "_id", Value: path}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, remote.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec record
	if err := bson.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return documentJSON(rec)
}

// Subscribe watches the document at path. A broken change stream is reopened
// with backoff, and the current document is re-read after every reopen so no
// replacement is missed.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan []byte, error) {
	cs, err := s.watch(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(chan []byte)
	go s.stream(ctx, path, cs, out)
	return out, nil
}

func (s *Store) watch(ctx context.Context, path string) (ChangeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "documentKey._id", Value: path},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "replace", "update"}}}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return cs, nil
}

func (s *Store) stream(ctx context.Context, path string, cs ChangeStream, out chan<- []byte) {
	defer close(out)
	delay := minResubscribeDelay
	logger := s.logger.With(applog.FieldRemotePath, path)

	for {
		if !s.sendCurrent(ctx, path, out) {
			cs.Close(context.Background())
			return
		}
		for cs.Next(ctx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				logger.WarnContext(ctx, "Skipping undecodable change event", applog.FieldError, err)
				continue
			}
			if ev.FullDocument == nil {
				continue
			}
			doc, err := documentJSON(*ev.FullDocument)
			if err != nil {
				logger.WarnContext(ctx, "Skipping change event", applog.FieldError, err)
				continue
			}
			if !send(ctx, out, doc) {
				cs.Close(context.Background())
				return
			}
			delay = minResubscribeDelay
		}
		streamErr := cs.Err()
		cs.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		logger.WarnContext(ctx, "Change stream ended, resubscribing",
			applog.FieldError, streamErr, "delay", delay)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxResubscribeDelay)

			next, err := s.watch(ctx, path)
			if err == nil {
				cs = next
				break
			}
			logger.WarnContext(ctx, "Resubscribe failed", applog.FieldError, err)
		}
	}
}

// sendCurrent forwards the stored document, if any. It reports false once
// ctx is done.
func (s *Store) sendCurrent(ctx context.Context, path string, out chan<- []byte) bool {
	doc, err := s.Read(ctx, path)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return ctx.Err() == nil
	case err != nil:
		s.logger.WarnContext(ctx, "Failed to read current document",
			applog.FieldRemotePath, path, applog.FieldError, err)
		return ctx.Err() == nil
	}
	return send(ctx, out, doc)
}

func send(ctx context.Context, out chan<- []byte, doc []byte) bool {
	select {
	case out <- doc:
		return true
	case <-ctx.Done():
		return false
	}
}

func documentJSON(rec record) ([]byte, error) {
	if len(rec.Doc) == 0 {
		return nil, fmt.Errorf("document %s has no body", rec.ID)
	}
	data, err := bson.MarshalExtJSON(rec.Doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert %s to json: %w", rec.ID, err)
	}
	return data, nil
}
