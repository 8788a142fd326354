package backend

import (
	"context"

	"salvadanaio/internal/remote"
	"salvadanaio/internal/services"
)

// CleanupFunc releases the connections a backend opened.
type CleanupFunc func(ctx context.Context) error

// BackendResult contains the remote store, the pushers built on it and a
// cleanup function.
type BackendResult struct {
	Store remote.Store
	// Pusher is what commands push through: the remote store itself in
	// direct mode, the message broker in queue mode.
	Pusher services.Pusher
	// Direct always writes straight to Store. The worker and the outbox
	// processor of a queue-mode deployment use it.
	Direct  services.Pusher
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Remote RemoteType
	Mode   PushMode

	// Mongo specific
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Memory specific. Empty means start with no documents.
	MemorySeedDir string

	// Queue mode
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// RemoteType names the document store holding the shared copy of profiles.
type RemoteType string

const (
	MemoryRemote RemoteType = "memory"
	MongoRemote  RemoteType = "mongo"
)

func (rt RemoteType) String() string {
	return string(rt)
}

func (rt RemoteType) IsValid() bool {
	switch rt {
	case MemoryRemote, MongoRemote:
		return true
	default:
		return false
	}
}

// PushMode decides how a committed snapshot travels to the remote store.
type PushMode string

const (
	DirectMode PushMode = "direct"
	QueueMode  PushMode = "queue"
)

func (pm PushMode) IsValid() bool {
	return pm == DirectMode || pm == QueueMode
}
