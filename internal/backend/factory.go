package backend

import (
	"context"
	"errors"
	"fmt"

	"salvadanaio/internal/amqp"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/remote"
	"salvadanaio/internal/remote/memory"
	"salvadanaio/internal/remote/mongostore"
	"salvadanaio/internal/services"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []CleanupFunc
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i](ctx))
		}
		return errors.Join(errs...)
	}

	store, closeStore, err := f.createRemote(ctx, config)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		cleanups = append(cleanups, closeStore)
	}

	direct := services.NewRemotePusher(store)
	result := &BackendResult{
		Store:   store,
		Pusher:  direct,
		Direct:  direct,
		Cleanup: cleanup,
	}

	if config.Mode == QueueMode {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			_ = cleanup(ctx)
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		cleanups = append(cleanups, func(context.Context) error { return client.Close() })
		result.Pusher = services.NewQueuePusher(client)
		f.logger.InfoContext(ctx, "Initialized AMQP publisher",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
	}

	f.logger.InfoContext(ctx, "Initialized remote backend",
		"remote", config.Remote.String(),
		"sync_mode", string(config.Mode))
	return result, nil
}

func (f *DefaultFactory) createRemote(ctx context.Context, config Config) (remote.Store, CleanupFunc, error) {
	switch config.Remote {
	case MongoRemote:
		client, err := mongostore.Connect(ctx, config.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		coll := mongostore.NewCollection(client, config.MongoDatabase, config.MongoCollection)
		f.logger.InfoContext(ctx, "Initialized MongoDB remote",
			"database", config.MongoDatabase,
			"collection", config.MongoCollection)
		return mongostore.New(coll, mongostore.WithLogger(f.logger.WithComponent(applog.ComponentRemote))), client.Disconnect, nil

	case MemoryRemote:
		if config.MemorySeedDir == "" {
			return memory.New(), nil, nil
		}
		f.logger.InfoContext(ctx, "Initialized memory remote", "seed_directory", config.MemorySeedDir)
		return memory.NewFromDir(config.MemorySeedDir), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported remote backend: %s", config.Remote)
	}
}
