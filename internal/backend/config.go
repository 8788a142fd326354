package backend

import (
	"fmt"

	"salvadanaio/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Remote: RemoteType(appConfig.RemoteBackend),
		Mode:   PushMode(appConfig.SyncMode),

		MongoURI:        appConfig.MongoURI,
		MongoDatabase:   appConfig.MongoDatabase,
		MongoCollection: appConfig.MongoCollection,

		MemorySeedDir: appConfig.MemorySeedDir,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("invalid sync mode: %s", c.Mode)
	}

	switch c.Remote {
	case MongoRemote:
		if c.MongoURI == "" {
			return fmt.Errorf("MongoDB URI is required for mongo backend")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("MongoDB database and collection are required for mongo backend")
		}
	case MemoryRemote:
		// nothing required
	}

	if c.Mode == QueueMode && c.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required for queue mode")
	}
	return nil
}

// GetRemoteTypeStrings returns all valid remote backend names
func GetRemoteTypeStrings() []string {
	return []string{MemoryRemote.String(), MongoRemote.String()}
}
