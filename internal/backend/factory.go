package backend

import (
	"context"
	"errors"
	"fmt"

	"feedesk/internal/amqp"
	"feedesk/internal/feeapi/memory"
	"feedesk/internal/feeapi/rest"
	"feedesk/internal/log"
	"feedesk/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend. A failing AMQP connection
// is logged and the backend is returned without a publisher.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case APIBackend:
		res, err = f.createAPIBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, "")
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without payment events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange)
			res.Publisher = client
			res.Cleanup = chain(res.Cleanup, client.Close)
		}
	}
	return res, nil
}

func (f *DefaultFactory) createAPIBackend(config Config) (*BackendResult, error) {
	client, err := rest.New(config.APIBaseURL, config.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fee API client: %w", err)
	}
	f.logger.Info("Initialized fee API backend", "base_url", config.APIBaseURL, "timeout", config.APITimeout)
	return &BackendResult{Backend: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store := memory.NewFromFiles(dataDir, config.SchoolID)
	f.logger.Info("Initialized memory backend", "data_directory", dataDir, log.FieldSchoolID, config.SchoolID)
	return &BackendResult{Backend: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if roster := memory.ReadRoster(config.DataDirectory, config.SchoolID); len(roster) > 0 {
		if err := repo.SeedStudents(ctx, roster); err != nil {
			repo.Close()
			return nil, err
		}
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath, log.FieldSchoolID, config.SchoolID)
	return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil
}

// chain runs both cleanups and joins their errors.
func chain(a, b CleanupFunc) CleanupFunc {
	if a == nil {
		return b
	}
	return func() error {
		return errors.Join(b(), a())
	}
}
