package storage

import (
	"fmt"
	"log/slog"
)

// Config selects and configures the storage backends. A nil backend
// config means that backend is not configured.
type Config struct {
	Current        Backend
	OwnershipOrder []Backend

	VercelBlob *VercelBlobConfig
	AWSS3      *S3Config
	R2         *R2Config
	MinIO      *MinIOConfig
	LocalFS    *LocalConfig
}

// NewRouterFromConfig builds an adapter for every configured backend and
// wires them into a Router.
func NewRouterFromConfig(cfg Config, logger *slog.Logger) (*Router, error) {
	var adapters []Adapter

	if cfg.VercelBlob != nil {
		a, err := NewVercelBlobStorage(*cfg.VercelBlob, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.AWSS3 != nil {
		a, err := NewAWSS3Storage(*cfg.AWSS3, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.R2 != nil {
		a, err := NewR2Storage(*cfg.R2, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.MinIO != nil {
		a, err := NewMinIOStorage(*cfg.MinIO, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.LocalFS != nil {
		a, err := NewLocalStorage(*cfg.LocalFS, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	router, err := NewRouter(cfg.Current, cfg.OwnershipOrder, adapters, logger)
	if err != nil {
		return nil, fmt.Errorf("storage router: %w", err)
	}

	logger.Info("storage ready",
		"current", cfg.Current.Label(),
		"configured", router.Configured(),
	)

	return router, nil
}
