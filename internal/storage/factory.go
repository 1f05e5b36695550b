package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mediavault/service/internal/config"
)

// NewRegistryFromConfig constructs one adapter per enabled provider, in
// the configured order, and wraps them in a registry. Any adapter that
// cannot be constructed fails the whole call: the service must not start
// with a partially-initialized provider set.
func NewRegistryFromConfig(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Registry, error) {
	adapters := make([]Adapter, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		a, err := newAdapter(ctx, name, cfg)
		if err != nil {
			return nil, fmt.Errorf("init %s provider: %w", name, err)
		}
		logger.Info().Str("provider", name).Msg("storage provider initialized")
		adapters = append(adapters, a)
	}
	return NewRegistry(logger, adapters...)
}

func newAdapter(ctx context.Context, name string, cfg config.StorageConfig) (Adapter, error) {
	switch Provider(name) {
	case ProviderMinio:
		return NewMinioAdapter(cfg.Minio)
	case ProviderAWS:
		return NewS3Adapter(cfg.AWS)
	case ProviderGoogle:
		return NewGCSAdapter(ctx, cfg.Google)
	case ProviderAzure:
		return NewAzureAdapter(cfg.Azure)
	case ProviderLocal:
		return NewLocalAdapter(cfg.Local)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", name)
	}
}
