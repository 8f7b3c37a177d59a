package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/persistence/file"
	"github.com/dukex/handoff/pkg/persistence/postgresql"
	"github.com/dukex/handoff/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence selects the storage backend from the scheme of databaseURL. An empty url,
// a file:// url or a bare path stores everything as JSON documents under artifactsDir.
// redis:// keeps claims in Redis and every other record under artifactsDir.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, artifactsDir string) (persistence.Persistence, error) {
	if err := ValidateDatabaseURL(databaseURL); err != nil {
		return nil, err
	}

	provider := parsePersistenceProvider(databaseURL)

	logger.DebugContext(ctx, "Initializing persistence", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, logger, databaseURL, file.NewPersistence(artifactsDir))
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		root := artifactsDir
		if path, ok := strings.CutPrefix(databaseURL, "file://"); ok && path != "" {
			root = path
		}

		return file.NewPersistence(root), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "unsupported:" + provider
}

// ValidateDatabaseURL rejects urls whose scheme has no backend.
func ValidateDatabaseURL(databaseURL string) error {
	if provider := parsePersistenceProvider(databaseURL); strings.HasPrefix(provider, "unsupported:") {
		return fmt.Errorf("unsupported persistence provider: %s", strings.TrimPrefix(provider, "unsupported:"))
	}

	return nil
}
