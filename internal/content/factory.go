package content

import (
	"context"
	"fmt"
	"os"

	"socratic-go/internal/config"
	"socratic-go/internal/ledger"
)

// NewStoreFromConfig creates a ContentStore based on the content config type.
func NewStoreFromConfig(cfg config.ContentConfig) (ledger.ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem content store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(context.Background(), cfg, os.Getenv("AWS_ACCESS_KEY"), os.Getenv("AWS_SECRET_KEY"))
	default:
		return nil, fmt.Errorf("unknown content store type: %s", cfg.Type)
	}
}
