package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"p4-go/internal/config"
)

// NewJournalFromConfig opens the journal selected by cfg.Type. It returns
// nil, nil for type "none" (or an empty type). In-memory journals are
// migrated on open; sqlite journals must be migrated with Migrate.
func NewJournalFromConfig(cfg config.JournalConfig, opts Options) (*Journal, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		return Open(filepath.Join(cfg.DataDir, "journal.db"), opts)
	case "memory":
		j, err := Open(":memory:", opts)
		if err != nil {
			return nil, err
		}
		if err := j.Migrate(); err != nil {
			j.Close()
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
