package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
)

// Manager applies the pending migrations from an fs.FS.
type Manager struct {
	fsys     fs.FS
	executor *SQLiteExecutor
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(db *sql.DB, fsys fs.FS, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		fsys:     fsys,
		executor: NewSQLiteExecutor(db),
		logger:   logger.With(slog.String("component", "migration")),
	}
}

// Run applies every pending migration in version order and returns the
// versions it applied. An applied file whose content changed fails with
// ErrChecksumMismatch before anything runs.
func (m *Manager) Run(ctx context.Context) ([]string, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, err
	}
	available, err := Scan(m.fsys)
	if err != nil {
		return nil, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range available {
		done, ok := applied[mig.Version]
		if !ok {
			pending = append(pending, mig)
			continue
		}
		if done.Checksum != mig.Checksum {
			return nil, NewMigrationError(mig.Version, mig.FilePath, "verify checksum",
				fmt.Errorf("%w: recorded %s, file %s", ErrChecksumMismatch, done.Checksum, mig.Checksum))
		}
	}

	m.logger.InfoContext(ctx, "schema status",
		slog.Int("applied", len(applied)),
		slog.Int("pending", len(pending)),
	)

	var ran []string
	for _, mig := range pending {
		if err := m.executor.ExecuteMigration(ctx, mig); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				slog.String("version", mig.Version),
				slog.String("file", mig.FilePath),
				slog.Any("error", err),
			)
			return ran, err
		}
		m.logger.InfoContext(ctx, "migration applied",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description),
		)
		ran = append(ran, mig.Version)
	}
	return ran, nil
}
