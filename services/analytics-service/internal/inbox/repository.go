package inbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	table string
}

func NewRepository(table string) *Repository {
	if table == "" {
		table = "analytics_inbox_events"
	}
	return &Repository{table: table}
}

// Record marks eventID as handled. It returns false when the event was
// already recorded, in which case the caller must skip its side effects.
// Run it in the same transaction as those side effects.
func (r *Repository) Record(ctx context.Context, exec Execer, eventID, eventType string) (bool, error) {
	tag, err := exec.Exec(ctx, `
		INSERT INTO `+r.table+` (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
