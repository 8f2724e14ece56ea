package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/ports/output"
)

const artifactEventSchema = `
	CREATE TABLE IF NOT EXISTS artifact_event (
		id            UUID PRIMARY KEY,
		created_at    TIMESTAMPTZ NOT NULL,
		artifact_name TEXT NOT NULL,
		remote_id     TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		size_bytes    BIGINT NOT NULL DEFAULT 0,
		sha256        TEXT NOT NULL DEFAULT '',
		detail        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_artifact_event_name_created
		ON artifact_event (artifact_name, created_at DESC);
`

type artifactEventRepo struct {
	pool *pgxpool.Pool
}

func NewArtifactEventRepository(pool *pgxpool.Pool) ports.ArtifactLedger {
	return &artifactEventRepo{pool: pool}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, artifactEventSchema); err != nil {
		return fmt.Errorf("create artifact_event schema: %w", err)
	}
	return nil
}

func (r *artifactEventRepo) Record(ctx context.Context, event *domain.ArtifactEvent) error {
	query := `
		INSERT INTO artifact_event
			(id, created_at, artifact_name, remote_id, outcome, size_bytes, sha256, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID, event.CreatedAt, event.ArtifactName, event.RemoteID,
		string(event.Outcome), event.SizeBytes, event.SHA256, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("record artifact event: %w", err)
	}
	return nil
}

func (r *artifactEventRepo) ListRecent(ctx context.Context, artifactName string, limit int) ([]*domain.ArtifactEvent, error) {
	query := `
		SELECT id, created_at, artifact_name, remote_id, outcome, size_bytes, sha256, detail
		FROM artifact_event
		WHERE artifact_name = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, artifactName, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifact events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ArtifactEvent
	for rows.Next() {
		e, err := scanArtifactEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact event rows: %w", err)
	}
	return events, nil
}

func scanArtifactEvent(rows pgx.Rows) (*domain.ArtifactEvent, error) {
	var e domain.ArtifactEvent
	var outcome string
	err := rows.Scan(
		&e.ID, &e.CreatedAt, &e.ArtifactName, &e.RemoteID,
		&outcome, &e.SizeBytes, &e.SHA256, &e.Detail,
	)
	if err != nil {
		return nil, err
	}
	e.Outcome = domain.ArtifactOutcome(outcome)
	return &e, nil
}
