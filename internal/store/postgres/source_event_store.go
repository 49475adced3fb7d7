package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// SourceEventStore implements domain.SourceEventStore using PostgreSQL.
type SourceEventStore struct {
	pool *pgxpool.Pool
}

// NewSourceEventStore creates a store backed by the given connection pool.
func NewSourceEventStore(pool *pgxpool.Pool) *SourceEventStore {
	return &SourceEventStore{pool: pool}
}

// Record appends one transition.
func (s *SourceEventStore) Record(ctx context.Context, ev domain.SourceEvent) error {
	const query = `
		INSERT INTO source_events (id, run_id, venue, symbol, state, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.RunID, ev.Venue, ev.Symbol, string(ev.State), ev.Error, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: record source event %s/%s: %w", ev.Venue, ev.Symbol, err)
	}
	return nil
}

// List returns transitions newest first. Empty venue or symbol matches all.
func (s *SourceEventStore) List(ctx context.Context, venue, symbol string, opts domain.ListOpts) ([]domain.SourceEvent, error) {
	query, args := listQuery(venue, symbol, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list source events: %w", err)
	}
	defer rows.Close()

	var events []domain.SourceEvent
	for rows.Next() {
		var (
			e     domain.SourceEvent
			state string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Venue, &e.Symbol, &state, &e.Error, &e.At); err != nil {
			return nil, fmt.Errorf("postgres: scan source event: %w", err)
		}
		e.State = domain.TaskState(state)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list source events rows: %w", err)
	}
	return events, nil
}

// listQuery builds the filtered, paginated SELECT for List.
func listQuery(venue, symbol string, opts domain.ListOpts) (string, []any) {
	query := `SELECT id::text, run_id::text, venue, symbol, state, error, at FROM source_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if venue != "" {
		query += fmt.Sprintf(" AND venue = $%d", argIdx)
		args = append(args, venue)
		argIdx++
	}
	if symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

var _ domain.SourceEventStore = (*SourceEventStore)(nil)
