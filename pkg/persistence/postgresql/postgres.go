// Package postgresql provides the PostgreSQL persistence implementation. Records are stored as
// JSONB documents next to the columns they are queried by.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	claimRepo    *ClaimRepository
	handoffRepo  *HandoffRepository
	workItemRepo *WorkItemRepository
	gateRepo     *GateRepository
	scheduleRepo *ScheduleRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		claimRepo:    NewClaimRepository(database, logger),
		handoffRepo:  NewHandoffRepository(database, logger),
		workItemRepo: NewWorkItemRepository(database),
		gateRepo:     NewGateRepository(database),
		scheduleRepo: NewScheduleRepository(database),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) ClaimRepository() persistence.ClaimRepository {
	return p.claimRepo
}

func (p *Persistence) HandoffRepository() persistence.HandoffRepository {
	return p.handoffRepo
}

func (p *Persistence) WorkItemRepository() persistence.WorkItemRepository {
	return p.workItemRepo
}

func (p *Persistence) GateRepository() persistence.GateRepository {
	return p.gateRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

var _ persistence.Persistence = (*Persistence)(nil)

// isUniqueViolation reports whether err is a primary key or unique constraint conflict.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// queryDocuments decodes the single JSONB column of every row returned by query.
func queryDocuments[T any](ctx context.Context, queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, logger *slog.Logger, query string, args ...any) ([]T, error) {
	rows, err := queryer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	documents := make([]T, 0)

	for rows.Next() {
		var (
			raw      []byte
			document T
		)

		err := rows.Scan(&raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		err = json.Unmarshal(raw, &document)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}

		documents = append(documents, document)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}

// getDocument decodes the JSONB column of a single-row query, returning persistence.ErrNotFound
// when there is no row.
func getDocument(ctx context.Context, db *sql.DB, document any, query string, args ...any) error {
	var raw []byte

	err := db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}

		return fmt.Errorf("failed to query document: %w", err)
	}

	err = json.Unmarshal(raw, document)
	if err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return nil
}
