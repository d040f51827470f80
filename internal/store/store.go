// Package store journals lifecycle operations and project grants in
// Postgres. The unified project view is never persisted; only requests and
// their outcomes are.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"frameworks/api_compose/pkg/models"
)

var ErrNotFound = errors.New("operation not found")

const defaultListLimit = 50

type Store struct {
	db *sql.DB

	queries     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections *prometheus.GaugeVec
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithMetrics attaches query instrumentation. Without it the store runs
// unobserved, which is what the tests do.
func (s *Store) WithMetrics(queries *prometheus.CounterVec, duration *prometheus.HistogramVec, connections *prometheus.GaugeVec) *Store {
	s.queries = queries
	s.duration = duration
	s.connections = connections
	return s
}

// InsertOperation journals a new operation. Timestamps come from the
// database so every row shares one clock.
func (s *Store) InsertOperation(ctx context.Context, op *models.Operation) (err error) {
	start := time.Now()
	defer func() { s.track("insert_operation", start, err) }()

	query := `
		INSERT INTO stevedore.operations
			(id, project_name, action, status, compose_file_path, services, requested_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		op.ID, op.ProjectName, op.Action, op.Status,
		op.ComposeFilePath, pq.Array(op.Services), op.RequestedBy,
	).Scan(&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// SetOperationStatus records a status transition. Terminal statuses also
// stamp finished_at.
func (s *Store) SetOperationStatus(ctx context.Context, id, status, errMsg string, exitCode *int) (err error) {
	start := time.Now()
	defer func() { s.track("set_operation_status", start, err) }()

	query := `
		UPDATE stevedore.operations
		SET status = $2,
			error = $3,
			exit_code = $4,
			updated_at = NOW(),
			finished_at = CASE WHEN $2 IN ('succeeded', 'failed') THEN NOW() ELSE finished_at END
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, status, errMsg, exitCodeArg(exitCode))
	if err != nil {
		return fmt.Errorf("update operation %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operation %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOperation fetches one operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (op *models.Operation, err error) {
	start := time.Now()
	defer func() { s.track("get_operation", start, err) }()

	query := `
		SELECT id, project_name, action, status, compose_file_path, services,
			requested_by, error, exit_code, created_at, updated_at, finished_at
		FROM stevedore.operations
		WHERE id = $1
	`
	op, err = scanOperation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operation %s: %w", id, err)
	}
	return op, nil
}

// ListOperations returns operations newest first, optionally filtered to
// one project.
func (s *Store) ListOperations(ctx context.Context, projectName string, limit, offset int) (operations []models.Operation, err error) {
	start := time.Now()
	defer func() { s.track("list_operations", start, err) }()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var (
		query string
		args  []interface{}
	)
	if projectName == "" {
		query = `
			SELECT id, project_name, action, status, compose_file_path, services,
				requested_by, error, exit_code, created_at, updated_at, finished_at
			FROM stevedore.operations
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		args = []interface{}{limit, offset}
	} else {
		query = `
			SELECT id, project_name, action, status, compose_file_path, services,
				requested_by, error, exit_code, created_at, updated_at, finished_at
			FROM stevedore.operations
			WHERE project_name = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		args = []interface{}{projectName, limit, offset}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("list operations: %w", err)
		}
		operations = append(operations, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return operations, nil
}

// GrantsForUser returns the project names granted to a user. A "*" row
// grants everything.
func (s *Store) GrantsForUser(ctx context.Context, userID string) (grants []string, err error) {
	start := time.Now()
	defer func() { s.track("grants_for_user", start, err) }()

	query := `
		SELECT project_name
		FROM stevedore.project_grants
		WHERE user_id = $1
		ORDER BY project_name
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list grants: %w", err)
		}
		grants = append(grants, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// track records one query. A missing row counts as success; the query
// itself worked.
func (s *Store) track(queryType string, start time.Time, err error) {
	if s.queries == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	s.queries.WithLabelValues(queryType, status).Inc()
	s.duration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
	s.connections.WithLabelValues("postgres").Set(float64(s.db.Stats().OpenConnections))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var (
		op         models.Operation
		errMsg     sql.NullString
		exitCode   sql.NullInt64
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&op.ID, &op.ProjectName, &op.Action, &op.Status,
		&op.ComposeFilePath, pq.Array(&op.Services),
		&op.RequestedBy, &errMsg, &exitCode,
		&op.CreatedAt, &op.UpdatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		op.Error = errMsg.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		op.ExitCode = &code
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		op.FinishedAt = &t
	}
	return &op, nil
}

func exitCodeArg(code *int) interface{} {
	if code == nil {
		return nil
	}
	return *code
}
