package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"frameworks/api_compose/pkg/models"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestInsertOperation(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO stevedore\.operations`).
		WithArgs("op-1", "shop", "up", "pending", "/srv/shop/docker-compose.yml",
			pq.Array([]string{"web"}), "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	op := &models.Operation{
		ID:              "op-1",
		ProjectName:     "shop",
		Action:          "up",
		Status:          models.OperationPending,
		ComposeFilePath: "/srv/shop/docker-compose.yml",
		Services:        []string{"web"},
		RequestedBy:     "user-1",
	}
	if err := store.InsertOperation(context.Background(), op); err != nil {
		t.Fatalf("InsertOperation: %v", err)
	}
	if op.CreatedAt.IsZero() || op.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not populated: %+v", op)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetOperationStatus(t *testing.T) {
	t.Run("terminal", func(t *testing.T) {
		store, mock := newMock(t)

		code := 0
		mock.ExpectExec(`UPDATE stevedore\.operations`).
			WithArgs("op-1", "succeeded", "", 0).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := store.SetOperationStatus(context.Background(), "op-1", models.OperationSucceeded, "", &code); err != nil {
			t.Fatalf("SetOperationStatus: %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		store, mock := newMock(t)

		mock.ExpectExec(`UPDATE stevedore\.operations`).
			WithArgs("missing", "running", "", nil).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.SetOperationStatus(context.Background(), "missing", models.OperationRunning, "", nil)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetOperation(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	finished := now.Add(30 * time.Second)

	rows := sqlmock.NewRows([]string{
		"id", "project_name", "action", "status", "compose_file_path", "services",
		"requested_by", "error", "exit_code", "created_at", "updated_at", "finished_at",
	}).AddRow("op-1", "shop", "up", "succeeded", "/srv/shop/docker-compose.yml",
		"{web,db}", "user-1", "", 0, now, finished, finished)

	mock.ExpectQuery(`FROM stevedore\.operations\s+WHERE id = \$1`).
		WithArgs("op-1").
		WillReturnRows(rows)

	op, err := store.GetOperation(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.ProjectName != "shop" || op.Action != "up" {
		t.Fatalf("unexpected operation: %+v", op)
	}
	if len(op.Services) != 2 || op.Services[0] != "web" {
		t.Fatalf("unexpected services: %v", op.Services)
	}
	if op.ExitCode == nil || *op.ExitCode != 0 {
		t.Fatalf("unexpected exit code: %v", op.ExitCode)
	}
	if op.FinishedAt == nil {
		t.Fatalf("expected finished_at")
	}
	if !op.Terminal() {
		t.Fatalf("expected terminal operation")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOperationNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`FROM stevedore\.operations\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetOperation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOperationsFiltersByProject(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "project_name", "action", "status", "compose_file_path", "services",
		"requested_by", "error", "exit_code", "created_at", "updated_at", "finished_at",
	}).
		AddRow("op-2", "shop", "restart", "pending", "", "{}", "user-1", "", nil, now, now, nil).
		AddRow("op-1", "shop", "up", "failed", "", "{}", "user-1", "exit status 1", 1, now, now, now)

	mock.ExpectQuery(`WHERE project_name = \$1\s+ORDER BY created_at DESC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs("shop", 50, 0).
		WillReturnRows(rows)

	ops, err := store.ListOperations(context.Background(), "shop", 0, 0)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if ops[1].Error != "exit status 1" || ops[1].ExitCode == nil || *ops[1].ExitCode != 1 {
		t.Fatalf("unexpected failed operation: %+v", ops[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGrantsForUser(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`FROM stevedore\.project_grants\s+WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"project_name"}).AddRow("blog").AddRow("shop"))

	grants, err := store.GrantsForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GrantsForUser: %v", err)
	}
	if len(grants) != 2 || grants[0] != "blog" {
		t.Fatalf("unexpected grants: %v", grants)
	}
}

func TestStoreTracksQueryMetrics(t *testing.T) {
	store, mock := newMock(t)

	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_db_queries_total"},
		[]string{"query_type", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_db_query_duration_seconds"},
		[]string{"query_type"},
	)
	connections := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "test_db_connections_active"},
		[]string{"database"},
	)
	store.WithMetrics(queries, duration, connections)

	mock.ExpectQuery(`FROM stevedore\.project_grants\s+WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"project_name"}).AddRow("shop"))

	if _, err := store.GrantsForUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("GrantsForUser: %v", err)
	}
	if got := testutil.ToFloat64(queries.WithLabelValues("grants_for_user", "success")); got != 1 {
		t.Fatalf("expected 1 successful grants query, got %v", got)
	}

	mock.ExpectQuery(`FROM stevedore\.operations\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.GetOperation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// A missing row is a query that ran, not a database failure.
	if got := testutil.ToFloat64(queries.WithLabelValues("get_operation", "success")); got != 1 {
		t.Fatalf("expected the miss to count as success, got %v", got)
	}
	if got := testutil.ToFloat64(queries.WithLabelValues("get_operation", "error")); got != 0 {
		t.Fatalf("expected no error count for the miss, got %v", got)
	}
}
