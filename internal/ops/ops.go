// Package ops takes validated action requests, journals them and hands
// them to the executor. Containers are never touched from here; dockhand
// reports progress back through status callbacks.
package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"frameworks/api_compose/internal/actions"
	"frameworks/api_compose/internal/store"
	"frameworks/api_compose/pkg/clients/dockhand"
	"frameworks/api_compose/pkg/models"
	"frameworks/api_compose/pkg/monitoring"
	"frameworks/api_compose/pkg/validation"
)

var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrProjectNotFound     = errors.New("project not found")
	ErrActionUnavailable   = errors.New("action not available in current project state")
	ErrComposeFileRequired = errors.New("action requires a compose file on disk")
	ErrOperationNotFound   = errors.New("operation not found")
	ErrDispatchFailed      = errors.New("executor dispatch failed")
)

// ProjectView resolves the unified project list for a user.
type ProjectView interface {
	UnifiedProjects(ctx context.Context, userID string) ([]models.Project, []models.Conflict, error)
}

// Journal persists operations.
type Journal interface {
	InsertOperation(ctx context.Context, op *models.Operation) error
	SetOperationStatus(ctx context.Context, id, status, errMsg string, exitCode *int) error
	GetOperation(ctx context.Context, id string) (*models.Operation, error)
	ListOperations(ctx context.Context, projectName string, limit, offset int) ([]models.Operation, error)
}

// Dispatcher forwards operations to the executor service.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dockhand.DispatchRequest) (*dockhand.DispatchResponse, error)
}

// Broadcaster pushes operation transitions to websocket clients.
type Broadcaster interface {
	OperationUpdate(op *models.Operation)
}

// Config carries the non-dependency knobs.
type Config struct {
	// CallbackBaseURL is this service's own externally reachable base
	// URL; dockhand posts status updates to it.
	CallbackBaseURL string
}

type Service struct {
	cfg        Config
	view       ProjectView
	journal    Journal
	dispatcher Dispatcher
	hub        Broadcaster
	validator  *validation.RequestValidator
	metrics    *monitoring.OperationMetrics
	logger     *logrus.Entry
}

// NewService wires the operation pipeline. Metrics and hub may be nil in
// tests.
func NewService(cfg Config, view ProjectView, journal Journal, dispatcher Dispatcher, hub Broadcaster, metrics *monitoring.OperationMetrics, logger *logrus.Entry) *Service {
	return &Service{
		cfg:        cfg,
		view:       view,
		journal:    journal,
		dispatcher: dispatcher,
		hub:        hub,
		validator:  validation.NewRequestValidator(),
		metrics:    metrics,
		logger:     logger,
	}
}

// Request validates, journals and dispatches one action against a project.
// The returned operation is already persisted; a non-nil error alongside it
// means the dispatch leg failed and the journal row records the failure.
func (s *Service) Request(ctx context.Context, userID, projectName string, req *models.OperationRequest) (*models.Operation, error) {
	if err := s.validator.ValidateOperationRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, err)
	}

	action, known := actions.Known(req.Action)
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	project, err := s.findProject(ctx, userID, projectName)
	if err != nil {
		return nil, err
	}

	if !project.Actions[action] {
		if actions.NeedsComposeFile(action) && !project.HasComposeFile {
			return nil, fmt.Errorf("%w: %q", ErrComposeFileRequired, action)
		}
		return nil, fmt.Errorf("%w: %q in state %q", ErrActionUnavailable, action, project.State)
	}

	op := &models.Operation{
		ID:              uuid.New().String(),
		ProjectName:     project.Name,
		Action:          action,
		Status:          models.OperationPending,
		ComposeFilePath: project.ComposeFilePath,
		Services:        req.Services,
		RequestedBy:     userID,
	}
	if err := s.journal.InsertOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("journaling operation: %w", err)
	}

	_, err = s.dispatcher.Dispatch(ctx, &dockhand.DispatchRequest{
		OperationID:     op.ID,
		ProjectName:     op.ProjectName,
		Action:          op.Action,
		ComposeFilePath: op.ComposeFilePath,
		Services:        op.Services,
		CallbackURL:     s.callbackURL(op.ID),
	})
	if err != nil {
		s.transition(ctx, op, models.OperationFailed, err.Error(), nil)
		return op, fmt.Errorf("%w: %s", ErrDispatchFailed, err)
	}

	s.transition(ctx, op, models.OperationDispatched, "", nil)
	s.logger.WithFields(logrus.Fields{
		"operation_id": op.ID,
		"project":      op.ProjectName,
		"action":       op.Action,
	}).Info("Operation dispatched")

	return op, nil
}

// HandleStatusUpdate applies an executor callback to the journal and
// republishes it.
func (s *Service) HandleStatusUpdate(ctx context.Context, operationID string, upd *models.OperationStatusUpdate) (*models.Operation, error) {
	if err := s.validator.ValidateStatusUpdate(upd); err != nil {
		return nil, err
	}

	err := s.journal.SetOperationStatus(ctx, operationID, upd.Status, upd.Error, upd.ExitCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recording status update: %w", err)
	}

	op, err := s.journal.GetOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("reloading operation: %w", err)
	}

	s.observe(op)
	if s.hub != nil {
		s.hub.OperationUpdate(op)
	}
	return op, nil
}

// Get returns one journaled operation.
func (s *Service) Get(ctx context.Context, operationID string) (*models.Operation, error) {
	op, err := s.journal.GetOperation(ctx, operationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOperationNotFound
	}
	return op, err
}

// List returns journaled operations, optionally filtered to one project.
func (s *Service) List(ctx context.Context, projectName string, limit, offset int) ([]models.Operation, error) {
	return s.journal.ListOperations(ctx, projectName, limit, offset)
}

func (s *Service) findProject(ctx context.Context, userID, projectName string) (*models.Project, error) {
	projects, _, err := s.view.UnifiedProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving project %q: %w", projectName, err)
	}
	for i := range projects {
		if strings.EqualFold(projects[i].Name, projectName) {
			return &projects[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, projectName)
}

// transition persists a status change and fans it out. Failures here are
// logged, not returned: the operation itself already exists.
func (s *Service) transition(ctx context.Context, op *models.Operation, status, errMsg string, exitCode *int) {
	if err := s.journal.SetOperationStatus(ctx, op.ID, status, errMsg, exitCode); err != nil {
		s.logger.WithError(err).WithField("operation_id", op.ID).Error("Failed to record operation transition")
	}
	op.Status = status
	op.Error = errMsg
	op.ExitCode = exitCode

	s.observe(op)
	if s.hub != nil {
		s.hub.OperationUpdate(op)
	}
}

func (s *Service) observe(op *models.Operation) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationsTotal.WithLabelValues(op.Action, op.Status).Inc()
	if op.Terminal() && op.FinishedAt != nil && !op.CreatedAt.IsZero() {
		s.metrics.OperationDuration.WithLabelValues(op.Action).Observe(op.FinishedAt.Sub(op.CreatedAt).Seconds())
	}
}

func (s *Service) callbackURL(operationID string) string {
	base := strings.TrimRight(s.cfg.CallbackBaseURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/internal/operations/%s/status", base, operationID)
}
