// Package handlers is the gin surface of stevedore: unified project
// listing, raw compose file access, discovery control and operation
// dispatch.
package handlers

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"frameworks/api_compose/internal/discovery"
	"frameworks/api_compose/internal/events"
	"frameworks/api_compose/pkg/ctxkeys"
	"frameworks/api_compose/pkg/logging"
	"frameworks/api_compose/pkg/middleware"
	"frameworks/api_compose/pkg/models"
)

// ProjectView resolves the unified project list for a user.
type ProjectView interface {
	UnifiedProjects(ctx context.Context, userID string) ([]models.Project, []models.Conflict, error)
}

// DiscoveryService is the discovery pipeline surface the API needs.
type DiscoveryService interface {
	Snapshot(ctx context.Context, bypass bool) (*models.DiscoverySnapshot, error)
	Invalidate()
	Root() string
}

// OperationService dispatches and reads back journaled operations.
type OperationService interface {
	Request(ctx context.Context, userID, projectName string, req *models.OperationRequest) (*models.Operation, error)
	HandleStatusUpdate(ctx context.Context, operationID string, upd *models.OperationStatusUpdate) (*models.Operation, error)
	Get(ctx context.Context, operationID string) (*models.Operation, error)
	List(ctx context.Context, projectName string, limit, offset int) ([]models.Operation, error)
}

type Handlers struct {
	view      ProjectView
	discovery DiscoveryService
	ops       OperationService
	hub       *events.Hub
	paths     *discovery.PathValidator
	logger    logging.Logger
}

func NewHandlers(view ProjectView, disc DiscoveryService, ops OperationService, hub *events.Hub, paths *discovery.PathValidator, logger logging.Logger) *Handlers {
	return &Handlers{
		view:      view,
		discovery: disc,
		ops:       ops,
		hub:       hub,
		paths:     paths,
		logger:    logger,
	}
}

// requestUserID returns the identity the project view should be filtered
// by. Service-token callers see everything.
func requestUserID(c *gin.Context) string {
	if c.GetString(string(ctxkeys.KeyAuthType)) == "service" {
		return ""
	}
	return c.GetString(string(ctxkeys.KeyUserID))
}

// ListProjects returns the unified project view with conflicts alongside.
func (h *Handlers) ListProjects(c *gin.Context) {
	projects, conflicts, err := h.view.UnifiedProjects(c.Request.Context(), requestUserID(c))
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to build unified project view")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to list projects"})
		return
	}

	c.JSON(http.StatusOK, middleware.H{
		"projects":  projects,
		"conflicts": conflicts,
	})
}

// GetProject returns one unified project by name.
func (h *Handlers) GetProject(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

// GetComposeFile streams the raw definition file of a project. The path
// comes from the snapshot, never from the caller, and is still validated
// against the scan root before the read.
func (h *Handlers) GetComposeFile(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !project.HasComposeFile || project.ComposeFilePath == "" {
		c.JSON(http.StatusNotFound, middleware.H{"error": "Project has no compose file"})
		return
	}
	if !h.paths.IsValid(project.ComposeFilePath) {
		middleware.GetContextLogger(c, h.logger).WithField("path", project.ComposeFilePath).
			Warn("Compose file path escaped the scan root")
		c.JSON(http.StatusNotFound, middleware.H{"error": "Project has no compose file"})
		return
	}

	content, err := os.ReadFile(project.ComposeFilePath)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to read compose file")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to read compose file"})
		return
	}

	c.Header("X-Compose-File-Path", project.ComposeFilePath)
	c.Data(http.StatusOK, "application/yaml", content)
}

// ListConflicts returns the unresolved project name conflicts.
func (h *Handlers) ListConflicts(c *gin.Context) {
	snap, err := h.discovery.Snapshot(c.Request.Context(), false)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to load discovery snapshot")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to load conflicts"})
		return
	}
	c.JSON(http.StatusOK, middleware.H{"conflicts": snap.Conflicts})
}

// ListComposeFiles returns every discovered file, disabled ones included.
func (h *Handlers) ListComposeFiles(c *gin.Context) {
	snap, err := h.discovery.Snapshot(c.Request.Context(), false)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to load discovery snapshot")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to list compose files"})
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// Rescan forces a fresh scan, refreshing the cache for everyone.
func (h *Handlers) Rescan(c *gin.Context) {
	snap, err := h.discovery.Snapshot(c.Request.Context(), true)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Rescan failed")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Rescan failed"})
		return
	}

	if h.hub != nil {
		h.hub.DiscoveryRefreshed(snap)
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// InvalidateCache drops the cached snapshot without scanning.
func (h *Handlers) InvalidateCache(c *gin.Context) {
	h.discovery.Invalidate()
	c.JSON(http.StatusOK, middleware.H{"status": "invalidated"})
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

func (h *Handlers) findProject(c *gin.Context) (*models.Project, bool) {
	name := c.Param("name")
	projects, _, err := h.view.UnifiedProjects(c.Request.Context(), requestUserID(c))
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to build unified project view")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to resolve project"})
		return nil, false
	}

	for i := range projects {
		if strings.EqualFold(projects[i].Name, name) {
			return &projects[i], true
		}
	}

	c.JSON(http.StatusNotFound, middleware.H{"error": "Project not found"})
	return nil, false
}

func snapshotResponse(snap *models.DiscoverySnapshot) middleware.H {
	return middleware.H{
		"root":       snap.Root,
		"files":      snap.Files,
		"resolved":   snap.Resolved,
		"conflicts":  snap.Conflicts,
		"scanned_at": snap.ScannedAt,
		"cached":     snap.Cached,
	}
}
