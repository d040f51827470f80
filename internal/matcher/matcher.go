// Package matcher builds the unified project view: live runtime state
// joined with discovered definition files, plus per-action availability.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"frameworks/api_compose/internal/actions"
	"frameworks/api_compose/internal/discovery"
	"frameworks/api_compose/pkg/models"
)

// Provider yields the runtime projects visible to a user.
type Provider interface {
	ProjectsForUser(ctx context.Context, userID string) ([]models.RuntimeProject, error)
}

// Discovery yields the current definition file snapshot.
type Discovery interface {
	Snapshot(ctx context.Context, bypass bool) (*models.DiscoverySnapshot, error)
}

type Matcher struct {
	provider  Provider
	discovery Discovery
	logger    *logrus.Entry
}

func New(provider Provider, disc Discovery, logger *logrus.Entry) *Matcher {
	return &Matcher{provider: provider, discovery: disc, logger: logger}
}

// UnifiedProjects merges live projects and discovered files for one user.
// Either source failing fails the whole call; there is no partial view.
// Conflicts ride along as data so callers can surface them.
func (m *Matcher) UnifiedProjects(ctx context.Context, userID string) ([]models.Project, []models.Conflict, error) {
	var (
		live []models.RuntimeProject
		snap *models.DiscoverySnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		projects, err := m.provider.ProjectsForUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetching live projects: %w", err)
		}
		live = projects
		return nil
	})
	g.Go(func() error {
		s, err := m.discovery.Snapshot(gctx, false)
		if err != nil {
			return fmt.Errorf("fetching discovered files: %w", err)
		}
		snap = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	active, disabled := indexFiles(snap)

	projects := make([]models.Project, 0, len(live)+len(snap.Resolved))
	matched := make(map[string]bool, len(live))

	for _, rp := range live {
		key := strings.ToLower(rp.Name)
		entry := models.Project{
			Name:     rp.Name,
			State:    models.NormalizeState(rp.State),
			Services: rp.Services,
		}

		if file, ok := active[key]; ok {
			matched[key] = true
			entry.HasComposeFile = true
			entry.ComposeFilePath = file.Path
			if len(entry.Services) == 0 {
				entry.Services = placeholderServices(file.Services, entry.State)
			}
		} else if file, ok := disabled[key]; ok {
			// The only definition on disk is switched off. Still link it
			// so the operator sees why the project looks undefined.
			entry.HasComposeFile = true
			entry.ComposeFilePath = file.Path
			if len(entry.Services) == 0 {
				entry.Services = placeholderServices(file.Services, entry.State)
			}
			entry.Warnings = append(entry.Warnings,
				fmt.Sprintf("Definition file %s is disabled via %s", file.Path, discovery.DisableFlag))
		} else {
			entry.Warnings = append(entry.Warnings, "No definition file found for this project")
		}

		entry.Actions = actions.Compute(entry.HasComposeFile, entry.State)
		projects = append(projects, entry)
	}

	// Files nothing is running for become not-started entries.
	for _, file := range snap.Resolved {
		if matched[strings.ToLower(file.ProjectName)] {
			continue
		}
		entry := models.Project{
			Name:            file.ProjectName,
			State:           models.StateNotStarted,
			Services:        placeholderServices(file.Services, models.StateNotStarted),
			HasComposeFile:  true,
			ComposeFilePath: file.Path,
		}
		entry.Actions = actions.Compute(true, entry.State)
		projects = append(projects, entry)
	}

	m.logger.WithFields(logrus.Fields{
		"live":      len(live),
		"files":     len(snap.Resolved),
		"unified":   len(projects),
		"conflicts": len(snap.Conflicts),
	}).Debug("Built unified project view")

	return projects, snap.Conflicts, nil
}

// indexFiles keys resolved files case-insensitively, plus a fallback index
// of disabled files for names that resolved to nothing. Disabled members
// of conflicted groups stay out of the fallback so a conflict is never
// misreported as a disabled project.
func indexFiles(snap *models.DiscoverySnapshot) (active, disabled map[string]models.ComposeFile) {
	active = make(map[string]models.ComposeFile, len(snap.Resolved))
	for _, f := range snap.Resolved {
		key := strings.ToLower(f.ProjectName)
		if _, exists := active[key]; !exists {
			active[key] = f
		}
	}

	conflicted := make(map[string]bool, len(snap.Conflicts))
	for _, c := range snap.Conflicts {
		conflicted[c.ProjectName] = true
	}

	disabled = make(map[string]models.ComposeFile)
	for _, f := range snap.Files {
		if !f.Disabled || conflicted[f.ProjectName] {
			continue
		}
		key := strings.ToLower(f.ProjectName)
		if _, exists := active[key]; exists {
			continue
		}
		if _, exists := disabled[key]; !exists {
			disabled[key] = f
		}
	}
	return active, disabled
}

// placeholderServices turns declared service names into status entries for
// projects with no containers to report.
func placeholderServices(names []string, state string) []models.ServiceStatus {
	services := make([]models.ServiceStatus, 0, len(names))
	for _, name := range names {
		services = append(services, models.ServiceStatus{Name: name, State: state})
	}
	return services
}
