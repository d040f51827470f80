// Package runtime exposes container runtime state filtered down to what a
// given user is allowed to see.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"frameworks/api_compose/pkg/models"
)

// WildcardGrant gives a user every project.
const WildcardGrant = "*"

// Engine lists compose projects from the container runtime.
type Engine interface {
	ListProjects(ctx context.Context) ([]models.RuntimeProject, error)
}

// GrantSource returns the project names a user has been granted.
type GrantSource interface {
	GrantsForUser(ctx context.Context, userID string) ([]string, error)
}

// Provider joins engine state with per-user grants. Grant management
// itself lives elsewhere; this only reads.
type Provider struct {
	engine Engine
	grants GrantSource
	logger *logrus.Entry
}

func NewProvider(engine Engine, grants GrantSource, logger *logrus.Entry) *Provider {
	return &Provider{engine: engine, grants: grants, logger: logger}
}

// ProjectsForUser returns the runtime projects the user may see. An empty
// userID is the internal caller path and skips grant filtering entirely.
func (p *Provider) ProjectsForUser(ctx context.Context, userID string) ([]models.RuntimeProject, error) {
	if userID == "" {
		return p.engine.ListProjects(ctx)
	}

	granted, err := p.grants.GrantsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading grants for user %s: %w", userID, err)
	}
	if len(granted) == 0 {
		return nil, nil
	}

	projects, err := p.engine.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range granted {
		if g == WildcardGrant {
			return projects, nil
		}
	}

	visible := projects[:0]
	for _, project := range projects {
		if grantedProject(granted, project.Name) {
			visible = append(visible, project)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"granted": len(granted),
		"visible": len(visible),
	}).Debug("Filtered runtime projects by grants")

	return visible, nil
}

// grantedProject matches grants case-insensitively so a grant typed as
// "MyApp" still covers the project compose named "myapp".
func grantedProject(granted []string, name string) bool {
	for _, g := range granted {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}
