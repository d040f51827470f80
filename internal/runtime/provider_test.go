package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"frameworks/api_compose/pkg/logging"
	"frameworks/api_compose/pkg/models"
)

type fakeEngine struct {
	projects []models.RuntimeProject
	err      error
	calls    int
}

func (f *fakeEngine) ListProjects(ctx context.Context) ([]models.RuntimeProject, error) {
	f.calls++
	return f.projects, f.err
}

type fakeGrants struct {
	grants map[string][]string
	err    error
	calls  int
}

func (f *fakeGrants) GrantsForUser(ctx context.Context, userID string) ([]string, error) {
	f.calls++
	return f.grants[userID], f.err
}

func testProjects() []models.RuntimeProject {
	return []models.RuntimeProject{
		{Name: "blog", State: models.StateRunning},
		{Name: "MyShop", State: models.StateStopped},
		{Name: "metrics", State: models.StateRunning},
	}
}

func newTestProvider(engine *fakeEngine, grants *fakeGrants) *Provider {
	return NewProvider(engine, grants, logging.WithComponent(logging.NewLogger(), "runtime"))
}

func TestProjectsForUserWildcard(t *testing.T) {
	engine := &fakeEngine{projects: testProjects()}
	grants := &fakeGrants{grants: map[string][]string{"u1": {"*"}}}

	got, err := newTestProvider(engine, grants).ProjectsForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestProjectsForUserFiltersByGrant(t *testing.T) {
	engine := &fakeEngine{projects: testProjects()}
	grants := &fakeGrants{grants: map[string][]string{"u1": {"blog", "myshop"}}}

	got, err := newTestProvider(engine, grants).ProjectsForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "blog", got[0].Name)
	// Grant case does not have to match the compose project name case.
	require.Equal(t, "MyShop", got[1].Name)
}

func TestProjectsForUserNoGrantsSkipsEngine(t *testing.T) {
	engine := &fakeEngine{projects: testProjects()}
	grants := &fakeGrants{grants: map[string][]string{}}

	got, err := newTestProvider(engine, grants).ProjectsForUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 0, engine.calls)
}

func TestProjectsForUserInternalCallerUnfiltered(t *testing.T) {
	engine := &fakeEngine{projects: testProjects()}
	grants := &fakeGrants{grants: map[string][]string{}}

	got, err := newTestProvider(engine, grants).ProjectsForUser(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 0, grants.calls)
}

func TestProjectsForUserErrors(t *testing.T) {
	grantErr := errors.New("db down")
	provider := newTestProvider(&fakeEngine{}, &fakeGrants{err: grantErr})
	_, err := provider.ProjectsForUser(context.Background(), "u1")
	require.ErrorIs(t, err, grantErr)

	engineErr := errors.New("engine unreachable")
	provider = newTestProvider(
		&fakeEngine{err: engineErr},
		&fakeGrants{grants: map[string][]string{"u1": {"*"}}},
	)
	_, err = provider.ProjectsForUser(context.Background(), "u1")
	require.ErrorIs(t, err, engineErr)
}
