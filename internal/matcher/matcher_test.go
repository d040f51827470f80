package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"frameworks/api_compose/pkg/logging"
	"frameworks/api_compose/pkg/models"
)

type fakeProvider struct {
	projects []models.RuntimeProject
	err      error
}

func (f *fakeProvider) ProjectsForUser(ctx context.Context, userID string) ([]models.RuntimeProject, error) {
	return f.projects, f.err
}

type fakeDiscovery struct {
	snap *models.DiscoverySnapshot
	err  error
}

func (f *fakeDiscovery) Snapshot(ctx context.Context, bypass bool) (*models.DiscoverySnapshot, error) {
	return f.snap, f.err
}

func newTestMatcher(provider *fakeProvider, disc *fakeDiscovery) *Matcher {
	return New(provider, disc, logging.WithComponent(logging.NewLogger(), "matcher"))
}

func find(t *testing.T, projects []models.Project, name string) models.Project {
	t.Helper()
	for _, p := range projects {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("project %q not in result", name)
	return models.Project{}
}

func TestUnifiedProjectsJoinsLiveAndFiles(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "shop", State: models.StateRunning, Services: []models.ServiceStatus{
			{Name: "web", State: "running", ContainerID: "abc123def456"},
		}},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Resolved: []models.ComposeFile{
			{Path: "/srv/shop/docker-compose.yml", ProjectName: "shop", Services: []string{"web", "db"}},
		},
		Files: []models.ComposeFile{
			{Path: "/srv/shop/docker-compose.yml", ProjectName: "shop", Services: []string{"web", "db"}},
		},
	}}

	projects, conflicts, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Len(t, projects, 1)

	shop := projects[0]
	require.True(t, shop.HasComposeFile)
	require.Equal(t, "/srv/shop/docker-compose.yml", shop.ComposeFilePath)
	require.Equal(t, models.StateRunning, shop.State)
	// Live containers win over declared services.
	require.Len(t, shop.Services, 1)
	require.Equal(t, "abc123def456", shop.Services[0].ContainerID)
	require.Empty(t, shop.Warnings)
	require.True(t, shop.Actions["stop"])
	require.False(t, shop.Actions["start"])
}

func TestUnifiedProjectsJoinIsCaseInsensitive(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "MyApp", State: models.StateRunning, Services: []models.ServiceStatus{{Name: "app", State: "running"}}},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Resolved: []models.ComposeFile{
			{Path: "/srv/myapp/docker-compose.yml", ProjectName: "myapp", Services: []string{"app"}},
		},
	}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.True(t, projects[0].HasComposeFile)
	// No duplicate synthesized entry for the same file.
	require.Equal(t, "MyApp", projects[0].Name)
}

func TestUnifiedProjectsFileServicesFallback(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "shop", State: models.StateStopped},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Resolved: []models.ComposeFile{
			{Path: "/srv/shop/docker-compose.yml", ProjectName: "shop", Services: []string{"web", "db"}},
		},
	}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)

	shop := find(t, projects, "shop")
	require.Len(t, shop.Services, 2)
	require.Equal(t, "web", shop.Services[0].Name)
	require.Equal(t, "db", shop.Services[1].Name)
}

func TestUnifiedProjectsWarnsWhenNoFile(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "orphan", State: models.StateRunning, Services: []models.ServiceStatus{{Name: "app", State: "running"}}},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)

	orphan := find(t, projects, "orphan")
	require.False(t, orphan.HasComposeFile)
	require.Contains(t, orphan.Warnings, "No definition file found for this project")
	// Container actions survive a missing file, file-bound ones do not.
	require.True(t, orphan.Actions["stop"])
	require.True(t, orphan.Actions["logs"])
	require.False(t, orphan.Actions["up"])
	require.False(t, orphan.Actions["build"])
}

func TestUnifiedProjectsWarnsWhenFileDisabled(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "shop", State: models.StateRunning, Services: []models.ServiceStatus{{Name: "web", State: "running"}}},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Files: []models.ComposeFile{
			{Path: "/srv/shop/docker-compose.yml", ProjectName: "shop", Disabled: true},
		},
	}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)

	shop := find(t, projects, "shop")
	require.True(t, shop.HasComposeFile)
	require.Len(t, shop.Warnings, 1)
	require.Contains(t, shop.Warnings[0], "x-stevedore-disabled")
}

func TestUnifiedProjectsSynthesizesNotStarted(t *testing.T) {
	provider := &fakeProvider{}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Resolved: []models.ComposeFile{
			{Path: "/srv/idle/docker-compose.yml", ProjectName: "idle", Services: []string{"worker"}},
		},
	}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 1)

	idle := projects[0]
	require.Equal(t, models.StateNotStarted, idle.State)
	require.True(t, idle.HasComposeFile)
	require.Len(t, idle.Services, 1)
	require.Equal(t, "worker", idle.Services[0].Name)
	require.True(t, idle.Actions["up"])
	require.True(t, idle.Actions["create"])
	require.False(t, idle.Actions["logs"])
	require.False(t, idle.Actions["down"])
}

func TestUnifiedProjectsEveryEntryHasFullActionSet(t *testing.T) {
	provider := &fakeProvider{projects: []models.RuntimeProject{
		{Name: "live", State: models.StateRunning, Services: []models.ServiceStatus{{Name: "a", State: "running"}}},
	}}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Resolved: []models.ComposeFile{
			{Path: "/srv/idle/docker-compose.yml", ProjectName: "idle", Services: []string{"b"}},
		},
	}}

	projects, _, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	for _, p := range projects {
		require.Len(t, p.Actions, 17, "project %q", p.Name)
	}
}

func TestUnifiedProjectsPassesConflictsThrough(t *testing.T) {
	provider := &fakeProvider{}
	disc := &fakeDiscovery{snap: &models.DiscoverySnapshot{
		Conflicts: []models.Conflict{
			{ProjectName: "dupe", Paths: []string{"/a/docker-compose.yml", "/b/docker-compose.yml"}},
		},
	}}

	_, conflicts, err := newTestMatcher(provider, disc).UnifiedProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "dupe", conflicts[0].ProjectName)
}

func TestUnifiedProjectsPropagatesFailures(t *testing.T) {
	providerErr := errors.New("runtime down")
	_, _, err := newTestMatcher(
		&fakeProvider{err: providerErr},
		&fakeDiscovery{snap: &models.DiscoverySnapshot{}},
	).UnifiedProjects(context.Background(), "u1")
	require.ErrorIs(t, err, providerErr)

	scanErr := errors.New("root gone")
	_, _, err = newTestMatcher(
		&fakeProvider{},
		&fakeDiscovery{err: scanErr},
	).UnifiedProjects(context.Background(), "u1")
	require.ErrorIs(t, err, scanErr)
}
