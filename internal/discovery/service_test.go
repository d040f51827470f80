package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"frameworks/api_compose/pkg/logging"
)

func newTestService(t *testing.T, root string, ttl time.Duration) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Scanner:  ScannerConfig{Root: root},
		CacheTTL: ttl,
	}, logging.WithComponent(logging.NewLogger(), "discovery"), nil)
	require.NoError(t, err)
	return svc
}

func TestServiceSnapshotPipeline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/docker-compose.yml", minimalCompose)
	writeFile(t, root, "db/compose.yaml", "services:\n  postgres:\n    image: postgres:16\n")
	writeFile(t, root, "dupe-a/docker-compose.yml", "name: shared\nservices:\n  a:\n    image: nginx\n")
	writeFile(t, root, "dupe-b/docker-compose.yml", "name: shared\nservices:\n  b:\n    image: nginx\n")

	svc := newTestService(t, root, time.Minute)

	snap, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.False(t, snap.Cached)
	require.Equal(t, svc.Root(), snap.Root)
	require.Len(t, snap.Files, 4)

	resolved := make([]string, 0, len(snap.Resolved))
	for _, f := range snap.Resolved {
		resolved = append(resolved, f.ProjectName)
	}
	require.ElementsMatch(t, []string{"web", "db"}, resolved)

	require.Len(t, snap.Conflicts, 1)
	require.Equal(t, "shared", snap.Conflicts[0].ProjectName)
}

func TestServiceSnapshotIsCached(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/docker-compose.yml", minimalCompose)

	svc := newTestService(t, root, time.Minute)

	first, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.False(t, first.Cached)

	// A file added after the scan stays invisible until the TTL passes.
	writeFile(t, root, "late/docker-compose.yml", minimalCompose)

	second, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Len(t, second.Files, 1)
}

func TestServiceBypassSeesNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/docker-compose.yml", minimalCompose)

	svc := newTestService(t, root, time.Minute)

	_, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)

	writeFile(t, root, "late/docker-compose.yml", minimalCompose)

	snap, err := svc.Snapshot(context.Background(), true)
	require.NoError(t, err)
	require.False(t, snap.Cached)
	require.Len(t, snap.Files, 2)

	// The bypass refreshed the cache for later callers.
	cached, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.True(t, cached.Cached)
	require.Len(t, cached.Files, 2)
}

func TestServiceInvalidateForcesRescan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/docker-compose.yml", minimalCompose)

	svc := newTestService(t, root, time.Minute)

	_, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)

	writeFile(t, root, "late/docker-compose.yml", minimalCompose)
	svc.Invalidate()

	snap, err := svc.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.False(t, snap.Cached)
	require.Len(t, snap.Files, 2)
}
