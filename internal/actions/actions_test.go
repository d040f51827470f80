package actions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeCoversEveryAction(t *testing.T) {
	got := Compute(true, "running")
	require.Len(t, got, 17)
	for _, name := range Names() {
		_, present := got[name]
		require.True(t, present, "missing action %q", name)
	}
}

func TestComputeRunningWithFile(t *testing.T) {
	got := Compute(true, "running")

	for action, want := range map[string]bool{
		"up": true, "build": true, "pull": true, "push": true, "config": true,
		"create":  false,
		"start":   false,
		"stop":    true,
		"pause":   true,
		"unpause": false,
		"restart": true,
		"rm":      false,
		"ps":      true, "logs": true, "top": true, "down": true, "kill": true,
	} {
		require.Equal(t, want, got[action], "action %q", action)
	}
}

func TestComputeRunningWithoutFile(t *testing.T) {
	got := Compute(false, "running")

	// File-bound actions all drop out, container actions survive.
	for _, action := range []string{"up", "build", "pull", "push", "config", "create"} {
		require.False(t, got[action], "action %q", action)
	}
	for _, action := range []string{"stop", "restart", "pause", "logs", "ps", "down", "kill", "top"} {
		require.True(t, got[action], "action %q", action)
	}
}

func TestComputeNotStarted(t *testing.T) {
	got := Compute(true, "not-started")

	require.True(t, got["up"])
	require.True(t, got["create"])
	require.True(t, got["build"])

	// Nothing container-bound is available before the first create.
	for _, action := range []string{"start", "stop", "restart", "pause", "unpause", "ps", "logs", "top", "down", "rm", "kill"} {
		require.False(t, got[action], "action %q", action)
	}
}

func TestComputeStatesByAction(t *testing.T) {
	tests := []struct {
		state  string
		action string
		want   bool
	}{
		{"stopped", "start", true},
		{"stopped", "rm", true},
		{"stopped", "restart", true},
		{"stopped", "stop", false},
		{"stopped", "unpause", false},

		{"paused", "unpause", true},
		{"paused", "restart", true},
		{"paused", "pause", false},
		{"paused", "stop", false},
		{"paused", "start", false},

		// Degraded projects gate exactly like running ones.
		{"degraded", "stop", true},
		{"degraded", "pause", true},
		{"degraded", "restart", true},
		{"degraded", "logs", true},
		{"degraded", "start", false},
	}

	for _, tt := range tests {
		got := Compute(true, tt.state)
		require.Equal(t, tt.want, got[tt.action], "state %q action %q", tt.state, tt.action)
	}
}

func TestComputeUnknownStateMeansNotStarted(t *testing.T) {
	for _, state := range []string{"", "   ", "restarting", "EXITED(3)", "weird"} {
		got := Compute(true, state)
		require.True(t, got["up"], "state %q", state)
		require.False(t, got["stop"], "state %q", state)
		require.False(t, got["logs"], "state %q", state)
	}
}

func TestComputeFoldsStateCase(t *testing.T) {
	got := Compute(true, "  RUNNING  ")
	require.True(t, got["stop"])
	require.False(t, got["start"])
}

func TestKnownIsCaseInsensitive(t *testing.T) {
	for _, command := range []string{"up", "UP", " Stop ", "ReStArT", "kill"} {
		_, ok := Known(command)
		require.True(t, ok, "command %q", command)
	}

	for _, command := range []string{"", "destroy", "exec", "scale"} {
		_, ok := Known(command)
		require.False(t, ok, "command %q", command)
	}

	name, _ := Known(" DOWN ")
	require.Equal(t, "down", name)
}

func TestAllowedRejectsUnknownCommands(t *testing.T) {
	require.False(t, Allowed("teleport", true, "running"))
	require.True(t, Allowed("STOP", false, "running"))
	require.False(t, Allowed("up", false, "running"))
}

func TestCommandVocabularies(t *testing.T) {
	require.ElementsMatch(t, []string{
		"up", "create", "run", "build", "pull", "push", "config", "convert",
	}, RequiresComposeFile)

	require.ElementsMatch(t, []string{
		"start", "stop", "restart", "pause", "unpause",
		"ps", "logs", "top", "down", "rm", "kill",
	}, WorksWithoutComposeFile)
}

func TestVocabularyMembershipFoldsCase(t *testing.T) {
	require.True(t, NeedsComposeFile("Up"))
	require.True(t, NeedsComposeFile("CONVERT"))
	require.False(t, NeedsComposeFile("logs"))

	require.True(t, ContainerOnly("KILL"))
	require.True(t, ContainerOnly(" rm "))
	require.False(t, ContainerOnly("build"))
}
