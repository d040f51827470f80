package models

import "time"

// Normalized project states. Anything a runtime reports is folded into one
// of these before action gating happens.
const (
	StateRunning    = "running"
	StateStopped    = "stopped"
	StatePaused     = "paused"
	StateDegraded   = "degraded"
	StateNotStarted = "not-started"
)

// NormalizeState folds unknown or empty runtime states into the canonical
// set. An empty state means the project has never been created.
func NormalizeState(state string) string {
	switch state {
	case StateRunning, StateStopped, StatePaused, StateDegraded:
		return state
	default:
		return StateNotStarted
	}
}

// ComposeFile is a project definition discovered on disk, already parsed.
type ComposeFile struct {
	// Path is the absolute path of the file inside the scan root.
	Path string `json:"path"`
	// Directory is the directory containing the file.
	Directory string `json:"directory"`
	// ProjectName is the resolved project name (explicit name field or
	// derived from the file location).
	ProjectName string `json:"project_name"`
	// Services lists service names in declaration order.
	Services []string `json:"services"`
	// Disabled marks files excluded from matching via the
	// x-stevedore-disabled extension field.
	Disabled bool      `json:"disabled"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Conflict describes multiple active compose files claiming the same
// project name. None of the conflicting files are matched until resolved.
type Conflict struct {
	ProjectName string   `json:"project_name"`
	Paths       []string `json:"paths"`
	Message     string   `json:"message"`
	Resolution  []string `json:"resolution"`
}

// ServiceStatus is the runtime status of one service within a project.
type ServiceStatus struct {
	Name        string   `json:"name"`
	State       string   `json:"state"`
	ContainerID string   `json:"container_id,omitempty"`
	Image       string   `json:"image,omitempty"`
	Status      string   `json:"status,omitempty"`
	Ports       []string `json:"ports,omitempty"`
	Health      string   `json:"health,omitempty"`
}

// RuntimeProject is a project as reported by the container runtime.
type RuntimeProject struct {
	Name string `json:"name"`
	// Path is the compose working directory recorded on the containers,
	// when the engine still has it.
	Path     string          `json:"path,omitempty"`
	State    string          `json:"state"`
	Services []ServiceStatus `json:"services"`
}

// Project is the unified view the API serves: runtime status joined with
// the discovered definition file, plus per-action availability.
type Project struct {
	Name string `json:"name"`
	// State is the normalized project state.
	State    string          `json:"state"`
	Services []ServiceStatus `json:"services"`

	HasComposeFile  bool   `json:"has_compose_file"`
	ComposeFilePath string `json:"compose_file_path,omitempty"`

	// Actions maps every known action to whether it is currently
	// available for this project.
	Actions map[string]bool `json:"actions"`

	// Warnings carry non-fatal oddities: a disabled file shadowing a
	// running project, a running project with no definition on disk.
	Warnings []string `json:"warnings,omitempty"`
}

// DiscoverySnapshot is the result of one scan of the compose root.
type DiscoverySnapshot struct {
	Root string `json:"root"`
	// Files holds every parseable compose file found, disabled ones
	// included.
	Files []ComposeFile `json:"files"`
	// Resolved holds one active file per project name after conflict
	// resolution. Matching runs against this list only.
	Resolved  []ComposeFile `json:"resolved"`
	Conflicts []Conflict    `json:"conflicts"`
	ScannedAt time.Time     `json:"scanned_at"`
	// Cached is true when the snapshot was served from the discovery
	// cache rather than a fresh scan.
	Cached bool `json:"cached"`
}
