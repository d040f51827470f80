// Package docker reads project state from the Docker Engine API. It only
// ever lists and inspects; every mutating command goes through dockhand.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"

	"frameworks/api_compose/pkg/clients"
	"frameworks/api_compose/pkg/models"
	"frameworks/api_compose/pkg/monitoring"
)

// Compose labels the engine attaches to containers it did not start itself
// but that a compose deployment owns.
const (
	composeProjectLabel    = "com.docker.compose.project"
	composeServiceLabel    = "com.docker.compose.service"
	composeWorkingDirLabel = "com.docker.compose.project.working_dir"
)

// DefaultHost is used when DOCKER_HOST is unset.
const DefaultHost = "unix:///var/run/docker.sock"

// Config controls how the engine is reached.
type Config struct {
	// Host accepts the DOCKER_HOST forms: unix:///path, tcp://addr:port,
	// or a plain http(s) URL.
	Host    string
	Timeout time.Duration
}

// Client is a read-only Docker Engine API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry
	executor   failsafe.Executor[*http.Response]
	metrics    *monitoring.RuntimeMetrics
}

// NewClient creates an engine client for the configured host. Metrics may
// be nil in tests.
func NewClient(cfg Config, logger *logrus.Entry, metrics *monitoring.RuntimeMetrics) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	baseURL, transport, err := engineTransport(cfg.Host)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger:   logger,
		executor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		metrics:  metrics,
	}, nil
}

// engineTransport resolves a DOCKER_HOST value into a base URL and the
// transport that reaches it. Unix sockets get a dedicated dialer and a
// placeholder host in the URL.
func engineTransport(host string) (string, *http.Transport, error) {
	switch {
	case strings.HasPrefix(host, "unix://"):
		socketPath := strings.TrimPrefix(host, "unix://")
		if socketPath == "" {
			return "", nil, fmt.Errorf("docker host %q has no socket path", host)
		}
		transport := clients.DefaultTransport()
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		return "http://docker", transport, nil
	case strings.HasPrefix(host, "tcp://"):
		return "http://" + strings.TrimPrefix(host, "tcp://"), clients.DefaultTransport(), nil
	case strings.HasPrefix(host, "http://"), strings.HasPrefix(host, "https://"):
		return strings.TrimRight(host, "/"), clients.DefaultTransport(), nil
	default:
		return "", nil, fmt.Errorf("unsupported docker host %q", host)
	}
}

// containerSummary mirrors the fields of GET /containers/json we consume.
type containerSummary struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Labels map[string]string `json:"Labels"`
	Ports  []containerPort   `json:"Ports"`
}

type containerPort struct {
	IP          string `json:"IP"`
	PrivatePort int    `json:"PrivatePort"`
	PublicPort  int    `json:"PublicPort"`
	Type        string `json:"Type"`
}

// Ping verifies the engine is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/_ping")
	if err != nil {
		return fmt.Errorf("pinging docker engine: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docker engine ping returned status %d", resp.StatusCode)
	}
	return nil
}

// ListProjects returns every compose project the engine knows about,
// including stopped ones, grouped from container labels.
func (c *Client) ListProjects(ctx context.Context) ([]models.RuntimeProject, error) {
	containers, err := c.listContainers(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]models.ServiceStatus)
	workingDirs := make(map[string]string)
	for _, ctr := range containers {
		project := ctr.Labels[composeProjectLabel]
		if project == "" {
			continue
		}
		grouped[project] = append(grouped[project], serviceStatus(ctr))
		if dir := ctr.Labels[composeWorkingDirLabel]; dir != "" && workingDirs[project] == "" {
			workingDirs[project] = dir
		}
	}

	projects := make([]models.RuntimeProject, 0, len(grouped))
	for name, services := range grouped {
		sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
		projects = append(projects, models.RuntimeProject{
			Name:     name,
			Path:     workingDirs[name],
			State:    deriveState(services),
			Services: services,
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	c.logger.WithFields(logrus.Fields{
		"containers": len(containers),
		"projects":   len(projects),
	}).Debug("Listed compose projects from docker engine")

	return projects, nil
}

func (c *Client) listContainers(ctx context.Context) ([]containerSummary, error) {
	resp, err := c.get(ctx, "/containers/json?all=1")
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("docker engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var containers []containerSummary
	if err := json.NewDecoder(resp.Body).Decode(&containers); err != nil {
		return nil, fmt.Errorf("decoding container list: %w", err)
	}
	return containers, nil
}

// get issues a retried GET against the engine. Requests are rebuilt per
// attempt so retries never reuse a consumed body.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	endpoint := strings.SplitN(strings.TrimPrefix(path, "/"), "?", 2)[0]
	start := time.Now()

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		return c.httpClient.Do(req)
	})

	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
		c.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func serviceStatus(ctr containerSummary) models.ServiceStatus {
	name := ctr.Labels[composeServiceLabel]
	if name == "" && len(ctr.Names) > 0 {
		name = strings.TrimPrefix(ctr.Names[0], "/")
	}

	ports := make([]string, 0, len(ctr.Ports))
	for _, p := range ctr.Ports {
		ports = append(ports, formatPort(p))
	}
	sort.Strings(ports)

	return models.ServiceStatus{
		Name:        name,
		State:       strings.ToLower(ctr.State),
		ContainerID: shortID(ctr.ID),
		Image:       ctr.Image,
		Status:      ctr.Status,
		Ports:       ports,
		Health:      healthFromStatus(ctr.Status),
	}
}

// deriveState folds container states into one project state: every
// container running means running, every container paused means paused,
// nothing running or paused means stopped, anything else is degraded.
func deriveState(services []models.ServiceStatus) string {
	if len(services) == 0 {
		return models.StateNotStarted
	}

	running, paused := 0, 0
	for _, s := range services {
		switch s.State {
		case "running":
			running++
		case "paused":
			paused++
		}
	}

	switch {
	case running == len(services):
		return models.StateRunning
	case paused == len(services):
		return models.StatePaused
	case running == 0 && paused == 0:
		return models.StateStopped
	default:
		return models.StateDegraded
	}
}

// healthFromStatus extracts the healthcheck verdict the engine embeds in
// the human status line, e.g. "Up 2 hours (healthy)".
func healthFromStatus(status string) string {
	switch {
	case strings.Contains(status, "(healthy)"):
		return "healthy"
	case strings.Contains(status, "(unhealthy)"):
		return "unhealthy"
	case strings.Contains(status, "health: starting"):
		return "starting"
	default:
		return ""
	}
}

func formatPort(p containerPort) string {
	if p.PublicPort == 0 {
		return fmt.Sprintf("%d/%s", p.PrivatePort, p.Type)
	}
	ip := p.IP
	if ip == "" {
		ip = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d->%d/%s", ip, p.PublicPort, p.PrivatePort, p.Type)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
