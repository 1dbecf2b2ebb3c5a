// Package workspace implements the workspace store: the in-memory,
// JSON-persisted registry of host and container execution environments.
package workspace

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the execution environment flavor of a workspace.
type Kind string

const (
	KindHost      Kind = "host"
	KindContainer Kind = "container"
)

// Status is the lifecycle state of a workspace's backing filesystem.
type Status string

const (
	StatusPending  Status = "pending"
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// TailscaleMode selects how a container workspace joins a tailnet.
type TailscaleMode string

const (
	TailscaleExitNode   TailscaleMode = "exit_node"
	TailscaleTailnetOnly TailscaleMode = "tailnet_only"
)

// DefaultWorkspaceID is the all-zero UUID identifying the canonical default
// host workspace. It always exists and cannot be deleted.
var DefaultWorkspaceID = uuid.Nil

// Workspace is an execution environment: a filesystem root, its env vars,
// and the library entities it is permitted to use.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Env      map[string]string `json:"env,omitempty"`
	Skills   []string          `json:"skills,omitempty"`
	Tools    []string          `json:"tools,omitempty"`
	Plugins  []string          `json:"plugins,omitempty"`
	MCPNames []string          `json:"mcp_names,omitempty"`

	Distro            string         `json:"distro,omitempty"`
	Template          string         `json:"template,omitempty"`
	InitFragments     []string       `json:"init_fragments,omitempty"`
	InitScript        string         `json:"init_script,omitempty"`
	SharedNetwork     bool           `json:"shared_network,omitempty"`
	TailscaleMode     TailscaleMode  `json:"tailscale_mode,omitempty"`
	ConfigProfile     string         `json:"config_profile,omitempty"`
	ContainerFallback bool           `json:"container_fallback,omitempty"`
}

// IsDefault reports whether w is the canonical default host workspace.
func (w *Workspace) IsDefault() bool {
	return w.ID == DefaultWorkspaceID
}

// NewDefaultWorkspace builds the canonical default host workspace rooted at
// workingDir. It always permits every library skill (empty Skills list is
// the sentinel for "all").
func NewDefaultWorkspace(workingDir string) *Workspace {
	return &Workspace{
		ID:        DefaultWorkspaceID,
		Name:      "default",
		Kind:      KindHost,
		Path:      workingDir,
		Status:    StatusReady,
		CreatedAt: time.Now().UTC(),
		Env:       map[string]string{},
	}
}
