// Package mcpregistry manages the set of Model Context Protocol servers a
// workspace can call into: persisted configuration, connection state, tool
// discovery, and tool invocation across both stdio and HTTP transports.
package mcpregistry

import (
	"time"

	"github.com/google/uuid"
)

// Scope controls which workspaces a server config applies to.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeWorkspace Scope = "workspace"
)

// Status is the runtime connection state of a server.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusDisabled     Status = "disabled"
	StatusError        Status = "error"
)

// TransportKind distinguishes the two supported wire transports.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// Transport is a tagged union over the two ways to reach an MCP server.
// Exactly one of the stdio or HTTP field groups is meaningful, selected by
// Kind.
type Transport struct {
	Kind TransportKind `json:"kind"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	Endpoint string            `json:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// ToolDescriptor is a tool as advertised by an MCP server's tools/list
// response.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema,omitempty"`
}

// ServerConfig is the persisted definition of one MCP server.
type ServerConfig struct {
	ID              uuid.UUID        `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Transport       Transport        `json:"transport"`
	Scope           Scope            `json:"scope"`
	Enabled         bool             `json:"enabled"`
	DefaultEnabled  bool             `json:"default_enabled"`
	Tools           []string         `json:"tools,omitempty"`
	ToolDescriptors []ToolDescriptor `json:"tool_descriptors,omitempty"`
	Version         string           `json:"version,omitempty"`
	LastConnectedAt *time.Time       `json:"last_connected_at,omitempty"`
}

// NewStdioConfig constructs an enabled, globally-scoped stdio server
// config; DefaultEnabled is left false.
func NewStdioConfig(name, command string, args []string, env map[string]string) ServerConfig {
	return ServerConfig{
		ID:      uuid.New(),
		Name:    name,
		Scope:   ScopeGlobal,
		Enabled: true,
		Transport: Transport{
			Kind:    TransportStdio,
			Command: command,
			Args:    args,
			Env:     env,
		},
	}
}

// NewHTTPConfig constructs an enabled, globally-scoped HTTP server
// config; DefaultEnabled is left false.
func NewHTTPConfig(name, endpoint string, headers map[string]string) ServerConfig {
	return ServerConfig{
		ID:      uuid.New(),
		Name:    name,
		Scope:   ScopeGlobal,
		Enabled: true,
		Transport: Transport{
			Kind:     TransportHTTP,
			Endpoint: endpoint,
			Headers:  headers,
		},
	}
}

// ServerState is a config plus its live connection state.
type ServerState struct {
	Config     ServerConfig `json:"config"`
	Status     Status       `json:"status"`
	Error      string       `json:"error,omitempty"`
	ToolCalls  int64        `json:"tool_calls"`
	ToolErrors int64        `json:"tool_errors"`
}

func stateFromConfig(c ServerConfig) ServerState {
	status := StatusDisconnected
	if !c.Enabled {
		status = StatusDisabled
	}
	return ServerState{Config: c, Status: status}
}

// Tool is a tool exposed to callers, prefixed with its owning server's
// sanitized name to avoid collisions across servers.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Schema      interface{} `json:"schema,omitempty"`
	ServerID    uuid.UUID   `json:"server_id"`
	Enabled     bool        `json:"enabled"`
}

// AddRequest is the input to Registry.Add.
type AddRequest struct {
	Name           string
	Description    string
	Transport      Transport
	Scope          *Scope
	DefaultEnabled *bool
}

// UpdateRequest is the input to Registry.Update; nil fields are left
// unchanged.
type UpdateRequest struct {
	Name           *string
	Description    *string
	Enabled        *bool
	Scope          *Scope
	Transport      *Transport
	DefaultEnabled *bool
}
