package mcpregistry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"golang.org/x/sync/errgroup"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// Registry is the runtime MCP server registry: persisted configs, live
// connection state, and stdio process handles.
type Registry struct {
	store *configStore

	mu     sync.RWMutex
	states map[uuid.UUID]ServerState

	stdioMu  sync.Mutex
	stdio    map[uuid.UUID]*client.Client

	disabledMu sync.RWMutex
	disabled   map[string]struct{}

	workingDir string
}

// New loads the persisted configs rooted at workingDir, seeds the built-in
// defaults (workspace/desktop/playwright) when absent, and returns a
// registry with every enabled config in disconnected runtime state and
// every disabled config in disabled state.
func New(workingDir string) *Registry {
	store := newConfigStore(workingDir)

	r := &Registry{
		store:      store,
		states:     make(map[uuid.UUID]ServerState),
		stdio:      make(map[uuid.UUID]*client.Client),
		disabled:   make(map[string]struct{}),
		workingDir: workingDir,
	}

	configs := ensureDefaults(store, store.list(), workingDir)
	for _, c := range configs {
		r.states[c.ID] = stateFromConfig(c)
	}
	return r
}

// ListConfigs returns the raw persisted server configs, for harness config
// synthesis.
func (r *Registry) ListConfigs() []ServerConfig {
	return r.store.list()
}

func resolveLocalBinary(workingDir, name string) (string, bool) {
	for _, profile := range []string{"release", "debug"} {
		candidate := filepath.Join(workingDir, "target", profile, name)
		if commandExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func defaultConfigs(workingDir string) []ServerConfig {
	desktopEnv := map[string]string{"DESKTOP_RESOLUTION": "1920x1080"}
	desktopCommand := "desktop-mcp"
	if resolved, ok := resolveLocalBinary(workingDir, "desktop-mcp"); ok {
		desktopCommand = resolved
	}
	desktop := NewStdioConfig("desktop", desktopCommand, nil, desktopEnv)
	desktop.Scope = ScopeWorkspace
	desktop.DefaultEnabled = true

	workspaceCommand := "workspace-mcp"
	if resolved, ok := resolveLocalBinary(workingDir, "workspace-mcp"); ok {
		workspaceCommand = resolved
	}
	workspace := NewStdioConfig("workspace", workspaceCommand, nil, nil)
	workspace.Scope = ScopeWorkspace
	workspace.DefaultEnabled = true

	jsRunner := "npx"
	if commandExists("bunx") {
		jsRunner = "bunx"
	}
	playwright := NewStdioConfig("playwright", jsRunner, []string{
		"@playwright/mcp@latest", "--headless", "--isolated", "--no-sandbox",
	}, nil)
	playwright.Scope = ScopeWorkspace
	playwright.DefaultEnabled = true

	return []ServerConfig{workspace, desktop, playwright}
}

// ensureDefaults dedupes by name (first one wins), seeds any missing
// built-in defaults, and migrates a handful of historical config drifts
// (playwright sandboxing flags, workspace/desktop scope, default_enabled).
func ensureDefaults(store *configStore, configs []ServerConfig, workingDir string) []ServerConfig {
	seen := make(map[string]bool)
	kept := make([]ServerConfig, 0, len(configs))
	for _, c := range configs {
		if seen[c.Name] {
			logging.Warn(logging.CompMCP, "removing duplicate mcp server %q (id %s)", c.Name, c.ID)
			store.remove(c.ID)
			continue
		}
		seen[c.Name] = true
		kept = append(kept, c)
	}
	configs = kept

	for _, def := range defaultConfigs(workingDir) {
		if seen[def.Name] {
			continue
		}
		saved, err := store.add(def)
		if err != nil {
			logging.Warn(logging.CompMCP, "failed to add default mcp server %q: %v", def.Name, err)
			continue
		}
		configs = append(configs, saved)
	}

	requiredFlags := []string{"--headless", "--isolated", "--no-sandbox"}
	for i, c := range configs {
		switch c.Name {
		case "playwright":
			if c.Scope != ScopeWorkspace {
				c.Scope = ScopeWorkspace
			}
			for _, flag := range requiredFlags {
				if !containsStr(c.Transport.Args, flag) {
					c.Transport.Args = append(c.Transport.Args, flag)
				}
			}
			configs[i] = c
			store.update(c.ID, func(sc *ServerConfig) { *sc = c })
		case "workspace", "desktop":
			if c.Scope != ScopeWorkspace {
				c.Scope = ScopeWorkspace
			}
			if !c.DefaultEnabled {
				c.DefaultEnabled = true
			}
			configs[i] = c
			store.update(c.ID, func(sc *ServerConfig) { *sc = c })
		}
	}

	return configs
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sanitizeMCPPrefix converts a server name into a valid tool-name prefix:
// alphanumeric/underscore/hyphen only, lowercased, hyphens folded to
// underscores.
func sanitizeMCPPrefix(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.ToLower(b.String()), "-", "_")
}

// List returns every server's current state.
func (r *Registry) List() []ServerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	return out
}

// Get returns one server's current state.
func (r *Registry) Get(id uuid.UUID) (ServerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	return s, ok
}

// Add registers a new server config. It does not connect — call Refresh
// afterward to discover tools.
func (r *Registry) Add(req AddRequest) (ServerState, error) {
	var cfg ServerConfig
	if req.Transport.Kind == TransportHTTP {
		cfg = NewHTTPConfig(req.Name, req.Transport.Endpoint, req.Transport.Headers)
	} else {
		cfg = NewStdioConfig(req.Name, req.Transport.Command, req.Transport.Args, req.Transport.Env)
	}
	cfg.Description = req.Description
	if req.Scope != nil {
		cfg.Scope = *req.Scope
	}
	if req.DefaultEnabled != nil {
		cfg.DefaultEnabled = *req.DefaultEnabled
	}

	saved, err := r.store.add(cfg)
	if err != nil {
		return ServerState{}, err
	}

	state := stateFromConfig(saved)
	r.mu.Lock()
	r.states[saved.ID] = state
	r.mu.Unlock()
	return state, nil
}

// Remove kills any running stdio process and deletes the server entirely.
func (r *Registry) Remove(id uuid.UUID) error {
	r.killStdio(id)

	if err := r.store.remove(id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
	return nil
}

// Enable flips a server's enabled flag. Call Refresh to connect.
func (r *Registry) Enable(id uuid.UUID) (ServerState, error) {
	cfg, err := r.store.enable(id)
	if err != nil {
		return ServerState{}, err
	}

	r.mu.Lock()
	state := r.states[id]
	state.Config = cfg
	state.Status = StatusDisconnected
	state.Error = ""
	r.states[id] = state
	r.mu.Unlock()

	return r.mustGet(id)
}

// Disable kills any running stdio process and marks the server disabled.
func (r *Registry) Disable(id uuid.UUID) (ServerState, error) {
	r.killStdio(id)

	cfg, err := r.store.disable(id)
	if err != nil {
		return ServerState{}, err
	}

	r.mu.Lock()
	state := r.states[id]
	state.Config = cfg
	state.Status = StatusDisabled
	state.Error = ""
	r.states[id] = state
	r.mu.Unlock()

	return r.mustGet(id)
}

// Update applies a partial update to a server config. If the transport
// changes, any running stdio process is killed and the connection state
// resets.
func (r *Registry) Update(id uuid.UUID, req UpdateRequest) (ServerState, error) {
	if req.Transport != nil {
		r.killStdio(id)
	}

	cfg, err := r.store.update(id, func(c *ServerConfig) {
		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		if req.Enabled != nil {
			c.Enabled = *req.Enabled
		}
		if req.Scope != nil {
			c.Scope = *req.Scope
		}
		if req.Transport != nil {
			c.Transport = *req.Transport
		}
		if req.DefaultEnabled != nil {
			c.DefaultEnabled = *req.DefaultEnabled
		}
	})
	if err != nil {
		return ServerState{}, err
	}

	r.mu.Lock()
	state := r.states[id]
	state.Config = cfg
	if req.Transport != nil {
		if cfg.Enabled {
			state.Status = StatusDisconnected
		} else {
			state.Status = StatusDisabled
		}
		state.Error = ""
	}
	r.states[id] = state
	r.mu.Unlock()

	return r.mustGet(id)
}

func (r *Registry) mustGet(id uuid.UUID) (ServerState, error) {
	s, ok := r.Get(id)
	if !ok {
		return ServerState{}, fmt.Errorf("mcp server %s not found", id)
	}
	return s, nil
}

func (r *Registry) killStdio(id uuid.UUID) {
	r.stdioMu.Lock()
	c, ok := r.stdio[id]
	if ok {
		delete(r.stdio, id)
	}
	r.stdioMu.Unlock()
	if ok {
		c.Close()
	}
}

func (r *Registry) updateError(id uuid.UUID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[id]; ok {
		s.Status = StatusError
		s.Error = message
		r.states[id] = s
	}
}

func (r *Registry) updateSuccess(id uuid.UUID, descriptors []ToolDescriptor, version string) {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	now := time.Now()

	r.store.update(id, func(c *ServerConfig) {
		c.Tools = names
		c.ToolDescriptors = descriptors
		c.Version = version
		c.LastConnectedAt = &now
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[id]; ok {
		s.Config.Tools = names
		s.Config.ToolDescriptors = descriptors
		s.Config.Version = version
		s.Config.LastConnectedAt = &now
		s.Status = StatusConnected
		s.Error = ""
		r.states[id] = s
	}
}

// Refresh reconnects to a server and rediscovers its tools.
func (r *Registry) Refresh(ctx context.Context, id uuid.UUID) (ServerState, error) {
	state, ok := r.Get(id)
	if !ok {
		return ServerState{}, fmt.Errorf("mcp server %s not found", id)
	}
	if !state.Config.Enabled {
		return state, nil
	}

	switch state.Config.Transport.Kind {
	case TransportHTTP:
		r.refreshHTTP(ctx, id, state.Config.Transport)
	default:
		r.refreshStdio(ctx, id, state.Config.Transport)
	}
	return r.mustGet(id)
}

func (r *Registry) refreshHTTP(ctx context.Context, id uuid.UUID, t Transport) {
	t.Endpoint = strings.TrimSuffix(t.Endpoint, "/")

	c, err := dialHTTP(ctx, t)
	if err != nil {
		r.updateError(id, fmt.Sprintf("initialize failed: %v", err))
		return
	}
	defer c.Close()

	descriptors, version, err := listTools(ctx, c)
	if err != nil {
		r.updateError(id, err.Error())
		return
	}
	r.updateSuccess(id, descriptors, version)
}

func (r *Registry) refreshStdio(ctx context.Context, id uuid.UUID, t Transport) {
	r.killStdio(id)

	c, err := dialStdio(ctx, t)
	if err != nil {
		r.updateError(id, fmt.Sprintf("failed to spawn process: %v", err))
		return
	}

	r.stdioMu.Lock()
	r.stdio[id] = c
	r.stdioMu.Unlock()

	descriptors, version, err := listTools(ctx, c)
	if err != nil {
		r.updateError(id, err.Error())
		return
	}
	r.updateSuccess(id, descriptors, version)
}

// RefreshAll reconnects every server concurrently.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			r.Refresh(gctx, id)
			return nil
		})
	}
	g.Wait()
}

// CallTool invokes tool_name on mcpID's server with arguments and returns
// its combined text output.
func (r *Registry) CallTool(ctx context.Context, mcpID uuid.UUID, toolName string, arguments map[string]interface{}) (string, error) {
	if !r.IsToolEnabled(toolName) {
		return "", fmt.Errorf("tool %s is disabled", toolName)
	}
	state, ok := r.Get(mcpID)
	if !ok {
		return "", fmt.Errorf("mcp server %s not found", mcpID)
	}
	unprefixed := strings.TrimPrefix(toolName, sanitizeMCPPrefix(state.Config.Name)+"_")
	if !state.Config.Enabled {
		return "", fmt.Errorf("mcp server %s is disabled", state.Config.Name)
	}
	if state.Status != StatusConnected {
		return "", fmt.Errorf("mcp server %s is not connected", state.Config.Name)
	}

	var (
		output  string
		isError bool
		err     error
	)

	switch state.Config.Transport.Kind {
	case TransportHTTP:
		t := state.Config.Transport
		t.Endpoint = strings.TrimSuffix(t.Endpoint, "/")
		var c *client.Client
		c, err = dialHTTP(ctx, t)
		if err == nil {
			defer c.Close()
			output, isError, err = callTool(ctx, c, unprefixed, arguments)
		}
	default:
		r.stdioMu.Lock()
		c, found := r.stdio[mcpID]
		r.stdioMu.Unlock()
		if !found {
			err = fmt.Errorf("no stdio process for mcp server %s", mcpID)
		} else {
			output, isError, err = callTool(ctx, c, unprefixed, arguments)
		}
	}

	r.mu.Lock()
	if s, ok := r.states[mcpID]; ok {
		if err != nil || isError {
			s.ToolErrors++
		} else {
			s.ToolCalls++
		}
		r.states[mcpID] = s
	}
	r.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("tool call failed: %w", err)
	}
	if isError {
		return "", fmt.Errorf("tool error: %s", output)
	}
	return output, nil
}

// ListTools returns every tool exposed by connected, enabled servers,
// prefixed by each server's sanitized name.
func (r *Registry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.disabledMu.RLock()
	defer r.disabledMu.RUnlock()

	var tools []Tool
	for _, state := range r.states {
		if !state.Config.Enabled || state.Status != StatusConnected {
			continue
		}
		prefix := sanitizeMCPPrefix(state.Config.Name)
		for _, d := range state.Config.ToolDescriptors {
			prefixedName := prefix + "_" + d.Name
			_, disabledPlain := r.disabled[d.Name]
			_, disabledPrefixed := r.disabled[prefixedName]
			tools = append(tools, Tool{
				Name:        prefixedName,
				Description: fmt.Sprintf("[%s] %s", state.Config.Name, d.Description),
				Schema:      d.InputSchema,
				ServerID:    state.Config.ID,
				Enabled:     !disabledPlain && !disabledPrefixed,
			})
		}
	}
	return tools
}

// FindTool looks up a tool by its prefixed name among connected, enabled
// servers.
func (r *Registry) FindTool(name string) (Tool, bool) {
	for _, t := range r.ListTools() {
		if t.Name == name && t.Enabled {
			return t, true
		}
	}
	return Tool{}, false
}

// EnableTool re-enables a previously disabled tool by its (possibly
// unprefixed) name.
func (r *Registry) EnableTool(name string) {
	r.disabledMu.Lock()
	defer r.disabledMu.Unlock()
	delete(r.disabled, name)
}

// DisableTool disables a tool by name, blocking both FindTool and
// CallTool for it until re-enabled.
func (r *Registry) DisableTool(name string) {
	r.disabledMu.Lock()
	defer r.disabledMu.Unlock()
	r.disabled[name] = struct{}{}
}

// IsToolEnabled reports whether name is currently enabled.
func (r *Registry) IsToolEnabled(name string) bool {
	r.disabledMu.RLock()
	defer r.disabledMu.RUnlock()
	_, disabled := r.disabled[name]
	return !disabled
}

// StripPrefix returns the part of prefixedName after its first underscore,
// or prefixedName unchanged when it has none. The result is the
// server-local tool name only when the server's sanitized prefix contains
// no underscore.
func StripPrefix(prefixedName string) string {
	idx := strings.Index(prefixedName, "_")
	if idx < 0 {
		return prefixedName
	}
	return prefixedName[idx+1:]
}
