package harnessconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// contextEnv returns the workspace-context variables every dialect merges
// into each server's own env.
func contextEnv(m MissionContext) map[string]string {
	env := map[string]string{
		"OPEN_AGENT_WORKSPACE":        m.WorkspaceID,
		"OPEN_AGENT_WORKSPACE_ROOT":   m.WorkspaceRoot,
		"OPEN_AGENT_WORKSPACE_TYPE":   m.WorkspaceType,
		"WORKING_DIR":                 m.WorkingDir,
		"OPEN_AGENT_CONTEXT_ROOT":     m.ContextRoot,
		"OPEN_AGENT_CONTEXT_DIR_NAME": m.ContextDirName,
		"OPEN_AGENT_MISSION_CONTEXT":  missionContextFilePath(m),
	}
	if m.IsContainer {
		env["OPEN_AGENT_RUNTIME_DISPLAY"] = containerRelative(m, m.WorkspaceRoot)
	}
	return env
}

func missionContextFilePath(m MissionContext) string {
	return filepath.Join(m.MissionDir, m.ContextDirName)
}

// resolveCommand maps a bare command name to an absolute in-container
// path, preferring /usr/local/bin and falling back to /usr/bin; for host
// workspaces the command is returned unchanged.
func resolveCommand(m MissionContext, command string) string {
	if command == "" || filepath.IsAbs(command) || !m.IsContainer {
		return command
	}

	localBin := filepath.Join(m.ContainerPath, "usr", "local", "bin", command)
	if fileExists(localBin) {
		return filepath.Join("/usr/local/bin", command)
	}
	usrBin := filepath.Join(m.ContainerPath, "usr", "bin", command)
	if fileExists(usrBin) {
		return filepath.Join("/usr/bin", command)
	}
	return filepath.Join("/usr/local/bin", command)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// containerRelative rewrites a host path rooted at the container's rootfs
// into the path as seen from inside the container's mount namespace. Paths
// that don't lie under the rootfs are returned unchanged.
func containerRelative(m MissionContext, hostPath string) string {
	if !m.IsContainer || m.ContainerPath == "" {
		return hostPath
	}
	rel, err := filepath.Rel(m.ContainerPath, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hostPath
	}
	if rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func mergedEnv(m MissionContext, own map[string]string) map[string]string {
	merged := contextEnv(m)
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

// openCodeServerEntry renders one MCP server into OpenCode's mcp.{name}
// container shape.
func openCodeServerEntry(m MissionContext, s MCPServerInput) map[string]interface{} {
	if s.IsHTTP {
		return map[string]interface{}{
			"type":     "http",
			"endpoint": s.Endpoint,
			"headers":  s.Headers,
		}
	}
	args := append([]string{resolveCommand(m, s.Command)}, s.Args...)
	return map[string]interface{}{
		"type":        "local",
		"command":     args,
		"environment": mergedEnv(m, s.Env),
	}
}

// claudeCodeServerEntry renders one MCP server into Claude Code's
// mcpServers.{name} shape.
func claudeCodeServerEntry(m MissionContext, s MCPServerInput) map[string]interface{} {
	if s.IsHTTP {
		return map[string]interface{}{
			"url":     s.Endpoint,
			"headers": s.Headers,
		}
	}
	return map[string]interface{}{
		"command": resolveCommand(m, s.Command),
		"args":    s.Args,
		"env":     mergedEnv(m, s.Env),
	}
}

// codexServerEntry renders one MCP server into the table that becomes
// [mcp_servers.{name}] in Codex's TOML config.
func codexServerEntry(m MissionContext, s MCPServerInput) map[string]interface{} {
	if s.IsHTTP {
		entry := map[string]interface{}{"url": s.Endpoint}
		if len(s.Headers) > 0 {
			entry["headers"] = s.Headers
		}
		return entry
	}
	entry := map[string]interface{}{
		"command": resolveCommand(m, s.Command),
	}
	if len(s.Args) > 0 {
		entry["args"] = s.Args
	}
	entry["env"] = mergedEnv(m, s.Env)
	return entry
}

// resolveMCPAllowList implements the three-step effective MCP set: start
// from all enabled servers, then narrow to default_enabled when the
// workspace has no explicit list, or to the named subset otherwise.
func resolveMCPAllowList(servers []MCPServerInput, allowList []string) []MCPServerInput {
	enabled := make([]MCPServerInput, 0, len(servers))
	for _, s := range servers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	if len(allowList) == 0 {
		var out []MCPServerInput
		for _, s := range enabled {
			if s.DefaultEnabled {
				out = append(out, s)
			}
		}
		return out
	}

	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	var out []MCPServerInput
	for _, s := range enabled {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
