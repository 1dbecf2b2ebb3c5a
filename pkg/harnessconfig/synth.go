package harnessconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// Synthesize materialises a complete mission directory for in.Harness:
// MCP dialect translation, skill/command/agent trees, OpenCode permission
// map, the RTK hook (when enabled), and the runtime context file.
func Synthesize(in SynthInput) (Result, error) {
	var result Result

	if err := os.MkdirAll(in.Mission.MissionDir, 0o755); err != nil {
		return result, fmt.Errorf("create mission dir: %w", err)
	}

	servers := resolveMCPAllowList(in.Servers, in.MCPAllowList)
	result.MCPServersWritten = len(servers)

	switch in.Harness {
	case HarnessOpenCode:
		if err := writeOpenCodeConfig(in.Mission, servers, in); err != nil {
			return result, err
		}
		result.ConfigFiles = append(result.ConfigFiles, filepath.Join(in.Mission.MissionDir, ".opencode", "opencode.json"))
	case HarnessClaudeCode:
		if err := writeClaudeCodeConfig(in.Mission, servers); err != nil {
			return result, err
		}
		result.ConfigFiles = append(result.ConfigFiles,
			filepath.Join(in.Mission.MissionDir, ".claude", "mcp.json"),
			filepath.Join(in.Mission.MissionDir, ".claude", "settings.local.json"))
	case HarnessCodex:
		if err := writeCodexConfig(in.Mission, servers); err != nil {
			return result, err
		}
		result.ConfigFiles = append(result.ConfigFiles, filepath.Join(codexConfigDir(in.Mission), "config.toml"))
	default:
		return result, fmt.Errorf("unknown harness %q", in.Harness)
	}

	skills := effectiveSkills(in.SkillAllowList, in.Skills, in.Mission.IsDefaultHost)
	written, err := writeSkills(in.Mission, in.Harness, skills)
	if err != nil {
		return result, err
	}
	result.SkillsWritten = written

	cmdWritten, err := writeCommands(in.Mission, in.Harness, in.Commands)
	if err != nil {
		return result, err
	}
	result.CommandsWritten = cmdWritten

	agentsWritten, err := writeAgents(in.Mission, in.Harness, in.Agents)
	if err != nil {
		return result, err
	}
	result.AgentsWritten = agentsWritten

	if in.Harness == HarnessClaudeCode && in.Mission.RTKEnabled {
		settings, err := writeRTKHook(in.Mission, "/usr/local/bin/rtk")
		if err != nil {
			return result, err
		}
		if err := mergeSettingsLocal(in.Mission, settings); err != nil {
			return result, err
		}
	}

	if err := writeRuntimeContextFile(in.Mission); err != nil {
		return result, err
	}
	if err := linkContextDir(in.Mission); err != nil {
		return result, err
	}

	if in.Harness == HarnessOpenCode {
		if err := applyOAuthCompatibilityPatch(in.Mission); err != nil {
			return result, err
		}
	}

	return result, nil
}

func writeOpenCodeConfig(m MissionContext, servers []MCPServerInput, in SynthInput) error {
	dir := filepath.Join(m.MissionDir, ".opencode")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	mcp := make(map[string]interface{}, len(servers))
	for _, s := range servers {
		mcp[s.Name] = openCodeServerEntry(m, s)
	}

	base := map[string]interface{}{
		"mcp":         mcp,
		"permission":  synthesizePermissions(m.IsContainer, m.OpencodePermissive, in.SkillAllowList),
	}

	if userConfig, err := loadUserOpenCodeConfig(m); err == nil && userConfig != nil {
		base = mergeUserConfig(base, userConfig)
	} else if err != nil {
		logging.Debug(logging.CompHarnessConfig, "no user opencode config merged: %v", err)
	}

	return writeJSON(filepath.Join(dir, "opencode.json"), base)
}

func loadUserOpenCodeConfig(m MissionContext) (map[string]interface{}, error) {
	candidate := filepath.Join(m.WorkspaceRoot, ".config", "opencode", "opencode.jsonc")
	data, err := os.ReadFile(candidate)
	if err != nil {
		return nil, err
	}

	var userConfig map[string]interface{}
	if err := json.Unmarshal(stripJSONComments(data), &userConfig); err != nil {
		return nil, fmt.Errorf("parse user opencode config: %w", err)
	}
	return userConfig, nil
}

func writeClaudeCodeConfig(m MissionContext, servers []MCPServerInput) error {
	dir := filepath.Join(m.MissionDir, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	mcpServers := make(map[string]interface{}, len(servers))
	for _, s := range servers {
		mcpServers[s.Name] = claudeCodeServerEntry(m, s)
	}

	if err := writeJSON(filepath.Join(dir, "mcp.json"), map[string]interface{}{"mcpServers": mcpServers}); err != nil {
		return err
	}

	settingsPath := filepath.Join(dir, "settings.local.json")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return writeJSON(settingsPath, map[string]interface{}{})
	}
	return nil
}

func mergeSettingsLocal(m MissionContext, patch map[string]interface{}) error {
	path := filepath.Join(m.MissionDir, ".claude", "settings.local.json")

	existing := map[string]interface{}{}
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &existing)
	}
	for k, v := range patch {
		existing[k] = v
	}
	return writeJSON(path, existing)
}

func codexConfigDir(m MissionContext) string {
	return filepath.Join(m.MissionDir, ".codex")
}

func writeCodexConfig(m MissionContext, servers []MCPServerInput) error {
	dir := codexConfigDir(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	mcpServers := make(map[string]interface{}, len(servers))
	for _, s := range servers {
		mcpServers[s.Name] = codexServerEntry(m, s)
	}

	doc := map[string]interface{}{"mcp_servers": mcpServers}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal codex config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.toml"), data, 0o644)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeRuntimeContextFile writes workspace-{mission_id}.json (mirrored to
// current_workspace.json) carrying the workspace id/name/type/root, the
// mission's effective working directory, the mission id, the context root,
// the mission's context path, and the context directory name — with all
// paths translated to container-relative form for container workspaces.
func writeRuntimeContextFile(m MissionContext) error {
	runtimeDir := filepath.Join(m.WorkingDir, ".sandboxed-sh", "runtime")
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return err
	}

	workspaceRoot := m.WorkspaceRoot
	workingDir := m.MissionDir
	contextRoot := m.ContextRoot
	missionContext := filepath.Join(m.ContextRoot, m.MissionID)
	if m.IsContainer {
		workspaceRoot = containerRelative(m, workspaceRoot)
		workingDir = containerRelative(m, workingDir)
		// Context is bind-mounted at /root/{context_dir_name} inside the
		// container, not reachable via the rootfs tree, so these two use a
		// fixed container path rather than containerRelative.
		contextRoot = filepath.Join("/root", m.ContextDirName)
		missionContext = filepath.Join(contextRoot, m.MissionID)
	}

	doc := map[string]interface{}{
		"workspace_id":     m.WorkspaceID,
		"workspace_name":   m.WorkspaceName,
		"workspace_type":   m.WorkspaceType,
		"workspace_root":   workspaceRoot,
		"working_dir":      workingDir,
		"mission_id":       m.MissionID,
		"context_root":     contextRoot,
		"mission_context":  missionContext,
		"context_dir_name": m.ContextDirName,
	}

	if err := writeJSON(filepath.Join(runtimeDir, fmt.Sprintf("workspace-%s.json", m.MissionID)), doc); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runtimeDir, "current_workspace.json"), doc)
}

// linkContextDir establishes ./{context_dir_name} inside the mission
// directory as a symlink to the mission's context path: a fixed
// /root/{context_dir_name}/{mission_id} for container workspaces, or the
// absolute host {context_root}/{mission_id} otherwise. Stale links/
// directories are removed first.
func linkContextDir(m MissionContext) error {
	hostTarget := filepath.Join(m.ContextRoot, m.MissionID)
	if err := os.MkdirAll(hostTarget, 0o755); err != nil {
		return fmt.Errorf("create mission context dir: %w", err)
	}

	linkPath := filepath.Join(m.MissionDir, m.ContextDirName)
	os.RemoveAll(linkPath)

	target := hostTarget
	if m.IsContainer {
		target = filepath.Join("/root", m.ContextDirName, m.MissionID)
	}
	return os.Symlink(target, linkPath)
}

// applyOAuthCompatibilityPatch rewrites every anthropic/ agent model from
// claude-opus-4-5 to claude-sonnet-4-5 and strips any variant field, so
// agents keep working under Claude-Code OAuth tokens.
func applyOAuthCompatibilityPatch(m MissionContext) error {
	path := filepath.Join(m.MissionDir, "oh-my-opencode.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read oh-my-opencode.json: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse oh-my-opencode.json: %w", err)
	}

	agents, ok := doc["agent"].(map[string]interface{})
	if !ok {
		return nil
	}
	for _, raw := range agents {
		agent, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		model, _ := agent["model"].(string)
		if !strings.HasPrefix(model, "anthropic/") {
			continue
		}
		agent["model"] = strings.Replace(model, "claude-opus-4-5", "claude-sonnet-4-5", 1)
		delete(agent, "variant")
	}

	return writeJSON(path, doc)
}
