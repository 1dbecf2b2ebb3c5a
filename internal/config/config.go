// Package config loads process configuration from the environment using
// Viper, binding the env var names the host consumes.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every environment-derived setting the host reads at startup.
type Config struct {
	// WorkingDir is the root for .sandboxed-sh/, context/, and workspaces/.
	WorkingDir string

	// PrivateKey is encryption key material supplied directly.
	PrivateKey string
	// PrivateKeyFile overrides the default {WorkingDir}/.openagent/private_key path.
	PrivateKeyFile string

	// AllowContainerFallback degrades container workspaces to host
	// directories when systemd-nspawn is unavailable.
	AllowContainerFallback bool

	// RTKEnabled installs the token-reduction PreToolUse hook into
	// synthesised Claude Code mission directories.
	RTKEnabled bool

	// ContextRoot overrides the default {WorkingDir}/context mission
	// context tree.
	ContextRoot string
	// ContextDirName is the directory name mounted/symlinked as the
	// mission's ./context entry.
	ContextDirName string

	// PerWorkspaceRunner indicates the harness runs inside the container
	// namespace (true) or on the host (false).
	PerWorkspaceRunner bool

	// OpencodePermissive mirrors the upstream dual-effect flag: it is read
	// independently by the harness config synthesiser's permission map and
	// by an external dashboard permission wrapper. See DESIGN.md for the
	// Open Question this resolves.
	OpencodePermissive bool

	Desktop   DesktopConfig
	Tailscale TailscaleConfig

	Debug bool
}

// DesktopConfig carries display settings forwarded to desktop-flavoured MCP
// servers as environment variables.
type DesktopConfig struct {
	Resolution string
	Display    string
}

// TailscaleConfig carries credentials that switch the container engine's
// nspawn invocations into Tailscale networking mode.
type TailscaleConfig struct {
	AuthKey string
	ExitNode string
}

// Load reads Config from the process environment via Viper. It never
// fails: every field has a workable zero value or derived default.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.BindEnv("working_dir", "WORKING_DIR")
	v.BindEnv("private_key", "PRIVATE_KEY")
	v.BindEnv("private_key_file", "PRIVATE_KEY_FILE")
	v.BindEnv("allow_container_fallback", "OPEN_AGENT_ALLOW_CONTAINER_FALLBACK")
	v.BindEnv("rtk_enabled", "OPEN_AGENT_RTK_ENABLED")
	v.BindEnv("context_root", "OPEN_AGENT_CONTEXT_ROOT")
	v.BindEnv("context_dir_name", "OPEN_AGENT_CONTEXT_DIR_NAME")
	v.BindEnv("per_workspace_runner", "OPEN_AGENT_PER_WORKSPACE_RUNNER")
	v.BindEnv("opencode_permissive", "OPENCODE_PERMISSIVE")
	v.BindEnv("desktop_resolution", "DESKTOP_RESOLUTION")
	v.BindEnv("desktop_display", "DESKTOP_DISPLAY")
	v.BindEnv("ts_authkey", "TS_AUTHKEY")
	v.BindEnv("ts_exit_node", "TS_EXIT_NODE")
	v.BindEnv("debug", "OPEN_AGENT_DEBUG")

	workingDir := v.GetString("working_dir")
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		} else {
			workingDir = "."
		}
	}
	workingDir, _ = filepath.Abs(workingDir)

	contextDirName := v.GetString("context_dir_name")
	if contextDirName == "" {
		contextDirName = "context"
	}

	return &Config{
		WorkingDir:             workingDir,
		PrivateKey:             v.GetString("private_key"),
		PrivateKeyFile:         v.GetString("private_key_file"),
		AllowContainerFallback: v.GetBool("allow_container_fallback"),
		RTKEnabled:             v.GetBool("rtk_enabled"),
		ContextRoot:            v.GetString("context_root"),
		ContextDirName:         contextDirName,
		PerWorkspaceRunner:     v.GetBool("per_workspace_runner"),
		OpencodePermissive:     v.GetBool("opencode_permissive"),
		Desktop: DesktopConfig{
			Resolution: firstNonEmpty(v.GetString("desktop_resolution"), "1920x1080"),
			Display:    v.GetString("desktop_display"),
		},
		Tailscale: TailscaleConfig{
			AuthKey:  v.GetString("ts_authkey"),
			ExitNode: v.GetString("ts_exit_node"),
		},
		Debug: v.GetBool("debug"),
	}
}

// StateDir is {WorkingDir}/.sandboxed-sh, the core's private state root.
func (c *Config) StateDir() string {
	return filepath.Join(c.WorkingDir, ".sandboxed-sh")
}

// OpenAgentDir is {WorkingDir}/.openagent, holding the library and the
// generated private key.
func (c *Config) OpenAgentDir() string {
	return filepath.Join(c.WorkingDir, ".openagent")
}

// DefaultContextRoot is {WorkingDir}/context unless overridden.
func (c *Config) DefaultContextRoot() string {
	if c.ContextRoot != "" {
		return c.ContextRoot
	}
	return filepath.Join(c.WorkingDir, "context")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
