// Package harnessconfig synthesises a ready-to-run mission directory for a
// coding-agent harness (OpenCode, Claude Code, or Codex) from a workspace,
// its MCP server set, and its library-provided skills/commands/agents.
package harnessconfig

// Harness identifies the target coding-agent binary a mission directory is
// synthesised for.
type Harness string

const (
	HarnessOpenCode   Harness = "opencode"
	HarnessClaudeCode Harness = "claude-code"
	HarnessCodex      Harness = "codex"
)

// MCPServerInput is the subset of an MCP server's configuration the
// synthesiser needs, transport-agnostic of pkg/mcpregistry's own types so
// this package has no import-cycle risk.
type MCPServerInput struct {
	Name           string
	Command        string
	Args           []string
	Env            map[string]string
	Endpoint       string
	Headers        map[string]string
	IsHTTP         bool
	Enabled        bool
	DefaultEnabled bool
}

// Skill is a library skill selected for a mission.
type Skill struct {
	Name        string
	Description string
	Body        string
	Files       map[string]string // relative path -> content, nested reference files
}

// Command is a library command selected for a mission.
type Command struct {
	Name string
	Body string
}

// Agent is a library agent selected for a mission.
type Agent struct {
	Name string
	Body string
}

// MissionContext carries everything the synthesiser needs to know about
// the workspace and mission it is generating config for.
type MissionContext struct {
	WorkspaceID     string
	WorkspaceName   string
	WorkspaceType   string // "host" or "container"
	WorkspaceRoot   string
	MissionID       string
	MissionDir      string
	ContextRoot     string
	ContextDirName  string
	WorkingDir      string
	IsContainer     bool
	ContainerPath   string // host path to the container rootfs, when IsContainer
	IsDefaultHost   bool
	RTKEnabled      bool
	OpencodePermissive bool
}

// SynthInput is everything Synthesize needs for one mission.
type SynthInput struct {
	Mission  MissionContext
	Harness  Harness
	Servers  []MCPServerInput
	// MCPAllowList is the workspace's explicit MCP name list; empty means
	// "default_enabled servers only".
	MCPAllowList []string

	Skills   []Skill
	Commands []Command
	Agents   []Agent

	// SkillAllowList is the workspace's explicit skill name list; empty
	// means "every library skill" only for the default host workspace.
	SkillAllowList []string
}

// Result summarizes what Synthesize wrote, for logging/testing.
type Result struct {
	MCPServersWritten int
	SkillsWritten     int
	CommandsWritten   int
	AgentsWritten     int
	ConfigFiles       []string
}
