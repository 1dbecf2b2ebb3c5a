// Package library implements the git-backed entity store: skills,
// commands, agents, rules, workspace templates, MCP definitions, plugins,
// and init-script fragments, all living as files under a git working copy
// at {working_dir}/.openagent/library.
package library

// Kind enumerates the entity kinds the library stores.
type Kind string

const (
	KindSkill             Kind = "skill"
	KindCommand           Kind = "command"
	KindAgent             Kind = "agent"
	KindRule              Kind = "rule"
	KindWorkspaceTemplate Kind = "workspace-template"
	KindMCPDefinition     Kind = "mcp-definition"
	KindPlugin            Kind = "plugin"
	KindInitScript        Kind = "init-script"
)

// subdir returns the directory name a Kind is stored under, relative to
// the library root.
func (k Kind) subdir() string {
	switch k {
	case KindSkill:
		return "skills"
	case KindCommand:
		return "commands"
	case KindAgent:
		return "agents"
	case KindRule:
		return "rules"
	case KindWorkspaceTemplate:
		return "workspace-templates"
	case KindMCPDefinition:
		return "mcp-definitions"
	case KindPlugin:
		return "plugins"
	case KindInitScript:
		return "init-scripts"
	default:
		return string(k)
	}
}

// fileName returns the on-disk file name a Kind uses for its primary
// document. Skills use the SKILL.md convention inside a named directory;
// every other kind is a flat {name}.md file.
func (k Kind) fileName(name string) string {
	if k == KindSkill {
		return "SKILL.md"
	}
	return name + ".md"
}

// Entity is one stored library item: parsed frontmatter plus body, and
// enough path bookkeeping to round-trip writes and renames.
type Entity struct {
	Kind        Kind
	Name        string
	Description string
	Source      string // remote import provenance, e.g. "github.com/org/repo@<sha>"
	Frontmatter map[string]interface{}
	Body        string

	// RelPath is the entity's primary file, relative to the library root.
	RelPath string
	// Files holds any additional files alongside the primary document,
	// keyed by path relative to the entity's own directory (skills only).
	Files map[string][]byte
}

// RenameReport lists what an entity rename touched.
type RenameReport struct {
	OldName      string
	NewName      string
	ChangedFiles []string
}

// GitStatus mirrors `git status --porcelain=v2 --branch`.
type GitStatus struct {
	Branch    string
	Ahead     int
	Behind    int
	Staged    []string
	Modified  []string
	Untracked []string
	Clean     bool
}

// SyncResult reports what Sync did.
type SyncResult struct {
	Pulled      bool
	FastForward bool
	Output      string
}
