package harnessconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sandboxed-sh/openagent/pkg/crypto"
)

var frontmatterRegexp = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?(.*)$`)

var yamlSpecialChars = []string{":", "[", "]", "{", "}", "#", "&", "*", "!", "|", ">", "'", "\"", "%", "@", "`"}

// normalizeFrontmatter ensures the skill's frontmatter carries name and
// description, quoting description if it contains YAML-special characters
// and isn't already quoted.
func normalizeFrontmatter(name, body string) string {
	match := frontmatterRegexp.FindStringSubmatch(body)
	if match == nil {
		// No frontmatter at all: synthesize a minimal one.
		return fmt.Sprintf("---\nname: %s\ndescription: %s\n---\n\n%s", name, name, body)
	}

	frontmatter, rest := match[1], match[2]
	lines := strings.Split(frontmatter, "\n")

	hasName, hasDescription := false, false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "name:") {
			hasName = true
		}
		if strings.HasPrefix(trimmed, "description:") {
			hasDescription = true
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "description:"))
			lines[i] = "description: " + quoteIfNeeded(value)
		}
	}
	if !hasName {
		lines = append([]string{"name: " + name}, lines...)
	}
	if !hasDescription {
		lines = append(lines, "description: "+quoteIfNeeded(name))
	}

	return "---\n" + strings.Join(lines, "\n") + "\n---\n" + rest
}

func quoteIfNeeded(value string) string {
	if value == "" {
		return value
	}
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value
	}
	needsQuoting := false
	for _, c := range yamlSpecialChars {
		if strings.Contains(value, c) {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		return value
	}

	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// stripEncryptedTags removes every <encrypted ...>value</encrypted>
// wrapper, replacing it with its plaintext value, across both the skill
// body and any nested reference file.
func stripEncryptedTags(content string) string {
	return crypto.StripContentTags(content)
}

// writeSkills cleans each harness's skill directory and re-materialises
// every selected skill, frontmatter-normalised and stripped of encrypted
// content wrappers.
func writeSkills(m MissionContext, h Harness, skills []Skill) (int, error) {
	root, err := skillsRoot(m, h)
	if err != nil {
		return 0, err
	}

	if err := os.RemoveAll(root); err != nil {
		return 0, fmt.Errorf("clean skills dir %s: %w", root, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, fmt.Errorf("create skills dir %s: %w", root, err)
	}

	written := 0
	for _, skill := range skills {
		dir := filepath.Join(root, skill.Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, fmt.Errorf("create skill dir %s: %w", dir, err)
		}

		body := stripEncryptedTags(normalizeFrontmatter(skill.Name, skill.Body))
		if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(body), 0o644); err != nil {
			return written, fmt.Errorf("write skill %s: %w", skill.Name, err)
		}

		for rel, content := range skill.Files {
			path := filepath.Join(dir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return written, fmt.Errorf("create skill reference dir for %s: %w", skill.Name, err)
			}
			if err := os.WriteFile(path, []byte(stripEncryptedTags(content)), 0o644); err != nil {
				return written, fmt.Errorf("write skill reference file %s: %w", rel, err)
			}
		}
		written++
	}
	return written, nil
}

func skillsRoot(m MissionContext, h Harness) (string, error) {
	switch h {
	case HarnessOpenCode:
		return filepath.Join(m.MissionDir, ".opencode", "skill"), nil
	case HarnessClaudeCode:
		return filepath.Join(m.MissionDir, ".claude", "skills"), nil
	case HarnessCodex:
		return filepath.Join(m.MissionDir, ".codex", "skills"), nil
	default:
		return "", fmt.Errorf("unknown harness %q", h)
	}
}

// effectiveSkills implements the allow-list resolution: the workspace's
// explicit list, or — for the default host workspace with an empty list —
// every library skill.
func effectiveSkills(allowList []string, allSkills []Skill, isDefaultHost bool) []Skill {
	if len(allowList) == 0 {
		if isDefaultHost {
			return allSkills
		}
		return nil
	}
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	var out []Skill
	for _, s := range allSkills {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// writeCommands writes Claude-Code-native slash commands and, for
// OpenCode, converts each command into a skill with injected name:
// frontmatter.
func writeCommands(m MissionContext, h Harness, commands []Command) (int, error) {
	switch h {
	case HarnessClaudeCode:
		dir := filepath.Join(m.MissionDir, ".claude", "commands")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
		for _, c := range commands {
			path := filepath.Join(dir, c.Name+".md")
			if err := os.WriteFile(path, []byte(c.Body), 0o644); err != nil {
				return 0, fmt.Errorf("write command %s: %w", c.Name, err)
			}
		}
		return len(commands), nil

	case HarnessOpenCode:
		dir := filepath.Join(m.MissionDir, ".opencode", "skill")
		written := 0
		for _, c := range commands {
			skillDir := filepath.Join(dir, c.Name)
			if err := os.MkdirAll(skillDir, 0o755); err != nil {
				return written, err
			}
			body := "---\nname: " + c.Name + "\n---\n\n" + c.Body
			if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(body), 0o644); err != nil {
				return written, fmt.Errorf("write command-as-skill %s: %w", c.Name, err)
			}
			written++
		}
		return written, nil

	default:
		return 0, nil
	}
}

// writeAgents writes library agents verbatim to .opencode/agent/{name}.md.
func writeAgents(m MissionContext, h Harness, agents []Agent) (int, error) {
	if h != HarnessOpenCode {
		return 0, nil
	}
	dir := filepath.Join(m.MissionDir, ".opencode", "agent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for _, a := range agents {
		path := filepath.Join(dir, a.Name+".md")
		if err := os.WriteFile(path, []byte(a.Body), 0o644); err != nil {
			return 0, fmt.Errorf("write agent %s: %w", a.Name, err)
		}
	}
	return len(agents), nil
}
