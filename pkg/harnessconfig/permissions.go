package harnessconfig

// coreOpenCodeTools is the fixed allow-list of built-in OpenCode tools
// every mission gets, independent of workspace type or skill selection.
var coreOpenCodeTools = []string{
	"read", "edit", "glob", "grep", "list", "bash", "task",
	"external_directory", "todowrite", "todoread", "question",
	"webfetch", "websearch", "codesearch", "lsp", "doom_loop",
}

// allToolGlobs is the candidate tool-name-glob set gated by
// workspace kind and permissive-mode; each entry is enabled/disabled
// according to the booleans passed to synthesizePermissions.
var allToolGlobs = []string{
	"workspace_*", "desktop_*", "playwright_*", "browser_*", "Bash", "bash",
}

// synthesizePermissions builds the OpenCode permission document: the core
// tool allow-list, a skill.* wildcard-deny-then-explicit-allow map when
// skillAllowList is non-empty, and a glob-pattern enable/disable map for
// workspace-scoped tool families.
func synthesizePermissions(isContainer bool, permissive bool, skillAllowList []string) map[string]interface{} {
	perm := map[string]interface{}{
		"tool": coreOpenCodeTools,
	}

	if len(skillAllowList) > 0 {
		skillPerm := map[string]interface{}{"*": "deny"}
		for _, name := range skillAllowList {
			skillPerm[name] = "allow"
		}
		perm["skill"] = skillPerm
	}

	tools := make(map[string]bool, len(allToolGlobs))
	for _, glob := range allToolGlobs {
		tools[glob] = toolGlobEnabled(glob, isContainer, permissive)
	}
	perm["tools"] = tools

	return perm
}

// toolGlobEnabled decides whether a tool-name glob is enabled for this
// mission. Container workspaces get the full built-in MCP surface plus
// shell tools; host workspaces (and non-permissive mode) keep a narrower
// surface, widened when OPENCODE_PERMISSIVE is set.
func toolGlobEnabled(glob string, isContainer, permissive bool) bool {
	switch glob {
	case "workspace_*", "desktop_*", "playwright_*", "browser_*":
		return isContainer || permissive
	case "Bash", "bash":
		return true
	default:
		return permissive
	}
}

// mergeUserConfig overlays a user-authored OpenCode config (already
// JSONC-comment-stripped by the caller) on top of the synthesised base,
// with user keys winning at the top level.
func mergeUserConfig(base map[string]interface{}, userConfig map[string]interface{}) map[string]interface{} {
	if userConfig == nil {
		return base
	}
	merged := make(map[string]interface{}, len(base)+len(userConfig))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range userConfig {
		merged[k] = v
	}
	return merged
}

// stripJSONComments removes // line comments and /* */ block comments
// from a JSONC document so it can be parsed as plain JSON. It does not
// strip sequences inside string literals.
func stripJSONComments(data []byte) []byte {
	var out []byte
	inString := false
	inLineComment := false
	inBlockComment := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
				out = append(out, c)
			}
			continue
		}
		if inBlockComment {
			if c == '*' && i+1 < len(data) && data[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				out = append(out, data[i+1])
				i++
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			inLineComment = true
			i++
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			inBlockComment = true
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}
