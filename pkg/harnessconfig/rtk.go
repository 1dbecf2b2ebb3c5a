package harnessconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

// rtkKnownPrefixes lists the command base names the RTK hook recognises
// and rewrites through the rtk wrapper binary.
var rtkKnownPrefixes = []string{
	"ls", "git", "rg", "cargo", "npm", "docker", "kubectl", "pytest",
	"grep", "find", "cat", "go", "yarn", "pnpm", "python", "python3",
}

const rtkHookScript = `#!/usr/bin/env bash
set -euo pipefail

input=$(cat)
command=$(echo "$input" | sed -n 's/.*"command"[[:space:]]*:[[:space:]]*"\([^"]*\)".*/\1/p')

if [ -z "$command" ]; then
	echo "$input"
	exit 0
fi

case "$command" in
	*'|'*|*'` + "`" + `'*|*'$('*|*';'*)
		echo "$input"
		exit 0
		;;
esac

base=$(echo "$command" | awk '{print $1}' | xargs -I{} basename {})
rest=$(echo "$command" | cut -d' ' -f2-)

case "$base" in
` + rtkCaseBody() + `	*)
		echo "$input"
		exit 0
		;;
esac

rewritten="rtk $base -- $rest"
printf '{"decision":"approve","tool_input":{"command":"%s"}}\n' "$rewritten"
`

func rtkCaseBody() string {
	out := ""
	for _, p := range rtkKnownPrefixes {
		out += fmt.Sprintf("\t%s)\n\t\t;;\n", p)
	}
	return out
}

// writeRTKHook writes the rtk-wrap.sh hook script and wires it into
// .claude/settings.local.json's PreToolUse hook list. For container
// workspaces, the rtk binary is copied into the rootfs and the hook path
// in settings.local.json is translated to its container-relative form.
func writeRTKHook(m MissionContext, hostRTKBinary string) (map[string]interface{}, error) {
	hooksDir := filepath.Join(m.MissionDir, ".claude", "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create hooks dir: %w", err)
	}

	scriptPath := filepath.Join(hooksDir, "rtk-wrap.sh")
	if err := os.WriteFile(scriptPath, []byte(rtkHookScript), 0o755); err != nil {
		return nil, fmt.Errorf("write rtk hook script: %w", err)
	}

	if m.IsContainer && hostRTKBinary != "" {
		dest := filepath.Join(m.ContainerPath, "usr", "local", "bin", "rtk")
		if err := copyExecutable(hostRTKBinary, dest); err != nil {
			return nil, fmt.Errorf("copy rtk binary into container: %w", err)
		}
	}

	hookCommand := scriptPath
	if m.IsContainer {
		hookCommand = containerRelative(m, scriptPath)
	}

	settings := map[string]interface{}{
		"hooks": map[string]interface{}{
			"PreToolUse": []map[string]interface{}{
				{
					"matcher": "Bash",
					"hooks": []map[string]interface{}{
						{"type": "command", "command": hookCommand},
					},
				},
			},
		},
	}
	return settings, nil
}

func copyExecutable(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o755)
}
