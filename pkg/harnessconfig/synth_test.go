package harnessconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMission(t *testing.T, container bool) MissionContext {
	dir := t.TempDir()
	m := MissionContext{
		WorkspaceID:    "ws-1",
		WorkspaceName:  "demo",
		WorkspaceType:  "host",
		WorkspaceRoot:  dir,
		MissionID:      "m-1",
		MissionDir:     filepath.Join(dir, "mission"),
		ContextRoot:    filepath.Join(dir, "context"),
		ContextDirName: "context",
		WorkingDir:     dir,
	}
	if container {
		m.IsContainer = true
		m.WorkspaceType = "container"
		m.ContainerPath = filepath.Join(dir, "rootfs")
		require.NoError(t, os.MkdirAll(m.ContainerPath, 0o755))
	}
	require.NoError(t, os.MkdirAll(m.MissionDir, 0o755))
	return m
}

func TestResolveMCPAllowListDefaultEnabledOnly(t *testing.T) {
	servers := []MCPServerInput{
		{Name: "workspace", Enabled: true, DefaultEnabled: true},
		{Name: "custom", Enabled: true, DefaultEnabled: false},
	}
	got := resolveMCPAllowList(servers, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "workspace", got[0].Name)
}

func TestResolveMCPAllowListExplicit(t *testing.T) {
	servers := []MCPServerInput{
		{Name: "workspace", Enabled: true, DefaultEnabled: true},
		{Name: "custom", Enabled: true, DefaultEnabled: false},
	}
	got := resolveMCPAllowList(servers, []string{"custom"})
	require.Len(t, got, 1)
	assert.Equal(t, "custom", got[0].Name)
}

func TestResolveMCPAllowListExcludesDisabledServers(t *testing.T) {
	servers := []MCPServerInput{
		{Name: "workspace", Enabled: false, DefaultEnabled: true},
		{Name: "custom", Enabled: false},
	}
	assert.Empty(t, resolveMCPAllowList(servers, nil))
	assert.Empty(t, resolveMCPAllowList(servers, []string{"custom"}))
}

func TestResolveCommandHostUnchanged(t *testing.T) {
	m := testMission(t, false)
	assert.Equal(t, "workspace-mcp", resolveCommand(m, "workspace-mcp"))
}

func TestResolveCommandContainerPrefersLocalBin(t *testing.T) {
	m := testMission(t, true)
	localBin := filepath.Join(m.ContainerPath, "usr", "local", "bin")
	require.NoError(t, os.MkdirAll(localBin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localBin, "rtk"), []byte("x"), 0o755))

	assert.Equal(t, "/usr/local/bin/rtk", resolveCommand(m, "rtk"))
}

func TestContainerRelative(t *testing.T) {
	m := testMission(t, true)
	host := filepath.Join(m.ContainerPath, "root", "context", "m-1")
	assert.Equal(t, "/root/context/m-1", containerRelative(m, host))
}

func TestOpenCodeServerEntryStdio(t *testing.T) {
	m := testMission(t, false)
	entry := openCodeServerEntry(m, MCPServerInput{Name: "workspace", Command: "workspace-mcp", Args: []string{"--foo"}})
	assert.Equal(t, "local", entry["type"])
	cmd := entry["command"].([]string)
	assert.Equal(t, []string{"workspace-mcp", "--foo"}, cmd)
}

func TestClaudeCodeServerEntryHTTP(t *testing.T) {
	m := testMission(t, false)
	entry := claudeCodeServerEntry(m, MCPServerInput{Name: "remote", IsHTTP: true, Endpoint: "https://x"})
	assert.Equal(t, "https://x", entry["url"])
}

func TestNormalizeFrontmatterAddsNameAndDescription(t *testing.T) {
	out := normalizeFrontmatter("my-skill", "---\nfoo: bar\n---\nbody text")
	assert.Contains(t, out, "name: my-skill")
	assert.Contains(t, out, "description:")
	assert.Contains(t, out, "body text")
}

func TestNormalizeFrontmatterQuotesSpecialChars(t *testing.T) {
	out := normalizeFrontmatter("s", "---\nname: s\ndescription: uses: colons & stuff\n---\nbody")
	assert.Contains(t, out, `description: "uses: colons & stuff"`)
}

func TestNormalizeFrontmatterLeavesAlreadyQuoted(t *testing.T) {
	out := normalizeFrontmatter("s", "---\nname: s\ndescription: \"already: quoted\"\n---\nbody")
	assert.Contains(t, out, `description: "already: quoted"`)
}

func TestStripEncryptedTags(t *testing.T) {
	in := "token is <encrypted v=\"1\">c2VjcmV0</encrypted> end"
	out := stripEncryptedTags(in)
	assert.Equal(t, "token is c2VjcmV0 end", out)
}

func TestEffectiveSkillsDefaultHostGetsAll(t *testing.T) {
	all := []Skill{{Name: "a"}, {Name: "b"}}
	got := effectiveSkills(nil, all, true)
	assert.Len(t, got, 2)
}

func TestEffectiveSkillsNonDefaultEmptyListGetsNone(t *testing.T) {
	all := []Skill{{Name: "a"}, {Name: "b"}}
	got := effectiveSkills(nil, all, false)
	assert.Empty(t, got)
}

func TestEffectiveSkillsExplicitList(t *testing.T) {
	all := []Skill{{Name: "a"}, {Name: "b"}}
	got := effectiveSkills([]string{"b"}, all, false)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestSynthesizePermissionsContainerWidensGlobs(t *testing.T) {
	perm := synthesizePermissions(true, false, nil)
	tools := perm["tools"].(map[string]bool)
	assert.True(t, tools["workspace_*"])
	assert.True(t, tools["bash"])
}

func TestSynthesizePermissionsHostNarrowsGlobsUnlessPermissive(t *testing.T) {
	perm := synthesizePermissions(false, false, nil)
	tools := perm["tools"].(map[string]bool)
	assert.False(t, tools["workspace_*"])

	permissive := synthesizePermissions(false, true, nil)
	tools2 := permissive["tools"].(map[string]bool)
	assert.True(t, tools2["workspace_*"])
}

func TestSynthesizePermissionsSkillAllowList(t *testing.T) {
	perm := synthesizePermissions(false, false, []string{"writer"})
	skillPerm := perm["skill"].(map[string]interface{})
	assert.Equal(t, "deny", skillPerm["*"])
	assert.Equal(t, "allow", skillPerm["writer"])
}

func TestStripJSONComments(t *testing.T) {
	in := []byte(`{
  // a comment
  "a": 1, /* block */ "b": "has // not a comment"
}`)
	out := stripJSONComments(in)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, float64(1), v["a"])
	assert.Equal(t, "has // not a comment", v["b"])
}

func TestSynthesizeOpenCodeWritesConfigAndSkills(t *testing.T) {
	m := testMission(t, false)
	m.IsDefaultHost = true

	result, err := Synthesize(SynthInput{
		Mission: m,
		Harness: HarnessOpenCode,
		Servers: []MCPServerInput{{Name: "workspace", Command: "workspace-mcp", Enabled: true, DefaultEnabled: true}},
		Skills:  []Skill{{Name: "demo", Body: "---\nname: demo\ndescription: d\n---\nbody"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MCPServersWritten)
	assert.Equal(t, 1, result.SkillsWritten)

	data, err := os.ReadFile(filepath.Join(m.MissionDir, ".opencode", "opencode.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "mcp")
	assert.Contains(t, doc, "permission")

	assert.FileExists(t, filepath.Join(m.MissionDir, ".opencode", "skill", "demo", "SKILL.md"))

	link := filepath.Join(m.MissionDir, "context")
	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0)
}

func TestSynthesizeClaudeCodeWritesMCPAndCommands(t *testing.T) {
	m := testMission(t, false)

	result, err := Synthesize(SynthInput{
		Mission:  m,
		Harness:  HarnessClaudeCode,
		Servers:  []MCPServerInput{{Name: "workspace", Command: "workspace-mcp", Enabled: true, DefaultEnabled: true}},
		Commands: []Command{{Name: "deploy", Body: "do the deploy"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CommandsWritten)

	assert.FileExists(t, filepath.Join(m.MissionDir, ".claude", "mcp.json"))
	assert.FileExists(t, filepath.Join(m.MissionDir, ".claude", "commands", "deploy.md"))
}

func TestSynthesizeCodexWritesTOML(t *testing.T) {
	m := testMission(t, false)

	_, err := Synthesize(SynthInput{
		Mission: m,
		Harness: HarnessCodex,
		Servers: []MCPServerInput{{Name: "workspace", Command: "workspace-mcp", Enabled: true, DefaultEnabled: true}},
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(m.MissionDir, ".codex", "config.toml"))
}

func TestApplyOAuthCompatibilityPatch(t *testing.T) {
	m := testMission(t, false)
	doc := map[string]interface{}{
		"agent": map[string]interface{}{
			"builder": map[string]interface{}{
				"model":   "anthropic/claude-opus-4-5",
				"variant": "thinking",
			},
		},
	}
	data, _ := json.Marshal(doc)
	require.NoError(t, os.WriteFile(filepath.Join(m.MissionDir, "oh-my-opencode.json"), data, 0o644))

	require.NoError(t, applyOAuthCompatibilityPatch(m))

	out, err := os.ReadFile(filepath.Join(m.MissionDir, "oh-my-opencode.json"))
	require.NoError(t, err)
	var patched map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &patched))
	agent := patched["agent"].(map[string]interface{})["builder"].(map[string]interface{})
	assert.Equal(t, "anthropic/claude-sonnet-4-5", agent["model"])
	_, hasVariant := agent["variant"]
	assert.False(t, hasVariant)
}

func TestWriteRuntimeContextFileContainerRelative(t *testing.T) {
	m := testMission(t, true)
	require.NoError(t, writeRuntimeContextFile(m))

	data, err := os.ReadFile(filepath.Join(m.WorkingDir, ".sandboxed-sh", "runtime", "current_workspace.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, m.MissionID, doc["mission_id"])
	assert.Equal(t, "/root/context", doc["context_root"])
	assert.Equal(t, "/root/context/m-1", doc["mission_context"])
}
