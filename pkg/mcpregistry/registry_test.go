package mcpregistry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMCPPrefix(t *testing.T) {
	assert.Equal(t, "filesystem", sanitizeMCPPrefix("filesystem"))
	assert.Equal(t, "my_server", sanitizeMCPPrefix("My-Server"))
	assert.Equal(t, "weird123", sanitizeMCPPrefix("Weird! 123#"))
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "read_file", StripPrefix("filesystem_read_file"))
	assert.Equal(t, "noop", StripPrefix("noop"))
}

func TestNewRegistrySeedsDefaults(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	names := make(map[string]bool)
	for _, s := range r.List() {
		names[s.Config.Name] = true
	}
	assert.True(t, names["workspace"])
	assert.True(t, names["desktop"])
	assert.True(t, names["playwright"])
}

func TestEnsureDefaultsDedupesKeepingFirst(t *testing.T) {
	dir := t.TempDir()
	store := newConfigStore(dir)

	first := NewStdioConfig("custom", "cmd-a", nil, nil)
	second := NewStdioConfig("custom", "cmd-b", nil, nil)
	store.add(first)
	store.add(second)

	configs := ensureDefaults(store, store.list(), dir)

	count := 0
	var survivor ServerConfig
	for _, c := range configs {
		if c.Name == "custom" {
			count++
			survivor = c
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "cmd-a", survivor.Transport.Command)
}

func TestPlaywrightDefaultGetsRequiredFlags(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	for _, s := range r.List() {
		if s.Config.Name == "playwright" {
			assert.Contains(t, s.Config.Transport.Args, "--headless")
			assert.Contains(t, s.Config.Transport.Args, "--isolated")
			assert.Contains(t, s.Config.Transport.Args, "--no-sandbox")
			assert.Equal(t, ScopeWorkspace, s.Config.Scope)
		}
	}
}

func TestAddEnableDisableRemove(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	state, err := r.Add(AddRequest{
		Name: "echo-server",
		Transport: Transport{
			Kind:    TransportStdio,
			Command: "echo-mcp",
		},
	})
	require.NoError(t, err)
	id := state.Config.ID
	assert.Equal(t, StatusDisconnected, state.Status)

	disabled, err := r.Disable(id)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, disabled.Status)

	enabled, err := r.Enable(id)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, enabled.Status)

	require.NoError(t, r.Remove(id))
	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestUpdatePartialFields(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	state, err := r.Add(AddRequest{
		Name:      "partial",
		Transport: Transport{Kind: TransportStdio, Command: "partial-mcp"},
	})
	require.NoError(t, err)

	newDesc := "updated description"
	updated, err := r.Update(state.Config.ID, UpdateRequest{Description: &newDesc})
	require.NoError(t, err)
	assert.Equal(t, "updated description", updated.Config.Description)
	assert.Equal(t, "partial-mcp", updated.Config.Transport.Command)
}

func TestListToolsPrefixesAndRespectsDisabled(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	id := uuid.New()
	r.mu.Lock()
	r.states[id] = ServerState{
		Config: ServerConfig{
			ID:      id,
			Name:    "filesystem",
			Enabled: true,
			ToolDescriptors: []ToolDescriptor{
				{Name: "read_file", Description: "reads a file"},
				{Name: "write_file", Description: "writes a file"},
			},
		},
		Status: StatusConnected,
	}
	r.mu.Unlock()

	tools := r.ListTools()
	require.Len(t, tools, 2)
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		assert.True(t, tool.Enabled)
	}
	assert.True(t, names["filesystem_read_file"])
	assert.True(t, names["filesystem_write_file"])

	r.DisableTool("filesystem_read_file")
	found, ok := r.FindTool("filesystem_read_file")
	assert.False(t, ok)
	assert.Empty(t, found.Name)

	r.EnableTool("filesystem_read_file")
	_, ok = r.FindTool("filesystem_read_file")
	assert.True(t, ok)
}

func TestCallToolRejectsDisconnectedServer(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	id := uuid.New()
	r.mu.Lock()
	r.states[id] = ServerState{
		Config: ServerConfig{ID: id, Name: "offline", Enabled: true},
		Status: StatusDisconnected,
	}
	r.mu.Unlock()

	_, err := r.CallTool(nil, id, "anything", nil) //nolint:staticcheck
	assert.Error(t, err)
}
