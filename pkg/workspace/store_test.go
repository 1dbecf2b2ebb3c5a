package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWorkspaceName(t *testing.T) {
	assert.Error(t, ValidateName("../etc"))
	assert.Error(t, ValidateName("name/sub"))
	assert.Error(t, ValidateName(".hidden"))
	assert.Error(t, ValidateName(""))
	assert.NoError(t, ValidateName("my-workspace_1"))
}

func TestResolvePathRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "..", "etc"), 0o755))

	_, err := ResolvePath(base, "../etc")
	assert.Error(t, err)

	_, err = ResolvePath(base, "a/../../etc/passwd")
	assert.Error(t, err)

	_, err = ResolvePath(base, "literal/../../etc")
	assert.Error(t, err)
}

func TestResolvePathAcceptsWithinRoot(t *testing.T) {
	base := t.TempDir()
	resolved, err := ResolvePath(base, "not-yet-existing/file.txt")
	require.NoError(t, err)
	assert.Contains(t, resolved, base)
}

func TestNewStoreCreatesDefaultWorkspace(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	def := store.GetDefault()
	require.NotNil(t, def)
	assert.Equal(t, DefaultWorkspaceID, def.ID)
	assert.Equal(t, KindHost, def.Kind)
	assert.Empty(t, def.Skills)
}

func TestStoreAddGetUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	w := &Workspace{Name: "my-workspace", Kind: KindHost, Path: filepath.Join(dir, "ws1")}
	id, err := store.Add(w)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "my-workspace", got.Name)

	got.Status = StatusReady
	assert.True(t, store.Update(got))

	updated, _ := store.Get(id)
	assert.Equal(t, StatusReady, updated.Status)

	assert.True(t, store.Delete(id))
	_, ok = store.Get(id)
	assert.False(t, ok)
}

func TestStoreCannotDeleteDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.False(t, store.Delete(DefaultWorkspaceID))
}

func TestStoreRoundTripIsByteStableAfterReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Add(&Workspace{Name: "round-trip", Kind: KindHost, Path: filepath.Join(dir, "rt")})
	require.NoError(t, err)

	data1, err := os.ReadFile(filepath.Join(dir, ".sandboxed-sh", "workspaces.json"))
	require.NoError(t, err)

	var list1 []*Workspace
	require.NoError(t, json.Unmarshal(data1, &list1))

	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	data2, err := os.ReadFile(filepath.Join(dir, ".sandboxed-sh", "workspaces.json"))
	require.NoError(t, err)

	var list2 []*Workspace
	require.NoError(t, json.Unmarshal(data2, &list2))
	assert.Equal(t, len(list1), len(list2))
	assert.Equal(t, string(data1), string(data2))

	_ = reloaded
}

func TestStoreAdoptsOrphanContainer(t *testing.T) {
	dir := t.TempDir()
	orphanPath := filepath.Join(dir, ".sandboxed-sh", "containers", "orphan1")
	require.NoError(t, os.MkdirAll(filepath.Join(orphanPath, "etc"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(orphanPath, "bin"), 0o755))

	store, err := NewStore(dir)
	require.NoError(t, err)

	found := false
	for _, w := range store.List() {
		if w.Path == orphanPath {
			found = true
			assert.Equal(t, StatusReady, w.Status)
			assert.Equal(t, KindContainer, w.Kind)
		}
	}
	assert.True(t, found)
}

func TestStoreCorruptedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".sandboxed-sh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sandboxed-sh", "workspaces.json"), []byte("not json"), 0o644))

	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.NotNil(t, store.GetDefault())
}
