package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatterYAML(t *testing.T) {
	doc := "---\nname: demo\ndescription: does a thing\n---\nbody text\n"
	parsed := parseFrontmatter(doc)
	assert.Equal(t, "demo", stringField(parsed.Fields, "name"))
	assert.Equal(t, "does a thing", stringField(parsed.Fields, "description"))
	assert.Equal(t, "body text\n", parsed.Body)
}

func TestParseFrontmatterCRLFNormalizedForParseOnly(t *testing.T) {
	doc := "---\r\nname: demo\r\n---\r\nbody line1\r\nbody line2\r\n"
	parsed := parseFrontmatter(doc)
	assert.Equal(t, "demo", stringField(parsed.Fields, "name"))
	// the body retains its original CRLF bytes
	assert.Contains(t, parsed.Body, "\r\n")
}

func TestParseFrontmatterLineScannerFallback(t *testing.T) {
	// unbalanced quote makes this invalid YAML, forcing the fallback path
	doc := "---\nname: demo\ndescription: \"unterminated\n---\nbody\n"
	parsed := parseFrontmatter(doc)
	assert.Equal(t, "demo", stringField(parsed.Fields, "name"))
}

func TestParseLineScannerBlockScalar(t *testing.T) {
	block := "name: demo\ninstructions: |-\n  line one\n  line two\n"
	fields := parseLineScanner(block)
	assert.Equal(t, "demo", fields["name"])
	assert.Equal(t, "line one\nline two", fields["instructions"])
}

func TestParseLineScannerFoldedBlockScalar(t *testing.T) {
	block := "summary: >-\n  line one\n  line two\n"
	fields := parseLineScanner(block)
	assert.Equal(t, "line one line two", fields["summary"])
}

func TestParseFrontmatterNoFrontmatter(t *testing.T) {
	parsed := parseFrontmatter("just a body, no frontmatter")
	assert.Empty(t, parsed.Fields)
	assert.Equal(t, "just a body, no frontmatter", parsed.Body)
}

func TestStorePutGetSkill(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	err = s.Put(Entity{
		Kind:        KindSkill,
		Name:        "reviewer",
		Description: "reviews code",
		Body:        "do the review",
		Files:       map[string][]byte{"reference.md": []byte("extra context")},
	})
	require.NoError(t, err)

	got, err := s.Get(KindSkill, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, "reviews code", got.Description)
	assert.Contains(t, got.Body, "do the review")
	assert.Equal(t, []byte("extra context"), got.Files["reference.md"])

	assert.FileExists(t, filepath.Join(dir, ".openagent", "library", "skills", "reviewer", "SKILL.md"))
}

func TestStorePutGetCommand(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindCommand, Name: "deploy", Body: "run the deploy"}))

	got, err := s.Get(KindCommand, "deploy")
	require.NoError(t, err)
	assert.Contains(t, got.Body, "run the deploy")
}

func TestStoreListSortsByName(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindRule, Name: "zzz", Body: "z"}))
	require.NoError(t, s.Put(Entity{Kind: KindRule, Name: "aaa", Body: "a"}))

	list, err := s.List(KindRule)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "aaa", list[0].Name)
	assert.Equal(t, "zzz", list[1].Name)
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindAgent, Name: "builder", Body: "builds"}))
	require.NoError(t, s.Delete(KindAgent, "builder"))

	_, err = s.Get(KindAgent, "builder")
	assert.Error(t, err)
}

func TestStoreRenameDryRunLeavesDiskUntouched(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindCommand, Name: "old", Body: "body"}))

	report, err := s.Rename(KindCommand, "old", "new", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join("commands", "old.md"),
		filepath.Join("commands", "new.md"),
	}, report.ChangedFiles)

	_, err = s.Get(KindCommand, "old")
	assert.NoError(t, err)
	_, err = s.Get(KindCommand, "new")
	assert.Error(t, err)
}

func TestStoreRenameAppliesAndUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindCommand, Name: "old", Body: "body"}))

	_, err = s.Rename(KindCommand, "old", "new", false)
	require.NoError(t, err)

	_, err = s.Get(KindCommand, "old")
	assert.Error(t, err)

	got, err := s.Get(KindCommand, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Frontmatter["name"])
}

func TestStoreRenameRejectsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(Entity{Kind: KindCommand, Name: "a", Body: "a"}))
	require.NoError(t, s.Put(Entity{Kind: KindCommand, Name: "b", Body: "b"}))

	_, err = s.Rename(KindCommand, "a", "b", false)
	assert.Error(t, err)
}

func TestOpenInitializesGitRepo(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), dir)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, ".openagent", "library", ".git"))
}

func TestReindexPicksUpFilesWrittenOutOfBand(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	rulesDir := filepath.Join(s.Root(), "rules")
	require.NoError(t, os.MkdirAll(rulesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "external.md"), []byte("---\nname: external\n---\nbody"), 0o644))

	s2, err := Open(context.Background(), dir)
	require.NoError(t, err)
	got, err := s2.Get(KindRule, "external")
	require.NoError(t, err)
	assert.Contains(t, got.Body, "body")
}
