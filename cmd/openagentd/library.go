package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/pkg/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the git-backed skill and prompt library",
}

var libraryListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List entities of a kind (skill, command, agent, rule, workspace-template, mcp-definition, plugin, init-script)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryList,
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <kind> <name>",
	Short: "Print an entity's rendered document",
	Args:  cobra.ExactArgs(2),
	RunE:  runLibraryShow,
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "rm <kind> <name>",
	Short: "Delete an entity",
	Args:  cobra.ExactArgs(2),
	RunE:  runLibraryRemove,
}

var libraryRenameCmd = &cobra.Command{
	Use:   "rename <kind> <old-name> <new-name>",
	Short: "Rename an entity, optionally as a dry run",
	Args:  cobra.ExactArgs(3),
	RunE:  runLibraryRename,
}

var libraryImportCmd = &cobra.Command{
	Use:   "import <repo-url>",
	Short: "Import a skill from a remote git repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryImport,
}

var libraryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the library's git status",
	RunE:  runLibraryStatus,
}

var librarySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull and fetch the library's remote",
	RunE:  runLibrarySync,
}

var libraryCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit pending library changes",
	RunE:  runLibraryCommit,
}

var libraryPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the library's commits to its remote",
	RunE:  runLibraryPush,
}

func openLibrary(ctx context.Context) (*library.Store, error) {
	return library.Open(ctx, cfg.WorkingDir)
}

func parseKind(raw string) (library.Kind, error) {
	for _, k := range []library.Kind{
		library.KindSkill, library.KindCommand, library.KindAgent, library.KindRule,
		library.KindWorkspaceTemplate, library.KindMCPDefinition, library.KindPlugin, library.KindInitScript,
	} {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", raw)
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	entities, err := store.List(kind)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tSOURCE")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Description, e.Source)
	}
	return nil
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	e, err := store.Get(kind, args[1])
	if err != nil {
		return err
	}
	fmt.Println(e.Body)
	return nil
}

func runLibraryRemove(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	return store.Delete(kind, args[1])
}

func runLibraryRename(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	report, err := store.Rename(kind, args[1], args[2], dryRun)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", report.OldName, report.NewName)
	for _, f := range report.ChangedFiles {
		fmt.Println(" ", f)
	}
	return nil
}

func runLibraryImport(cmd *cobra.Command, args []string) error {
	ref, _ := cmd.Flags().GetString("ref")
	subpath, _ := cmd.Flags().GetString("subpath")
	asName, _ := cmd.Flags().GetString("as")

	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	e, err := library.ImportSkill(cmd.Context(), store, library.ImportRequest{
		RepoURL: args[0], Ref: ref, Subpath: subpath, AsName: asName,
	})
	if err != nil {
		return fmt.Errorf("import skill: %w", err)
	}
	fmt.Printf("imported %s (%s)\n", e.Name, e.Source)
	return nil
}

func runLibraryStatus(cmd *cobra.Command, args []string) error {
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	st, err := store.Status(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("branch: %s (ahead %d, behind %d)\n", st.Branch, st.Ahead, st.Behind)
	printFileList(os.Stdout, "staged", st.Staged)
	printFileList(os.Stdout, "modified", st.Modified)
	printFileList(os.Stdout, "untracked", st.Untracked)
	return nil
}

func printFileList(w io.Writer, label string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func runLibrarySync(cmd *cobra.Command, args []string) error {
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	res, err := store.Sync(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("pulled=%t fast-forward=%t\n", res.Pulled, res.FastForward)
	return nil
}

func runLibraryCommit(cmd *cobra.Command, args []string) error {
	message, _ := cmd.Flags().GetString("message")
	authorName, _ := cmd.Flags().GetString("author-name")
	authorEmail, _ := cmd.Flags().GetString("author-email")
	if message == "" {
		return fmt.Errorf("--message is required")
	}

	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	sha, err := store.Commit(cmd.Context(), message, authorName, authorEmail)
	if err != nil {
		return err
	}
	fmt.Println(sha)
	return nil
}

func runLibraryPush(cmd *cobra.Command, args []string) error {
	store, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	return store.Push(cmd.Context())
}
