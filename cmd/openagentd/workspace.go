package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/pkg/container"
	"github.com/sandboxed-sh/openagent/pkg/crypto"
	"github.com/sandboxed-sh/openagent/pkg/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage execution environments",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a new workspace (host, or container with --container)",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceAdd,
}

var workspaceBuildCmd = &cobra.Command{
	Use:   "build <id>",
	Short: "Build (or rebuild) a container workspace's rootfs",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceBuild,
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceRemove,
}

var workspaceEnvSetCmd = &cobra.Command{
	Use:   "env-set <id> <key> <value>",
	Short: "Set a workspace environment variable, encrypting it at rest if --secret is given",
	Args:  cobra.ExactArgs(3),
	RunE:  runWorkspaceEnvSet,
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tSTATUS\tPATH")
	for _, w := range store.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.ID, w.Name, w.Kind, w.Status, w.Path)
	}
	return nil
}

func runWorkspaceAdd(cmd *cobra.Command, args []string) error {
	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	if err := workspace.ValidateName(args[0]); err != nil {
		return err
	}

	isContainer, _ := cmd.Flags().GetBool("container")
	distroFlag, _ := cmd.Flags().GetString("distro")

	w := &workspace.Workspace{
		ID:   uuid.New(),
		Name: args[0],
		Path: args[1],
	}
	if isContainer {
		distro, ok := container.ParseDistro(distroFlag)
		if !ok {
			distro = container.DefaultDistro
		}
		w.Kind = workspace.KindContainer
		w.Status = workspace.StatusPending
		w.Distro = string(distro)
	} else {
		w.Kind = workspace.KindHost
		w.Status = workspace.StatusReady
	}

	id, err := store.Add(w)
	if err != nil {
		return fmt.Errorf("add workspace: %w", err)
	}
	fmt.Println(id)
	return nil
}

func runWorkspaceRemove(cmd *cobra.Command, args []string) error {
	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}
	if !store.Delete(id) {
		return fmt.Errorf("workspace not found or cannot be removed: %s", args[0])
	}
	return nil
}

func runWorkspaceBuild(cmd *cobra.Command, args []string) error {
	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}
	w, ok := store.Get(id)
	if !ok {
		return fmt.Errorf("workspace not found: %s", args[0])
	}
	if w.Kind != workspace.KindContainer {
		return fmt.Errorf("workspace %s is not a container workspace", w.Name)
	}

	distro, ok := container.ParseDistro(w.Distro)
	if !ok {
		distro = container.DefaultDistro
	}

	w.Status = workspace.StatusBuilding
	w.Error = ""
	store.Update(w)

	adapter := container.NewNspawnAdapter(cfg.WorkingDir, cfg.AllowContainerFallback)
	if err := adapter.Create(cmd.Context(), w.Path, distro, container.DefaultConfig()); err != nil {
		w.Status = workspace.StatusError
		w.Error = err.Error()
		store.Update(w)
		return fmt.Errorf("build workspace rootfs: %w", err)
	}

	w.Status = workspace.StatusReady
	store.Update(w)
	fmt.Println(w.Status)
	return nil
}

func runWorkspaceEnvSet(cmd *cobra.Command, args []string) error {
	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}
	w, ok := store.Get(id)
	if !ok {
		return fmt.Errorf("workspace not found: %s", args[0])
	}

	secret, _ := cmd.Flags().GetBool("secret")
	value := args[2]
	if secret {
		value, err = crypto.EncryptValue(keyring.Key(), value)
		if err != nil {
			return fmt.Errorf("encrypt value: %w", err)
		}
	}

	if w.Env == nil {
		w.Env = make(map[string]string)
	}
	w.Env[args[1]] = value
	if !store.Update(w) {
		return fmt.Errorf("workspace disappeared during update: %s", args[0])
	}
	return nil
}
