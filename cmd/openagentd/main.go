// Command openagentd is the agent orchestration host: workspace and MCP
// registry management, library CRUD, harness config synthesis, and the PTY
// session WebSocket server, all bound together behind a single Cobra CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/internal/config"
	"github.com/sandboxed-sh/openagent/internal/logging"
	"github.com/sandboxed-sh/openagent/pkg/container"
	"github.com/sandboxed-sh/openagent/pkg/crypto"
)

var (
	cfg      *config.Config
	keyring  *crypto.Provider
	debugVal bool

	rootCmd = &cobra.Command{
		Use:   "openagentd",
		Short: "Agent orchestration host",
		Long:  "openagentd manages workspaces, MCP servers, the git-backed library, and harness config synthesis for sandboxed coding agents.",
	}
)

func init() {
	cobra.OnInitialize(initConfig, initLogging, initCrypto)

	rootCmd.PersistentFlags().BoolVar(&debugVal, "debug", false, "enable debug logging")

	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(missionCmd)
	rootCmd.AddCommand(serveCmd)

	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceAddCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	workspaceCmd.AddCommand(workspaceEnvSetCmd)
	workspaceCmd.AddCommand(workspaceBuildCmd)

	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpAddCmd)
	mcpCmd.AddCommand(mcpRemoveCmd)
	mcpCmd.AddCommand(mcpEnableCmd)
	mcpCmd.AddCommand(mcpDisableCmd)
	mcpCmd.AddCommand(mcpRefreshCmd)
	mcpCmd.AddCommand(mcpToolsCmd)

	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryShowCmd)
	libraryCmd.AddCommand(libraryRemoveCmd)
	libraryCmd.AddCommand(libraryRenameCmd)
	libraryCmd.AddCommand(libraryImportCmd)
	libraryCmd.AddCommand(libraryStatusCmd)
	libraryCmd.AddCommand(librarySyncCmd)
	libraryCmd.AddCommand(libraryCommitCmd)
	libraryCmd.AddCommand(libraryPushCmd)

	missionCmd.AddCommand(missionSynthCmd)

	workspaceAddCmd.Flags().Bool("container", false, "register a container workspace instead of a host one")
	workspaceAddCmd.Flags().String("distro", string(container.DefaultDistro), "container rootfs distro (with --container)")

	workspaceEnvSetCmd.Flags().Bool("secret", false, "encrypt the value at rest using the workspace key")

	mcpAddCmd.Flags().String("command", "", "stdio command to launch the server")
	mcpAddCmd.Flags().StringSlice("args", nil, "stdio command arguments")
	mcpAddCmd.Flags().String("endpoint", "", "streamable-HTTP endpoint (alternative to --command)")
	mcpAddCmd.Flags().Bool("default-enabled", false, "enable this server by default for new workspaces")

	libraryImportCmd.Flags().String("ref", "", "branch or tag to clone")
	libraryImportCmd.Flags().String("subpath", "", "subdirectory within the repo holding SKILL.md")
	libraryImportCmd.Flags().String("as", "", "name to store the skill under in the library")

	libraryRenameCmd.Flags().Bool("dry-run", false, "report what would change without renaming")

	libraryCommitCmd.Flags().String("message", "", "commit message")
	libraryCommitCmd.Flags().String("author-name", "", "commit author name")
	libraryCommitCmd.Flags().String("author-email", "", "commit author email")

	serveCmd.Flags().String("addr", ":8787", "address to bind the PTY WebSocket server on")
}

func initConfig() {
	cfg = config.Load()
}

func initLogging() {
	logging.Initialize(logging.Config{
		LogDir: cfg.StateDir(),
		Debug:  debugVal || cfg.Debug,
	})
}

func initCrypto() {
	p, err := crypto.EnsurePrivateKey(cfg.PrivateKey, cfg.PrivateKeyFile, cfg.WorkingDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "openagentd: failed to initialize encryption key: %v\n", err)
		os.Exit(1)
	}
	keyring = p
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
