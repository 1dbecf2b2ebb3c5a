package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/pkg/mcpregistry"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage Model Context Protocol servers",
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE:  runMCPList,
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPAdd,
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPRemove,
}

var mcpEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPEnable,
}

var mcpDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPDisable,
}

var mcpRefreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Reconnect and re-discover tools for an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPRefresh,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools across all connected MCP servers",
	RunE:  runMCPTools,
}

func openRegistry() *mcpregistry.Registry {
	return mcpregistry.New(cfg.WorkingDir)
}

func parseMCPID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid server id: %w", err)
	}
	return id, nil
}

func runMCPList(cmd *cobra.Command, args []string) error {
	reg := openRegistry()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tENABLED\tTRANSPORT")
	for _, s := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.Config.ID, s.Config.Name, s.Status, s.Config.Enabled, s.Config.Transport.Kind)
	}
	return nil
}

func runMCPAdd(cmd *cobra.Command, args []string) error {
	command, _ := cmd.Flags().GetString("command")
	cmdArgs, _ := cmd.Flags().GetStringSlice("args")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	defaultEnabled, _ := cmd.Flags().GetBool("default-enabled")

	var transport mcpregistry.Transport
	switch {
	case command != "":
		transport = mcpregistry.Transport{Kind: mcpregistry.TransportStdio, Command: command, Args: cmdArgs}
	case endpoint != "":
		transport = mcpregistry.Transport{Kind: mcpregistry.TransportHTTP, Endpoint: endpoint}
	default:
		return fmt.Errorf("one of --command or --endpoint is required")
	}

	reg := openRegistry()
	state, err := reg.Add(mcpregistry.AddRequest{
		Name:           args[0],
		Transport:      transport,
		DefaultEnabled: &defaultEnabled,
	})
	if err != nil {
		return fmt.Errorf("add mcp server: %w", err)
	}
	fmt.Println(state.Config.ID)
	return nil
}

func runMCPRemove(cmd *cobra.Command, args []string) error {
	id, err := parseMCPID(args[0])
	if err != nil {
		return err
	}
	return openRegistry().Remove(id)
}

func runMCPEnable(cmd *cobra.Command, args []string) error {
	id, err := parseMCPID(args[0])
	if err != nil {
		return err
	}
	_, err = openRegistry().Enable(id)
	return err
}

func runMCPDisable(cmd *cobra.Command, args []string) error {
	id, err := parseMCPID(args[0])
	if err != nil {
		return err
	}
	_, err = openRegistry().Disable(id)
	return err
}

func runMCPRefresh(cmd *cobra.Command, args []string) error {
	id, err := parseMCPID(args[0])
	if err != nil {
		return err
	}
	state, err := openRegistry().Refresh(context.Background(), id)
	if err != nil {
		return fmt.Errorf("refresh mcp server: %w", err)
	}
	fmt.Printf("%s: %s (%d tools)\n", state.Config.Name, state.Status, len(state.Config.ToolDescriptors))
	return nil
}

func runMCPTools(cmd *cobra.Command, args []string) error {
	reg := openRegistry()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "NAME\tENABLED\tDESCRIPTION")
	for _, t := range reg.ListTools() {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", t.Name, reg.IsToolEnabled(t.Name), t.Description)
	}
	return nil
}
