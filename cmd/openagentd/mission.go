package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/pkg/harnessconfig"
	"github.com/sandboxed-sh/openagent/pkg/library"
	"github.com/sandboxed-sh/openagent/pkg/mcpregistry"
	"github.com/sandboxed-sh/openagent/pkg/workspace"
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Synthesise harness config for a workspace",
}

var missionSynthCmd = &cobra.Command{
	Use:   "synth <workspace-id> <mission-id> <harness>",
	Short: "Write mission config for opencode, claude-code, or codex",
	Long:  "Gathers the workspace's MCP servers and library skills/commands/agents and writes a ready-to-run mission directory for the named harness.",
	Args:  cobra.ExactArgs(3),
	RunE:  runMissionSynth,
}

func runMissionSynth(cmd *cobra.Command, args []string) error {
	wsID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}
	missionID := args[1]
	harness := harnessconfig.Harness(args[2])
	switch harness {
	case harnessconfig.HarnessOpenCode, harnessconfig.HarnessClaudeCode, harnessconfig.HarnessCodex:
	default:
		return fmt.Errorf("unknown harness %q: want opencode, claude-code, or codex", args[2])
	}

	wsStore, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	ws, ok := wsStore.Get(wsID)
	if !ok {
		return fmt.Errorf("workspace not found: %s", args[0])
	}

	reg := mcpregistry.New(cfg.WorkingDir)
	servers := mcpServerInputs(reg.List())

	libStore, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	skills, err := librarySkillInputs(libStore)
	if err != nil {
		return err
	}
	commands, err := libraryCommandInputs(libStore)
	if err != nil {
		return err
	}
	agents, err := libraryAgentInputs(libStore)
	if err != nil {
		return err
	}

	mission := harnessconfig.MissionContext{
		WorkspaceID:        ws.ID.String(),
		WorkspaceName:      ws.Name,
		WorkspaceType:      string(ws.Kind),
		WorkspaceRoot:      ws.Path,
		MissionID:          missionID,
		MissionDir:         filepath.Join(cfg.WorkingDir, "missions", missionID),
		ContextRoot:        cfg.DefaultContextRoot(),
		ContextDirName:     cfg.ContextDirName,
		WorkingDir:         cfg.WorkingDir,
		IsContainer:        ws.Kind == workspace.KindContainer,
		ContainerPath:      ws.Path,
		IsDefaultHost:      ws.IsDefault(),
		RTKEnabled:         cfg.RTKEnabled,
		OpencodePermissive: cfg.OpencodePermissive,
	}

	result, err := harnessconfig.Synthesize(harnessconfig.SynthInput{
		Mission:        mission,
		Harness:        harness,
		Servers:        servers,
		MCPAllowList:   ws.MCPNames,
		Skills:         skills,
		Commands:       commands,
		Agents:         agents,
		SkillAllowList: ws.Skills,
	})
	if err != nil {
		return fmt.Errorf("synthesize mission config: %w", err)
	}

	fmt.Printf("wrote %d mcp servers, %d skills, %d commands, %d agents\n",
		result.MCPServersWritten, result.SkillsWritten, result.CommandsWritten, result.AgentsWritten)
	for _, f := range result.ConfigFiles {
		fmt.Println(" ", f)
	}
	return nil
}

func mcpServerInputs(states []mcpregistry.ServerState) []harnessconfig.MCPServerInput {
	inputs := make([]harnessconfig.MCPServerInput, 0, len(states))
	for _, s := range states {
		t := s.Config.Transport
		inputs = append(inputs, harnessconfig.MCPServerInput{
			Name:           s.Config.Name,
			Command:        t.Command,
			Args:           t.Args,
			Env:            t.Env,
			Endpoint:       t.Endpoint,
			Headers:        t.Headers,
			IsHTTP:         t.Kind == mcpregistry.TransportHTTP,
			Enabled:        s.Config.Enabled,
			DefaultEnabled: s.Config.DefaultEnabled,
		})
	}
	return inputs
}

func librarySkillInputs(store *library.Store) ([]harnessconfig.Skill, error) {
	entities, err := store.List(library.KindSkill)
	if err != nil {
		return nil, err
	}
	skills := make([]harnessconfig.Skill, 0, len(entities))
	for _, e := range entities {
		files := make(map[string]string, len(e.Files))
		for path, content := range e.Files {
			files[path] = string(content)
		}
		skills = append(skills, harnessconfig.Skill{
			Name: e.Name, Description: e.Description, Body: e.Body, Files: files,
		})
	}
	return skills, nil
}

func libraryCommandInputs(store *library.Store) ([]harnessconfig.Command, error) {
	entities, err := store.List(library.KindCommand)
	if err != nil {
		return nil, err
	}
	commands := make([]harnessconfig.Command, 0, len(entities))
	for _, e := range entities {
		commands = append(commands, harnessconfig.Command{Name: e.Name, Body: e.Body})
	}
	return commands, nil
}

func libraryAgentInputs(store *library.Store) ([]harnessconfig.Agent, error) {
	entities, err := store.List(library.KindAgent)
	if err != nil {
		return nil, err
	}
	agents := make([]harnessconfig.Agent, 0, len(entities))
	for _, e := range entities {
		agents = append(agents, harnessconfig.Agent{Name: e.Name, Body: e.Body})
	}
	return agents, nil
}
