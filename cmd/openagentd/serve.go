package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sandboxed-sh/openagent/internal/logging"
	"github.com/sandboxed-sh/openagent/pkg/container"
	"github.com/sandboxed-sh/openagent/pkg/crypto"
	"github.com/sandboxed-sh/openagent/pkg/ptypool"
	"github.com/sandboxed-sh/openagent/pkg/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PTY session WebSocket server",
	Long:  "Start the HTTP server exposing interactive terminal sessions over WebSocket, one per workspace.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	store, err := workspace.NewStore(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	pool := ptypool.New(ptypool.Config{})
	defer pool.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/sessions/")
		wsID, err := uuid.Parse(id)
		if err != nil {
			http.Error(w, "invalid workspace id", http.StatusBadRequest)
			return
		}
		ws, ok := store.Get(wsID)
		if !ok {
			http.Error(w, "workspace not found", http.StatusNotFound)
			return
		}

		env, err := crypto.DecryptEnvVars(keyring.Key(), ws.Env)
		if err != nil {
			http.Error(w, fmt.Sprintf("decrypt workspace env: %v", err), http.StatusInternalServerError)
			return
		}

		spec := ptypool.AttachSpec{
			Key:           ws.ID.String(),
			WorkspaceRoot: ws.Path,
			Env:           env,
		}
		if ws.Kind == workspace.KindContainer {
			if err := ensureContainerReady(cfg.WorkingDir, ws); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			spec.IsContainer = true
			spec.ContainerPath = ws.Path
			spec.MachineName = "openagent-" + ws.ID.String()[:8]
		}
		pool.ServeHTTP(w, r, spec)
	})

	logging.Info(logging.CompWorkspace, "serving PTY sessions on %s", addr)
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}

// ensureContainerReady is a safety net invoked before attaching to a
// container workspace whose rootfs was never built.
func ensureContainerReady(workingDir string, ws *workspace.Workspace) error {
	if ws.Kind != workspace.KindContainer {
		return nil
	}
	if container.HasRootfsShape(ws.Path) {
		return nil
	}
	return fmt.Errorf("container workspace %s has no rootfs at %s", ws.Name, ws.Path)
}
