package mcpregistry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	connectTimeout = 10 * time.Second
	callTimeout    = 600 * time.Second
)

func clientInfo() mcp.Implementation {
	return mcp.Implementation{Name: "openagent", Version: "1.0.0"}
}

// dialStdio spawns the server's command and brings up a long-lived MCP
// client over its stdin/stdout. Callers are responsible for closing the
// returned client when the server is refreshed or removed.
func dialStdio(ctx context.Context, t Transport) (*client.Client, error) {
	envSlice := make([]string, 0, len(t.Env))
	for k, v := range t.Env {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, v))
	}

	stdioTransport := transport.NewStdio(t.Command, envSlice, t.Args...)
	c := client.NewClient(stdioTransport)

	startCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.Start(startCtx); err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}

	if err := initializeClient(startCtx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// dialHTTP opens a short-lived streamable-HTTP client (JSON-RPC over POST)
// for a single request-response cycle against an HTTP MCP server.
func dialHTTP(ctx context.Context, t Transport) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	if len(t.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(t.Headers))
	}

	httpTransport, err := transport.NewStreamableHTTP(t.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("create http transport: %w", err)
	}

	c := client.NewClient(httpTransport)

	startCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.Start(startCtx); err != nil {
		return nil, fmt.Errorf("start http client: %w", err)
	}

	if err := initializeClient(startCtx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func initializeClient(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = clientInfo()
	req.Params.Capabilities = mcp.ClientCapabilities{}

	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize mcp session: %w", err)
	}
	return nil
}

func listTools(ctx context.Context, c *client.Client) ([]ToolDescriptor, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := c.ListTools(callCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, "", fmt.Errorf("list tools: %w", err)
	}

	descriptors := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return descriptors, "", nil
}

func callTool(ctx context.Context, c *client.Client, toolName string, arguments map[string]interface{}) (string, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	result, err := c.CallTool(callCtx, req)
	if err != nil {
		return "", false, fmt.Errorf("call tool %s: %w", toolName, err)
	}

	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), result.IsError, nil
}

// commandExists reports whether command resolves to an executable, either
// directly (absolute path or containing a separator) or via PATH lookup.
func commandExists(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	if filepath.IsAbs(command) || strings.ContainsRune(command, os.PathSeparator) {
		_, err := os.Stat(command)
		return err == nil
	}
	_, err := exec.LookPath(command)
	return err == nil
}
