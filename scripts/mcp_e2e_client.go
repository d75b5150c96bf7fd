package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

func main() {
	librarianBin := os.Getenv("LIBRARIAN_BIN")
	repoDir := os.Getenv("REPO_DIR")
	intent := os.Getenv("INTENT")
	if librarianBin == "" || repoDir == "" {
		fmt.Fprintln(os.Stderr, "LIBRARIAN_BIN and REPO_DIR are required")
		os.Exit(1)
	}
	if intent == "" {
		intent = "how does this repository work"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env := []string{}
	for _, key := range []string{"LIBRARIAN_DATA_DIR", "XDG_CONFIG_HOME", "XDG_DATA_HOME", "XDG_CACHE_HOME"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}

	stdio := transport.NewStdioWithOptions(
		librarianBin,
		env,
		[]string{"mcp", "--repo", repoDir},
		transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, command, args...)
			cmd.Dir = repoDir
			cmd.Env = append(os.Environ(), env...)
			return cmd, nil
		}),
	)

	c := client.NewClient(stdio)
	if err := c.Start(ctx); err != nil {
		fail("start client", err)
	}
	defer c.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-e2e", Version: "1.0"}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		fail("initialize", err)
	}
	if initRes.ServerInfo.Name == "" {
		fail("initialize", fmt.Errorf("server name missing"))
	}

	if err := c.Ping(ctx); err != nil {
		fail("ping", err)
	}

	toolsRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		fail("list tools", err)
	}
	requireTool(toolsRes.Tools, "librarian_query")
	requireTool(toolsRes.Tools, "librarian_symbols")
	requireTool(toolsRes.Tools, "librarian_feedback")

	queryRes, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "librarian_query",
			Arguments: map[string]any{"intent": intent},
		},
	})
	if err != nil {
		fail("query", err)
	}
	if queryRes.IsError {
		fail("query", fmt.Errorf("tool error"))
	}
	payload := asMap(queryRes.StructuredContent)
	state, _ := payload["state"].(string)
	if state == "" {
		fail("query", fmt.Errorf("missing state in response"))
	}

	if packID := firstPackID(payload); packID != "" {
		feedbackRes, err := c.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      "librarian_feedback",
				Arguments: map[string]any{"pack_id": packID, "outcome": "success"},
			},
		})
		if err != nil {
			fail("feedback", err)
		}
		if feedbackRes.IsError {
			fail("feedback", fmt.Errorf("tool error"))
		}
	}

	symbolsRes, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "librarian_symbols",
			Arguments: map[string]any{"name": "main"},
		},
	})
	if err != nil {
		fail("symbols", err)
	}
	if symbolsRes.IsError {
		fail("symbols", fmt.Errorf("tool error"))
	}

	fmt.Println("mcp e2e: ok")
}

func requireTool(tools []mcp.Tool, name string) {
	for _, tool := range tools {
		if tool.Name == name {
			return
		}
	}
	fail("list tools", fmt.Errorf("missing tool %s", name))
}

func asMap(value any) map[string]any {
	if value == nil {
		return map[string]any{}
	}
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func firstPackID(payload map[string]any) string {
	raw, ok := payload["packs"]
	if !ok {
		return ""
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := first["id"].(string)
	return id
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "mcp e2e failed (%s): %v\n", step, err)
	os.Exit(1)
}
