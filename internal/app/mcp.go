package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nateschmiedehaus/librarian-sub018/internal/health"
	"github.com/nateschmiedehaus/librarian-sub018/internal/librarian"
	"github.com/nateschmiedehaus/librarian-sub018/internal/slogutil"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

const mcpServerVersion = "0.3.0"

func runMCP(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(errOut)
	name := fs.String("name", "librarian", "Server name")
	version := fs.String("version", mcpServerVersion, "Server version")
	repoOverride := fs.String("repo", "", "Override repo id or path")
	logPath := fs.String("log", "", "Append structured logs to this file")
	debug := fs.Bool("debug", false, "Print health check details to stderr")
	repair := fs.Bool("repair", false, "Repair invalid state before starting")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slogutil.Discard()
	if strings.TrimSpace(*logPath) != "" {
		fileLogger, closer, err := slogutil.FileLogger(*logPath, slog.LevelInfo)
		if err != nil {
			fmt.Fprintf(errOut, "log open error: %v\n", err)
			return 1
		}
		defer closer.Close()
		logger = fileLogger
	}

	cfg, cfgErr := loadConfig()
	autoRepair := *repair
	if cfgErr == nil && cfg.MCPAutoRepair {
		autoRepair = true
	}

	report, err := checkMCPHealth(strings.TrimSpace(*repoOverride), autoRepair)
	if err != nil {
		logger.Error("mcp health check failed", "error", formatMCPHealthError(report, err))
		fmt.Fprintf(errOut, "error: %s\n", formatMCPHealthError(report, err))
		if *debug {
			if encoded, encErr := json.MarshalIndent(report, "", "  "); encErr == nil {
				fmt.Fprintln(errOut, string(encoded))
			}
		}
		return 1
	}

	fmt.Fprintf(errOut, "librarian mcp: repo=%s db=%s schema=v%d fts=ok tools=3\n",
		report.Repo.ID, report.DB.Path, report.Schema.UserVersion)
	logger.Info("mcp started", "repo", report.Repo.ID, "db", report.DB.Path, "schema", report.Schema.UserVersion)

	if cfgErr == nil {
		startEmbeddingWorker(context.Background(), cfg, report.Repo.ID)
	}

	srv := server.NewMCPServer(*name, *version, server.WithToolCapabilities(false))
	registerMCPTools(srv, strings.TrimSpace(*repoOverride))

	if err := server.ServeStdio(srv); err != nil {
		logger.Error("mcp server error", "error", err)
		fmt.Fprintf(errOut, "mcp server error: %v\n", err)
		return 1
	}
	logger.Info("mcp stopped")
	return 0
}

func registerMCPTools(srv *server.MCPServer, repoOverride string) {
	queryTool := mcp.NewTool("librarian_query",
		mcp.WithDescription("Answer a natural-language question about the repository with ranked, token-budgeted context packs. Symbol questions short-circuit to exact definitions."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("intent", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("depth", mcp.Description("Search depth"), mcp.Enum("shallow", "standard", "deep")),
		mcp.WithString("files", mcp.Description("Comma-separated affected file hints")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget ceiling")),
		mcp.WithNumber("reserve_tokens", mcp.Description("Tokens held back for overhead")),
		mcp.WithString("priority", mcp.Description("Budget priority"), mcp.Enum("relevance", "recency", "diversity")),
		mcp.WithString("workspace", mcp.Description("Workspace name")),
	)
	srv.AddTool(queryTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleQuery(ctx, request, repoOverride)
	})

	symbolsTool := mcp.NewTool("librarian_symbols",
		mcp.WithDescription("Look up a code symbol by name, exact match first then fuzzy."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("name", mcp.Required(), mcp.Description("Symbol name")),
		mcp.WithString("kind", mcp.Description("Symbol kind"), mcp.Enum("class", "function", "method", "interface", "type")),
		mcp.WithString("workspace", mcp.Description("Workspace name")),
	)
	srv.AddTool(symbolsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSymbols(ctx, request, repoOverride)
	})

	feedbackTool := mcp.NewTool("librarian_feedback",
		mcp.WithDescription("Report whether a delivered context pack was useful. Updates usage counters only."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("pack_id", mcp.Required(), mcp.Description("Pack identifier from a prior query")),
		mcp.WithString("outcome", mcp.Required(), mcp.Description("Outcome"), mcp.Enum("success", "failure")),
		mcp.WithString("workspace", mcp.Description("Workspace name")),
	)
	srv.AddTool(feedbackTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleFeedback(ctx, request, repoOverride)
	})
}

func checkMCPHealth(repoOverride string, repair bool) (health.Report, error) {
	if repair {
		return health.Repair(context.Background(), repoOverride, health.Options{
			RepoOverride: repoOverride,
			Repair:       true,
		})
	}
	return health.Check(context.Background(), repoOverride, health.Options{RepoOverride: repoOverride})
}

func formatMCPHealthError(report health.Report, err error) string {
	if report.Error != "" {
		if report.Suggestion != "" {
			return fmt.Sprintf("%s. %s", report.Error, report.Suggestion)
		}
		return report.Error
	}
	if err != nil {
		return err.Error()
	}
	return "health check failed"
}

func handleQuery(ctx context.Context, request mcp.CallToolRequest, repoOverride string) (*mcp.CallToolResult, error) {
	intent, err := request.RequireString("intent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := store.EnsureValidQuery(intent); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
	}
	maxTokens := request.GetInt("max_tokens", 0)
	reserveTokens := request.GetInt("reserve_tokens", 0)
	if maxTokens < 0 || reserveTokens < 0 {
		return mcp.NewToolResultError("token budget must be >= 0"), nil
	}

	svc, _, _, closeSvc, err := openService(repoOverride, request.GetString("workspace", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer closeSvc()

	resp, err := svc.Query(ctx, librarian.Query{
		Intent:        intent,
		Depth:         strings.TrimSpace(request.GetString("depth", "")),
		AffectedFiles: splitCSV(request.GetString("files", "")),
		MaxTokens:     maxTokens,
		ReserveTokens: reserveTokens,
		Priority:      strings.TrimSpace(request.GetString("priority", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return structuredResult(resp)
}

func handleSymbols(ctx context.Context, request mcp.CallToolRequest, repoOverride string) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	svc, _, _, closeSvc, err := openService(repoOverride, request.GetString("workspace", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer closeSvc()

	result, err := svc.Symbols(ctx, name, symbols.Kind(strings.ToLower(strings.TrimSpace(request.GetString("kind", "")))))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return structuredResult(result)
}

func handleFeedback(_ context.Context, request mcp.CallToolRequest, repoOverride string) (*mcp.CallToolResult, error) {
	packID, err := request.RequireString("pack_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcome, err := request.RequireString("outcome")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	svc, _, _, closeSvc, err := openService(repoOverride, request.GetString("workspace", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer closeSvc()

	updated, err := svc.Feedback(packID, strings.ToLower(strings.TrimSpace(outcome)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return structuredResult(updated)
}

func structuredResult(payload any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("json error: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(encoded)},
		},
		StructuredContent: payload,
	}, nil
}
