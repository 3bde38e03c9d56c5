package service

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools wires every service operation onto the MCP server. Each
// AddX function is composable so callers can register a subset.
func RegisterTools(s *server.MCPServer, state *State) {
	AddIngestTool(s, state)
	AddListTool(s, state)
	AddRemoveTool(s, state)
	AddUpdateTool(s, state)
	AddSearchTool(s, state)
	AddStatsTool(s, state)
	AddHealthTool(s, state)
	AddRelatedEntitiesTool(s, state)
	AddVerifySchemaTool(s, state)
}

// AddIngestTool registers ingest_repository.
func AddIngestTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"ingest_repository",
		mcp.WithDescription("Clone or update a threat-intel markdown repository and ingest its documents: parse, extract crypto addresses, incidents and IOCs, embed and index. Processes at most 100 files per call; re-invoke to continue."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Repository URL (https or git)")),
		mcp.WithString("ref",
			mcp.Description("Branch or ref to check out (default: configured branch)")),
		mcp.WithArray("subdirectories",
			mcp.Description("Restrict scanning to these subdirectory prefixes")),
		mcp.WithBoolean("force",
			mcp.Description("Reprocess files whose content is already stored")),
	)
	s.AddTool(tool, createIngestHandler(state))
}

func createIngestHandler(state *State) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		url, err := stringArg(argsMap, "url", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ref, _ := stringArg(argsMap, "ref", false)
		subdirs := arrayArg(argsMap, "subdirectories")
		force := boolArg(argsMap, "force", false)

		report, err := state.Ingest(ctx, url, ref, subdirs, force)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report)
	}
}

// AddListTool registers list_repositories.
func AddListTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"list_repositories",
		mcp.WithDescription("List every registered repository with its branch, commit, subdirectory filter and last ingestion time."),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repos, err := state.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{
			"repositories": repos,
			"total":        len(repos),
		})
	})
}

// AddRemoveTool registers remove_repository.
func AddRemoveTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"remove_repository",
		mcp.WithDescription("Remove a repository from the registry and delete its stored documents. The registry entry is removed even if the store delete fails."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Repository URL or short name")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		identifier, err := stringArg(argsMap, "identifier", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		report, err := state.Remove(ctx, identifier)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report)
	})
}

// AddUpdateTool registers update_repository.
func AddUpdateTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"update_repository",
		mcp.WithDescription("Re-ingest a registered repository with force, reusing its recorded subdirectory filter. Optionally override the ref."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Repository URL or short name")),
		mcp.WithString("ref",
			mcp.Description("New branch or ref to track")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		identifier, err := stringArg(argsMap, "identifier", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ref, _ := stringArg(argsMap, "ref", false)
		report, err := state.Update(ctx, identifier, ref)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report)
	})
}

// AddSearchTool registers search.
func AddSearchTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"search",
		mcp.WithDescription("Search ingested threat-intel documents. Semantic mode ranks by embedding similarity; keyword mode runs a full-text match query. Results carry a score in [0,1], higher is more similar."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query")),
		mcp.WithString("mode",
			mcp.Description("'semantic' (default) or 'keyword'")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (1-50, default 10)")),
		mcp.WithString("repository",
			mcp.Description("Restrict results to one repository URL")),
	)
	s.AddTool(tool, createSearchHandler(state))
}

func createSearchHandler(state *State) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		query, err := stringArg(argsMap, "query", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode, _ := stringArg(argsMap, "mode", false)
		limit := clampedIntArg(argsMap, "limit", 10, 1, 50)
		repository, _ := stringArg(argsMap, "repository", false)

		results, err := state.Search(ctx, query, mode, limit, repository)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{
			"results": results,
			"total":   len(results),
		})
	}
}

// AddStatsTool registers get_stats.
func AddStatsTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"get_stats",
		mcp.WithDescription("Report registered repository count, per-table row counts and vector index size."),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := state.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report)
	})
}

// AddHealthTool registers health_check.
func AddHealthTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"health_check",
		mcp.WithDescription("Run five independent health checks (configuration, database connection, database schema, repository store, lock system), each individually timed. Overall status is the worst individual status."),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(state.Health(ctx))
	})
}

// AddRelatedEntitiesTool registers related_entities.
func AddRelatedEntitiesTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"related_entities",
		mcp.WithDescription("Walk the entity co-occurrence graph from a crypto address, incident title or IOC value. Entities are linked when they appear in the same document."),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Entity value to start from (address, incident title or IOC)")),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth in hops (1-5, default 1)")),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum related entities to return (1-100, default 20)")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		entity, err := stringArg(argsMap, "entity", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		depth := clampedIntArg(argsMap, "depth", 1, 1, 5)
		maxResults := clampedIntArg(argsMap, "max_results", 20, 1, 100)

		related, err := state.Related(ctx, entity, depth, maxResults)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{
			"entity":  entity,
			"related": related,
			"total":   len(related),
		})
	})
}

// AddVerifySchemaTool registers verify_schema.
func AddVerifySchemaTool(s *server.MCPServer, state *State) {
	tool := mcp.NewTool(
		"verify_schema",
		mcp.WithDescription("Verify the warehouse schema, optionally creating missing tables first."),
		mcp.WithBoolean("create_if_missing",
			mcp.Description("Create missing tables before verifying")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := toolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		create := boolArg(argsMap, "create_if_missing", false)
		if err := state.VerifySchema(ctx, create); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"status": "ok"})
	})
}
