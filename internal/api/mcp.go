package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/persona/internal/gateway"
	"github.com/kalambet/persona/internal/keypool"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Gateway Gateway
	Store   ProfileStore // optional; when nil lookup_profile cannot save
	Pools   []*keypool.Pool
	Version string
}

// NewMCPServer creates an MCP server exposing the persona tools and the pool
// status resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"persona",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("persona: look up public profiles and reply in the voice of an account."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("lookup_profile",
			mcp.WithDescription("Fetch the public profile of an account by username."),
			mcp.WithString("username", mcp.Description("Account handle, with or without @"), mcp.Required()),
			mcp.WithBoolean("save", mcp.Description("Also store the profile for later lookup")),
		),
		mcpLookupProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("chat_as_persona",
			mcp.WithDescription("Reply to a message in the voice of an account, built from its recent posts."),
			mcp.WithString("username", mcp.Description("Account handle to impersonate"), mcp.Required()),
			mcp.WithString("message", mcp.Description("Message to reply to"), mcp.Required()),
		),
		mcpChatAsPersona(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"pools://status",
			"Credential Pools",
			mcp.WithResourceDescription("Health of every provider credential pool (secrets masked)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePools(deps),
	)

	return s
}

func mcpLookupProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}

		p, err := deps.Gateway.Profile(ctx, username)
		if err != nil {
			_, msg := gateway.StatusFor(err)
			return mcpError(msg), nil
		}

		if req.GetBool("save", false) {
			if deps.Store == nil {
				return mcpError("saving is not available"), nil
			}
			if _, err := deps.Store.SaveProfile(p); err != nil {
				return mcpError(fmt.Sprintf("failed to save profile: %v", err)), nil
			}
		}

		b, err := json.Marshal(p)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpChatAsPersona(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Gateway.Chat(ctx, username, message)
		if err != nil {
			_, msg := gateway.StatusFor(err)
			return mcpError(msg), nil
		}
		return mcpText(reply), nil
	}
}

func mcpResourcePools(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(PoolsStatus(deps.Pools))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pool status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
