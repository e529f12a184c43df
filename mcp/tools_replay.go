package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *MCPServer) registerReplayTools() {
	s.server.AddTool(
		mcp.NewTool("script_list",
			mcp.WithDescription("List saved automation scripts"),
		),
		s.handleScriptList,
	)

	s.server.AddTool(
		mcp.NewTool("replay_start",
			mcp.WithDescription("Replay a saved script against a device"),
			mcp.WithString("script_id", mcp.Required(), mcp.Description("ID of the script to replay")),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
			mcp.WithNumber("start_index",
				mcp.Description("Step index to resume from (default 0)"),
			),
		),
		s.handleReplayStart,
	)

	s.server.AddTool(
		mcp.NewTool("replay_stop",
			mcp.WithDescription("Request cooperative cancellation of the running replay"),
		),
		s.handleReplayStop,
	)

	s.server.AddTool(
		mcp.NewTool("replay_status",
			mcp.WithDescription("Report the current or last replay session, including progress and failure index"),
		),
		s.handleReplayStatus,
	)
}

func (s *MCPServer) handleScriptList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scripts, err := s.agent.ListScriptsJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	return textResult(fmt.Sprintf("```json\n%s\n```", scripts)), nil
}

func (s *MCPServer) handleReplayStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scriptID, err := requireString(args, "script_id")
	if err != nil {
		return nil, err
	}
	sessionID, err := s.agent.ReplayScript(scriptID, stringArg(args, "device_id"), intArg(args, "start_index"))
	if err != nil {
		return nil, fmt.Errorf("failed to start replay: %w", err)
	}
	return textResult(fmt.Sprintf("Replay started, session %s", sessionID)), nil
}

func (s *MCPServer) handleReplayStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.agent.StopReplay()
	return textResult("Replay stop requested; it halts at the next step boundary"), nil
}

func (s *MCPServer) handleReplayStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(s.agent.ReplayStatusJSON()), nil
}
