package mcp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *MCPServer) registerDeviceTools() {
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List connected Android devices and emulators"),
		),
		s.handleDeviceList,
	)

	s.server.AddTool(
		mcp.NewTool("device_screenshot",
			mcp.WithDescription("Capture the device screen as a PNG image"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleScreenshot,
	)

	s.server.AddTool(
		mcp.NewTool("device_ui_tree",
			mcp.WithDescription("Dump the current UI hierarchy as JSON"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleUITree,
	)

	s.server.AddTool(
		mcp.NewTool("device_drift",
			mcp.WithDescription("Score how much the UI changed since the last drift check (0-100)"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleDrift,
	)

	s.server.AddTool(
		mcp.NewTool("device_tap",
			mcp.WithDescription("Tap the screen at the given coordinates"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
			mcp.WithNumber("x", mcp.Required(), mcp.Description("X coordinate in pixels")),
			mcp.WithNumber("y", mcp.Required(), mcp.Description("Y coordinate in pixels")),
		),
		s.handleTap,
	)

	s.server.AddTool(
		mcp.NewTool("device_swipe",
			mcp.WithDescription("Swipe from one point to another"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
			mcp.WithNumber("x", mcp.Required(), mcp.Description("Start X")),
			mcp.WithNumber("y", mcp.Required(), mcp.Description("Start Y")),
			mcp.WithNumber("x2", mcp.Required(), mcp.Description("End X")),
			mcp.WithNumber("y2", mcp.Required(), mcp.Description("End Y")),
			mcp.WithNumber("duration_ms", mcp.Description("Swipe duration in milliseconds (default 300)")),
		),
		s.handleSwipe,
	)

	s.server.AddTool(
		mcp.NewTool("device_shell",
			mcp.WithDescription("Run a shell command on the device"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
			mcp.WithString("command", mcp.Required(), mcp.Description("Shell command to run")),
		),
		s.handleShell,
	)
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.agent.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return textResult("No devices connected"), nil
	}

	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		state := "offline"
		if d.Online {
			state = "online"
		}
		result += fmt.Sprintf("%d. %s [%s] %s (%s)\n", i+1, d.ID, d.Kind, d.Model, state)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	png, err := s.agent.Screenshot(stringArg(request.GetArguments(), "device_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewImageContent(base64.StdEncoding.EncodeToString(png), "image/png"),
		},
	}, nil
}

func (s *MCPServer) handleUITree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.agent.UITreeJSON(stringArg(request.GetArguments(), "device_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to dump UI hierarchy: %w", err)
	}
	return textResult(fmt.Sprintf("```json\n%s\n```", tree)), nil
}

func (s *MCPServer) handleDrift(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	score, hadBaseline, err := s.agent.DriftScore(stringArg(request.GetArguments(), "device_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to compute drift: %w", err)
	}
	if !hadBaseline {
		return textResult("Baseline captured; call again to get a drift score"), nil
	}
	return textResult(fmt.Sprintf("UI drift score: %d/100", score)), nil
}

func (s *MCPServer) handleTap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	x, y := intArg(args, "x"), intArg(args, "y")
	if err := s.agent.Tap(stringArg(args, "device_id"), x, y); err != nil {
		return nil, fmt.Errorf("tap failed: %w", err)
	}
	return textResult(fmt.Sprintf("Tapped (%d, %d)", x, y)), nil
}

func (s *MCPServer) handleSwipe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	x, y := intArg(args, "x"), intArg(args, "y")
	x2, y2 := intArg(args, "x2"), intArg(args, "y2")
	if err := s.agent.Swipe(stringArg(args, "device_id"), x, y, x2, y2, intArg(args, "duration_ms")); err != nil {
		return nil, fmt.Errorf("swipe failed: %w", err)
	}
	return textResult(fmt.Sprintf("Swiped (%d, %d) -> (%d, %d)", x, y, x2, y2)), nil
}

func (s *MCPServer) handleShell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	command, err := requireString(args, "command")
	if err != nil {
		return nil, err
	}
	out, err := s.agent.Shell(stringArg(args, "device_id"), command)
	if err != nil {
		return nil, fmt.Errorf("shell command failed: %w", err)
	}
	if out == "" {
		out = "(no output)"
	}
	return textResult(out), nil
}
