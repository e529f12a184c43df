package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *MCPServer) registerAppTools() {
	s.server.AddTool(
		mcp.NewTool("app_launch",
			mcp.WithDescription("Launch an app by package name"),
			mcp.WithString("package", mcp.Required(), mcp.Description("Package name, e.g. com.example.app")),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleAppLaunch,
	)

	s.server.AddTool(
		mcp.NewTool("app_stop",
			mcp.WithDescription("Force-stop an app by package name"),
			mcp.WithString("package", mcp.Required(), mcp.Description("Package name to stop")),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleAppStop,
	)

	s.server.AddTool(
		mcp.NewTool("app_list",
			mcp.WithDescription("List installed third-party packages"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleAppList,
	)
}

func (s *MCPServer) handleAppLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	pkg, err := requireString(args, "package")
	if err != nil {
		return nil, err
	}
	if err := s.agent.LaunchApp(stringArg(args, "device_id"), pkg); err != nil {
		return nil, fmt.Errorf("failed to launch app: %w", err)
	}
	return textResult(fmt.Sprintf("Launched %s", pkg)), nil
}

func (s *MCPServer) handleAppStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	pkg, err := requireString(args, "package")
	if err != nil {
		return nil, err
	}
	if err := s.agent.StopApp(stringArg(args, "device_id"), pkg); err != nil {
		return nil, fmt.Errorf("failed to stop app: %w", err)
	}
	return textResult(fmt.Sprintf("Stopped %s", pkg)), nil
}

func (s *MCPServer) handleAppList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pkgs, err := s.agent.InstalledPackages(stringArg(request.GetArguments(), "device_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	if len(pkgs) == 0 {
		return textResult("No third-party packages installed"), nil
	}
	return textResult(strings.Join(pkgs, "\n")), nil
}
