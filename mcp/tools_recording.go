package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *MCPServer) registerRecordingTools() {
	s.server.AddTool(
		mcp.NewTool("recording_start",
			mcp.WithDescription("Start recording touch gestures on the device"),
			mcp.WithString("device_id",
				mcp.Description("Device ID; omit for the primary device"),
			),
		),
		s.handleRecordingStart,
	)

	s.server.AddTool(
		mcp.NewTool("recording_stop",
			mcp.WithDescription("Stop recording and save the captured steps as a script"),
			mcp.WithString("name",
				mcp.Description("Name for the saved script"),
			),
		),
		s.handleRecordingStop,
	)

	s.server.AddTool(
		mcp.NewTool("recording_status",
			mcp.WithDescription("Report the current recording session state and step count"),
		),
		s.handleRecordingStatus,
	)
}

func (s *MCPServer) handleRecordingStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := s.agent.StartRecording(stringArg(request.GetArguments(), "device_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	return textResult(fmt.Sprintf("Recording started, session %s", sessionID)), nil
}

func (s *MCPServer) handleRecordingStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scriptJSON, err := s.agent.StopRecording(stringArg(request.GetArguments(), "name"))
	if err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	return textResult(fmt.Sprintf("Recording saved:\n```json\n%s\n```", scriptJSON)), nil
}

func (s *MCPServer) handleRecordingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(s.agent.RecordingStatusJSON()), nil
}
