// Package mcp exposes the automation agent over the Model Context
// Protocol so AI clients can drive devices, recordings, and replays.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Device is the MCP-facing view of a connected device.
type Device struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Model  string `json:"model,omitempty"`
	Online bool   `json:"online"`
}

// Agent is the surface the MCP server needs from the automation agent.
// Structured payloads cross as JSON strings so this package stays
// decoupled from the agent's internal types.
type Agent interface {
	// Devices
	ListDevices() ([]Device, error)
	Screenshot(deviceID string) ([]byte, error)
	UITreeJSON(deviceID string) (string, error)
	DriftScore(deviceID string) (int, bool, error)

	// Direct actions
	Tap(deviceID string, x, y int) error
	Swipe(deviceID string, x, y, x2, y2, durMs int) error
	Shell(deviceID, command string) (string, error)

	// Recording
	StartRecording(deviceID string) (string, error)
	StopRecording(name string) (string, error)
	RecordingStatusJSON() string

	// Replay
	ReplayScript(scriptID, deviceID string, startIndex int) (string, error)
	StopReplay()
	ReplayStatusJSON() string
	ListScriptsJSON() (string, error)

	// Apps
	LaunchApp(deviceID, pkg string) error
	StopApp(deviceID, pkg string) error
	InstalledPackages(deviceID string) ([]string, error)
}

// MCPServer wraps the MCP protocol server around an Agent.
type MCPServer struct {
	agent     Agent
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer builds the server and registers all tools.
func NewMCPServer(agent Agent, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"droidpilot",
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	s := &MCPServer{agent: agent, server: mcpServer}
	s.registerDeviceTools()
	s.registerRecordingTools()
	s.registerReplayTools()
	s.registerAppTools()
	return s
}

// Serve runs the stdio transport until stdin closes or an interrupt
// arrives. Blocking.
func (s *MCPServer) Serve() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already running")
	}
	s.isRunning = true
	s.stdio = server.NewStdioServer(s.server)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "[MCP] droidpilot MCP server started")
	err := s.stdio.Listen(ctx, os.Stdin, os.Stdout)

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	return err
}

// textResult wraps plain text as a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

// stringArg reads an optional string argument.
func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// requireString reads a mandatory string argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// intArg reads a numeric argument; JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string) int {
	v, _ := args[key].(float64)
	return int(v)
}
