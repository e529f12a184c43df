package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a CallToolRequest with arguments
func makeToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// Helper to get text content from result
func getTextContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ==================== device_list ====================

func TestHandleDeviceList_Success(t *testing.T) {
	mock := NewMockAgent()
	mock.ListDevicesResult = []Device{
		SampleDevice("emulator-5554"),
		SampleDevice("emulator-5556"),
	}
	server := NewMCPServer(mock, "test")

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "emulator-5554") {
		t.Error("Result should contain emulator-5554")
	}
	if !strings.Contains(text, "Found 2 device(s)") {
		t.Errorf("Result should report 2 devices, got %q", text)
	}
}

func TestHandleDeviceList_Empty(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "No devices connected") {
		t.Error("Result should say no devices are connected")
	}
}

func TestHandleDeviceList_Error(t *testing.T) {
	mock := NewMockAgent()
	mock.ListDevicesError = errTest
	server := NewMCPServer(mock, "test")

	_, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Fatal("Expected an error")
	}
}

// ==================== device_tap ====================

func TestHandleTap_Success(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleTap(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
		"x":         float64(100),
		"y":         float64(200),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "Tapped (100, 200)") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
	if mock.CallCount("Tap") != 1 {
		t.Error("Tap should have been invoked once")
	}
}

// ==================== device_swipe ====================

func TestHandleSwipe_Success(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleSwipe(context.Background(), makeToolRequest(map[string]interface{}{
		"x":  float64(500),
		"y":  float64(1500),
		"x2": float64(500),
		"y2": float64(300),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "(500, 1500) -> (500, 300)") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}

// ==================== device_shell ====================

func TestHandleShell_RequiresCommand(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	_, err := server.handleShell(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Fatal("Expected an error for missing command")
	}
}

func TestHandleShell_EmptyOutput(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleShell(context.Background(), makeToolRequest(map[string]interface{}{
		"command": "true",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if getTextContent(result) != "(no output)" {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}

// ==================== device_drift ====================

func TestHandleDrift_BaselineCapture(t *testing.T) {
	mock := NewMockAgent()
	mock.DriftBaseline = false
	server := NewMCPServer(mock, "test")

	result, err := server.handleDrift(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "Baseline captured") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}

func TestHandleDrift_Score(t *testing.T) {
	mock := NewMockAgent()
	mock.DriftBaseline = true
	mock.DriftScoreResult = 42
	server := NewMCPServer(mock, "test")

	result, err := server.handleDrift(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "42/100") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}

// ==================== device_ui_tree ====================

func TestHandleUITree_Success(t *testing.T) {
	mock := NewMockAgent()
	mock.UITreeJSONResult = `{"class":"android.widget.FrameLayout"}`
	server := NewMCPServer(mock, "test")

	result, err := server.handleUITree(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "```json") {
		t.Error("Result should be fenced JSON")
	}
	if !strings.Contains(text, "FrameLayout") {
		t.Error("Result should contain the tree payload")
	}
}
