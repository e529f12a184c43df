package mcp

import (
	"context"
	"strings"
	"testing"
)

// ==================== app_launch ====================

func TestHandleAppLaunch_Success(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleAppLaunch(context.Background(), makeToolRequest(map[string]interface{}{
		"package":   "com.example.app",
		"device_id": "emulator-5554",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "com.example.app") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}

	if len(mock.Calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Args[0] != "emulator-5554" || mock.Calls[0].Args[1] != "com.example.app" {
		t.Errorf("Unexpected arguments: %v", mock.Calls[0].Args)
	}
}

func TestHandleAppLaunch_MissingPackage(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	_, err := server.handleAppLaunch(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Fatal("Expected an error for missing package")
	}
	if mock.CallCount("LaunchApp") != 0 {
		t.Error("LaunchApp should not have been invoked")
	}
}

// ==================== app_stop ====================

func TestHandleAppStop_Error(t *testing.T) {
	mock := NewMockAgent()
	mock.StopAppError = errTest
	server := NewMCPServer(mock, "test")

	_, err := server.handleAppStop(context.Background(), makeToolRequest(map[string]interface{}{
		"package": "com.example.app",
	}))
	if err == nil {
		t.Fatal("Expected an error")
	}
}

// ==================== app_list ====================

func TestHandleAppList_Success(t *testing.T) {
	mock := NewMockAgent()
	mock.InstalledPackagesResult = []string{"com.example.app", "com.other.app"}
	server := NewMCPServer(mock, "test")

	result, err := server.handleAppList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "com.example.app") || !strings.Contains(text, "com.other.app") {
		t.Errorf("Unexpected result: %q", text)
	}
}

func TestHandleAppList_Empty(t *testing.T) {
	mock := NewMockAgent()
	server := NewMCPServer(mock, "test")

	result, err := server.handleAppList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "No third-party packages") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}
