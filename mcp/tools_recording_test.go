package mcp

import (
	"context"
	"strings"
	"testing"
)

// ==================== recording_start ====================

func TestHandleRecordingStart_Success(t *testing.T) {
	mock := NewMockAgent()
	mock.StartRecordingResult = "session-abc"
	server := NewMCPServer(mock, "test")

	result, err := server.handleRecordingStart(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "emulator-5554",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), "session-abc") {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}

func TestHandleRecordingStart_Error(t *testing.T) {
	mock := NewMockAgent()
	mock.StartRecordingError = errTest
	server := NewMCPServer(mock, "test")

	_, err := server.handleRecordingStart(context.Background(), makeToolRequest(nil))
	if err == nil {
		t.Fatal("Expected an error")
	}
}

// ==================== recording_stop ====================

func TestHandleRecordingStop_Success(t *testing.T) {
	mock := NewMockAgent()
	mock.StopRecordingResult = `{"id":"script-1","name":"Login flow","steps":[]}`
	server := NewMCPServer(mock, "test")

	result, err := server.handleRecordingStop(context.Background(), makeToolRequest(map[string]interface{}{
		"name": "Login flow",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "Recording saved") {
		t.Errorf("Unexpected result: %q", text)
	}
	if !strings.Contains(text, "Login flow") {
		t.Error("Result should contain the script payload")
	}

	if len(mock.Calls) != 1 || mock.Calls[0].Args[0] != "Login flow" {
		t.Errorf("StopRecording should receive the name, calls: %v", mock.Calls)
	}
}

// ==================== recording_status ====================

func TestHandleRecordingStatus(t *testing.T) {
	mock := NewMockAgent()
	mock.RecordingStatusResult = `{"state":"recording","steps":7}`
	server := NewMCPServer(mock, "test")

	result, err := server.handleRecordingStatus(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(getTextContent(result), `"recording"`) {
		t.Errorf("Unexpected result: %q", getTextContent(result))
	}
}
