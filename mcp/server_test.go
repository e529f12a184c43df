package mcp

import (
	"errors"
	"testing"
)

var errTest = errors.New("mock failure")

func TestStringArg(t *testing.T) {
	args := map[string]interface{}{"name": "login", "count": float64(3)}

	if got := stringArg(args, "name"); got != "login" {
		t.Errorf("Expected 'login', got %q", got)
	}
	if got := stringArg(args, "missing"); got != "" {
		t.Errorf("Expected empty string for missing key, got %q", got)
	}
	if got := stringArg(args, "count"); got != "" {
		t.Errorf("Expected empty string for non-string value, got %q", got)
	}
	if got := stringArg(nil, "name"); got != "" {
		t.Errorf("Expected empty string for nil args, got %q", got)
	}
}

func TestRequireString(t *testing.T) {
	args := map[string]interface{}{"package": "com.example.app", "blank": ""}

	got, err := requireString(args, "package")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "com.example.app" {
		t.Errorf("Expected 'com.example.app', got %q", got)
	}

	if _, err := requireString(args, "missing"); err == nil {
		t.Error("Expected an error for missing key")
	}
	if _, err := requireString(args, "blank"); err == nil {
		t.Error("Expected an error for empty value")
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]interface{}{
		"x":    float64(120),
		"y":    120.7,
		"name": "nope",
	}

	if got := intArg(args, "x"); got != 120 {
		t.Errorf("Expected 120, got %d", got)
	}
	if got := intArg(args, "y"); got != 120 {
		t.Errorf("Expected truncation to 120, got %d", got)
	}
	if got := intArg(args, "missing"); got != 0 {
		t.Errorf("Expected 0 for missing key, got %d", got)
	}
	if got := intArg(args, "name"); got != 0 {
		t.Errorf("Expected 0 for non-numeric value, got %d", got)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	server := NewMCPServer(NewMockAgent(), "test")
	if server.server == nil {
		t.Fatal("Underlying MCP server should be initialized")
	}
	if server.agent == nil {
		t.Fatal("Agent should be set")
	}
}
