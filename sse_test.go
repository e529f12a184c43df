package main

import "testing"

func TestFormatSSEEvent(t *testing.T) {
	got := formatSSEEvent("step-added", `{"type":"tap"}`)
	want := "event: step-added\ndata: {\"type\":\"tap\"}\n\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSSEEvent_MultilinePayload(t *testing.T) {
	got := formatSSEEvent("connected", "line one\nline two")
	want := "event: connected\ndata: line one\ndata: line two\n\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSSEHub_ClientCountEmpty(t *testing.T) {
	hub := NewSSEHub()
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("fresh hub should have 0 clients, got %d", n)
	}
	// Broadcasting with no listeners is a no-op, not a panic.
	hub.Broadcast("devices-changed", map[string]int{"count": 0})
}
