package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func testWeights() MatchWeights {
	return MatchWeights{ResourceID: 100, Desc: 80, Text: 60, Class: 10, Floor: 50}
}

func TestMatcherScore(t *testing.T) {
	m := NewMatcher(nil, testWeights(), nil)

	node := &UINode{
		ResourceID:  "com.app:id/login_button",
		ContentDesc: "Sign in button",
		Text:        "Sign in",
		Class:       "android.widget.Button",
	}

	tests := []struct {
		name     string
		identity ElementIdentity
		want     int
	}{
		{
			name: "all attributes agree",
			identity: ElementIdentity{
				ResourceID:  "com.app:id/login_button",
				ContentDesc: "Sign in button",
				Text:        "Sign in",
				Class:       "android.widget.Button",
			},
			want: 250,
		},
		{
			name:     "resource id only",
			identity: ElementIdentity{ResourceID: "com.app:id/login_button"},
			want:     100,
		},
		{
			name:     "text and class",
			identity: ElementIdentity{Text: "Sign in", Class: "android.widget.Button"},
			want:     70,
		},
		{
			name:     "class alone",
			identity: ElementIdentity{Class: "android.widget.Button"},
			want:     10,
		},
		{
			name:     "empty attributes never match",
			identity: ElementIdentity{ResourceID: "", Text: ""},
			want:     0,
		},
		{
			name:     "mismatched resource id",
			identity: ElementIdentity{ResourceID: "com.app:id/other", Text: "Sign in"},
			want:     60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Score(tt.identity, node); got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMatcherScore_TrimsNodeText(t *testing.T) {
	m := NewMatcher(nil, testWeights(), nil)
	node := &UINode{Text: "  Sign in \n"}
	if got := m.Score(ElementIdentity{Text: "Sign in"}, node); got != 60 {
		t.Errorf("Score = %d, want 60 with trimmed node text", got)
	}
}

func TestMatcherBestIn_ElementMoved(t *testing.T) {
	// The captured coordinates point at the old location; the identity
	// must re-locate the button at its new bounds.
	root, err := ParseHierarchyXML(strings.Replace(testHierarchyXML,
		`bounds="[340,800][740,950]"`, `bounds="[340,1100][740,1250]"`, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewMatcher(nil, testWeights(), nil)
	match := m.BestIn(root, ElementIdentity{
		ResourceID: "com.app:id/login_button",
		Text:       "Sign in",
		Class:      "android.widget.Button",
	}, "com.app")

	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Score != 170 {
		t.Errorf("Score = %d, want 170", match.Score)
	}
	cx, cy := match.Node.Bounds.Center()
	if cx != 540 || cy != 1175 {
		t.Errorf("resolved center = (%d, %d), want the moved location", cx, cy)
	}
}

func TestMatcherBestIn_FloorRejectsClassOnly(t *testing.T) {
	root, err := ParseHierarchyXML(testHierarchyXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewMatcher(nil, testWeights(), nil)
	// Only the class survives; 10 points is below the floor of 50.
	match := m.BestIn(root, ElementIdentity{
		ResourceID: "com.app:id/gone",
		Class:      "android.widget.Button",
	}, "com.app")
	if match != nil {
		t.Errorf("class-only agreement should be rejected, got score %d", match.Score)
	}
}

func TestMatcherBestIn_EmptyIdentity(t *testing.T) {
	root, err := ParseHierarchyXML(testHierarchyXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := NewMatcher(nil, testWeights(), nil)
	if match := m.BestIn(root, ElementIdentity{}, "com.app"); match != nil {
		t.Errorf("empty identity should never match, got %+v", match)
	}
	if match := m.BestIn(nil, ElementIdentity{Text: "Sign in"}, "com.app"); match != nil {
		t.Errorf("nil tree should never match, got %+v", match)
	}
}

func TestMatcherBestIn_TieKeepsDocumentOrder(t *testing.T) {
	two := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="" class="android.widget.FrameLayout" package="com.app" enabled="true" bounds="[0,0][1080,1920]">
    <node text="Delete" class="android.widget.Button" package="com.app" enabled="true" bounds="[0,100][500,200]" />
    <node text="Delete" class="android.widget.Button" package="com.app" enabled="true" bounds="[0,300][500,400]" />
  </node>
</hierarchy>`
	root, err := ParseHierarchyXML(two)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewMatcher(nil, testWeights(), nil)
	match := m.BestIn(root, ElementIdentity{Text: "Delete", Class: "android.widget.Button"}, "com.app")
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Node.Bounds.Y1 != 100 {
		t.Errorf("tie should keep the first node in document order, got Y1=%d", match.Node.Bounds.Y1)
	}
}

func TestMatcherBestIn_HistoryBreaksTie(t *testing.T) {
	two := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="" class="android.widget.FrameLayout" package="com.app" enabled="true" bounds="[0,0][1080,1920]">
    <node text="Delete" class="android.widget.Button" package="com.app" enabled="true" bounds="[0,100][500,200]" />
    <node text="Delete" class="android.widget.Button" package="com.app" enabled="true" bounds="[0,300][500,400]" />
  </node>
</hierarchy>`
	root, err := ParseHierarchyXML(two)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := LoadIdentityHistory(filepath.Join(t.TempDir(), "history.jsonl"))
	defer history.Close()
	history.Append("com.app", &root.Nodes[1])

	m := NewMatcher(nil, testWeights(), history)
	match := m.BestIn(root, ElementIdentity{Text: "Delete", Class: "android.widget.Button"}, "com.app")
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Node.Bounds.Y1 != 300 {
		t.Errorf("historically seen candidate should win the tie, got Y1=%d", match.Node.Bounds.Y1)
	}
}

func TestIdentityHistory_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	h := LoadIdentityHistory(path)
	n := &UINode{ResourceID: "com.app:id/x", Class: "Button", Bounds: Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	h.Append("com.app", n)
	if !h.Seen("com.app", NodeSignature(n)) {
		t.Error("freshly appended signature should be seen")
	}
	if h.Seen("com.other", NodeSignature(n)) {
		t.Error("signatures are scoped per package")
	}
	h.Close()

	reloaded := LoadIdentityHistory(path)
	defer reloaded.Close()
	if !reloaded.Seen("com.app", NodeSignature(n)) {
		t.Error("signature should survive a reload")
	}
}

func TestIdentityHistory_NilSafe(t *testing.T) {
	var h *IdentityHistory
	if h.Seen("com.app", "sig") {
		t.Error("nil history should report nothing seen")
	}
	h.Append("com.app", &UINode{})
	h.Close()
}
