package main

import (
	"strings"
	"testing"
)

const testHierarchyXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.app"
        content-desc="" clickable="false" enabled="true" bounds="[0,0][1080,1920]">
    <node index="0" text="Welcome back" resource-id="com.app:id/title" class="android.widget.TextView"
          package="com.app" content-desc="" clickable="false" enabled="true" bounds="[40,200][1040,300]" />
    <node index="1" text="Sign in" resource-id="com.app:id/login_button" class="android.widget.Button"
          package="com.app" content-desc="Sign in button" clickable="true" enabled="true"
          bounds="[340,800][740,950]" />
  </node>
</hierarchy>`

func TestParseBounds(t *testing.T) {
	r, err := ParseBounds("[40,200][1040,300]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Rect{X1: 40, Y1: 200, X2: 1040, Y2: 300}
	if r != want {
		t.Errorf("got %+v, want %+v", r, want)
	}

	if _, err := ParseBounds("garbage"); err == nil {
		t.Error("expected an error for malformed bounds")
	}

	r, err = ParseBounds("[-10,-20][30,40]")
	if err != nil {
		t.Fatalf("unexpected error for negative bounds: %v", err)
	}
	if r.X1 != -10 || r.Y1 != -20 {
		t.Errorf("negative coordinates not preserved: %+v", r)
	}
}

func TestParseHierarchyXML(t *testing.T) {
	root, err := ParseHierarchyXML(testHierarchyXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if root.Class != "android.widget.FrameLayout" {
		t.Errorf("root class = %q", root.Class)
	}
	if len(root.Nodes) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Nodes))
	}

	btn := root.Nodes[1]
	if btn.ResourceID != "com.app:id/login_button" {
		t.Errorf("ResourceID = %q", btn.ResourceID)
	}
	if !btn.Clickable {
		t.Error("button should be clickable")
	}
	if btn.Bounds != (Rect{X1: 340, Y1: 800, X2: 740, Y2: 950}) {
		t.Errorf("bounds = %+v", btn.Bounds)
	}
}

func TestParseHierarchyXML_StrayBytesAndAmpersands(t *testing.T) {
	dirty := "uiautomator: dumped\n" + strings.Replace(testHierarchyXML,
		`text="Welcome back"`, `text="Fish &amp; Chips & more"`, 1) + "\ntrailing noise"

	root, err := ParseHierarchyXML(dirty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := root.Nodes[0].Text; got != "Fish & Chips & more" {
		t.Errorf("text = %q", got)
	}
}

func TestParseHierarchyXML_Truncated(t *testing.T) {
	// A dump cut off mid-document keeps the nodes read so far.
	cut := testHierarchyXML[:strings.Index(testHierarchyXML, `<node index="1"`)]
	root, err := ParseHierarchyXML(cut)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(root.Nodes) != 1 {
		t.Errorf("expected the one complete child, got %d", len(root.Nodes))
	}
}

func TestParseHierarchyXML_Empty(t *testing.T) {
	if _, err := ParseHierarchyXML(`<?xml version='1.0'?><hierarchy rotation="0"></hierarchy>`); err == nil {
		t.Error("expected an error for an empty hierarchy")
	}
	if _, err := ParseHierarchyXML(""); err == nil {
		t.Error("expected an error for empty input")
	}
}

func TestParseHierarchyXML_MultipleWindows(t *testing.T) {
	multi := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="" class="android.widget.FrameLayout" package="com.app" enabled="true" bounds="[0,0][1080,1800]" />
  <node text="" class="android.widget.FrameLayout" package="com.android.systemui" enabled="true" bounds="[0,1800][1080,1920]" />
</hierarchy>`

	root, err := ParseHierarchyXML(multi)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(root.Nodes) != 2 {
		t.Fatalf("expected synthetic container with 2 windows, got %d", len(root.Nodes))
	}
	if root.Bounds.X2 != 1080 || root.Bounds.Y2 != 1920 {
		t.Errorf("container bounds should span all windows, got %+v", root.Bounds)
	}
}

func TestElementAtPoint(t *testing.T) {
	root, err := ParseHierarchyXML(testHierarchyXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Point inside the button: the button wins over the full-screen root.
	n := ElementAtPoint(root, 540, 875)
	if n == nil {
		t.Fatal("expected an element")
	}
	if n.ResourceID != "com.app:id/login_button" {
		t.Errorf("got %q, want the login button", n.ResourceID)
	}

	// Point outside every child falls back to the root.
	n = ElementAtPoint(root, 540, 1500)
	if n == nil {
		t.Fatal("expected the root container")
	}
	if n.Class != "android.widget.FrameLayout" || n.ResourceID != "" {
		t.Errorf("got %q/%q, want the root container", n.Class, n.ResourceID)
	}

	// Point outside the screen hits nothing.
	if n = ElementAtPoint(root, 5000, 5000); n != nil {
		t.Errorf("expected nil, got %+v", n)
	}
}

func TestIdentityOf(t *testing.T) {
	n := &UINode{
		ResourceID:  "com.app:id/title",
		Text:        "  Welcome back  ",
		ContentDesc: "Title",
		Class:       "android.widget.TextView",
	}
	id := IdentityOf(n)
	if id.Text != "Welcome back" {
		t.Errorf("Text = %q, want trimmed", id.Text)
	}
	if id.ResourceID != "com.app:id/title" || id.Class != "android.widget.TextView" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestNodeSignature_LayoutNoiseTolerated(t *testing.T) {
	a := &UINode{ResourceID: "id/x", Class: "Button", Text: "OK", Bounds: Rect{X1: 102, Y1: 198, X2: 502, Y2: 304}}
	b := &UINode{ResourceID: "id/x", Class: "Button", Text: "ok", Bounds: Rect{X1: 98, Y1: 203, X2: 497, Y2: 299}}
	if NodeSignature(a) != NodeSignature(b) {
		t.Errorf("small layout nudges should not change the signature:\n%s\n%s",
			NodeSignature(a), NodeSignature(b))
	}

	c := &UINode{ResourceID: "id/y", Class: "Button", Text: "OK", Bounds: a.Bounds}
	if NodeSignature(a) == NodeSignature(c) {
		t.Error("different resource IDs must produce different signatures")
	}
}

func TestDriftScore(t *testing.T) {
	base, err := ParseHierarchyXML(testHierarchyXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := DriftScore(base, base); got != 0 {
		t.Errorf("identical trees should score 0, got %d", got)
	}

	other := &UINode{Class: "android.widget.LinearLayout", ResourceID: "com.other:id/root",
		Bounds: Rect{X1: 0, Y1: 0, X2: 1080, Y2: 1920}}
	if got := DriftScore(base, other); got != 100 {
		t.Errorf("disjoint trees should score 100, got %d", got)
	}

	// One renamed child out of three nodes lands in between.
	changed, err := ParseHierarchyXML(strings.Replace(testHierarchyXML,
		"com.app:id/login_button", "com.app:id/submit_button", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := DriftScore(base, changed)
	if got <= 0 || got >= 100 {
		t.Errorf("partial drift should land strictly between 0 and 100, got %d", got)
	}
}
