package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Hierarchy fetches and interprets the on-device accessibility tree.
type Hierarchy struct {
	exec *AdbExecutor
}

// NewHierarchy returns a hierarchy service backed by the executor.
func NewHierarchy(exec *AdbExecutor) *Hierarchy {
	return &Hierarchy{exec: exec}
}

const dumpFile = "/data/local/tmp/droidpilot_view.xml"

var boundsRe = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// ParseBounds parses the Android bounds attribute "[x1,y1][x2,y2]".
func ParseBounds(s string) (Rect, error) {
	m := boundsRe.FindStringSubmatch(s)
	if len(m) < 5 {
		return Rect{}, fmt.Errorf("invalid bounds: %q", s)
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
}

// FetchTree dumps the current UI hierarchy and parses it. The dump can be
// flaky, so it is retried; the remote temp file is removed on every exit
// path, including parse failure.
func (h *Hierarchy) FetchTree(deviceID string) (*UINode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.FetchTreeContext(ctx, deviceID)
}

// FetchTreeContext is FetchTree with caller-controlled cancellation.
func (h *Hierarchy) FetchTreeContext(ctx context.Context, deviceID string) (*UINode, error) {
	defer func() {
		// Scoped acquisition: the dump artifact never outlives the call.
		_, _ = h.exec.Run(deviceID, "shell", "rm -f "+dumpFile)
	}()

	var xmlContent string
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if i > 0 {
			// A stuck uiautomator instance blocks subsequent dumps.
			_, _ = h.exec.RunContext(ctx, deviceID, "shell", "pkill uiautomator")
			time.Sleep(500 * time.Millisecond)
		}

		// Dump and read in one adb round trip; cat only runs on success.
		res, runErr := h.exec.RunContext(ctx, deviceID, "shell",
			fmt.Sprintf("uiautomator dump %s && cat %s", dumpFile, dumpFile))
		xmlContent, err = res.Stdout, runErr
		if err == nil && strings.Contains(xmlContent, "<?xml") {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		LogDebug("hierarchy").Int("retry", i+1).Err(err).Msg("UI dump retry")
	}

	if err != nil || !strings.Contains(xmlContent, "<?xml") {
		return nil, fmt.Errorf("failed to dump UI after %d attempts: %v", maxRetries, err)
	}

	return ParseHierarchyXML(xmlContent)
}

// ParseHierarchyXML parses a uiautomator dump into a UINode tree. Nodes
// with malformed attributes are kept with zero bounds rather than
// aborting the parse; a truncated document salvages what was read.
func ParseHierarchyXML(content string) (*UINode, error) {
	// uiautomator output occasionally carries stray bytes around the
	// document and unescaped ampersands inside attribute values.
	if idx := strings.Index(content, "<?xml"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, ">"); idx != -1 && idx < len(content)-1 {
		content = content[:idx+1]
	}
	content = strings.ReplaceAll(content, "&", "&amp;")
	content = strings.ReplaceAll(content, "&amp;amp;", "&amp;")
	content = strings.ReplaceAll(content, "&amp;lt;", "&lt;")
	content = strings.ReplaceAll(content, "&amp;gt;", "&gt;")
	content = strings.ReplaceAll(content, "&amp;quot;", "&quot;")
	content = strings.ReplaceAll(content, "&amp;apos;", "&apos;")
	content = strings.ReplaceAll(content, "&amp;#", "&#")

	decoder := xml.NewDecoder(strings.NewReader(content))
	decoder.Strict = false

	root := &UINode{Class: "hierarchy"}
	stack := []*UINode{root}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break // EOF or malformed tail; keep what we have
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "node" {
				continue
			}
			node := UINode{}
			for _, attr := range t.Attr {
				switch attr.Name.Local {
				case "class":
					node.Class = attr.Value
				case "resource-id":
					node.ResourceID = attr.Value
				case "content-desc":
					node.ContentDesc = attr.Value
				case "text":
					node.Text = attr.Value
				case "package":
					node.Package = attr.Value
				case "clickable":
					node.Clickable = attr.Value == "true"
				case "enabled":
					node.Enabled = attr.Value == "true"
				case "bounds":
					if r, err := ParseBounds(attr.Value); err == nil {
						node.Bounds = r
					}
				}
			}
			parent := stack[len(stack)-1]
			parent.Nodes = append(parent.Nodes, node)
			stack = append(stack, &parent.Nodes[len(parent.Nodes)-1])
		case xml.EndElement:
			if t.Name.Local == "node" && len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(root.Nodes) == 0 {
		return nil, fmt.Errorf("empty hierarchy")
	}
	if len(root.Nodes) == 1 {
		return &root.Nodes[0], nil
	}
	// Multiple top-level windows: wrap them in a synthetic container
	// spanning the union of their bounds.
	container := &UINode{
		Class:   "android.view.View",
		Package: root.Nodes[0].Package,
		Nodes:   root.Nodes,
		Enabled: true,
	}
	for _, n := range root.Nodes {
		if n.Bounds.X2 > container.Bounds.X2 {
			container.Bounds.X2 = n.Bounds.X2
		}
		if n.Bounds.Y2 > container.Bounds.Y2 {
			container.Bounds.Y2 = n.Bounds.Y2
		}
	}
	return container, nil
}

// ElementAtPoint returns the most specific element covering (x, y): of all
// nodes whose bounds contain the point, the one with the smallest area.
// A descendant therefore always wins over an ancestor that also contains
// the point. Returns nil when nothing covers the point.
func ElementAtPoint(root *UINode, x, y int) *UINode {
	var best *UINode
	bestArea := math.MaxInt

	var walk func(n *UINode)
	walk = func(n *UINode) {
		if n == nil {
			return
		}
		if n.Bounds.Contains(x, y) {
			if area := n.Bounds.Area(); area > 0 && area < bestArea {
				best = n
				bestArea = area
			}
		}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
	}
	walk(root)
	return best
}

// IdentityOf extracts the replay identity attributes from a node.
func IdentityOf(n *UINode) ElementIdentity {
	return ElementIdentity{
		ResourceID:  n.ResourceID,
		Text:        strings.TrimSpace(n.Text),
		ContentDesc: n.ContentDesc,
		Class:       n.Class,
	}
}

// signatureGrid is the rounding granularity for the bounds bucket in node
// signatures. Coarse on purpose: signatures feed drift detection, where a
// small layout nudge should not count as a removal plus an addition.
const signatureGrid = 100

// NodeSignature fingerprints a node for drift detection. It combines the
// identity attributes with a coarse bounds bucket, so two dumps of the
// same screen produce matching signatures even with minor layout noise.
func NodeSignature(n *UINode) string {
	bucket := func(v int) int {
		return int(math.Round(float64(v)/signatureGrid)) * signatureGrid
	}
	text := strings.ToLower(strings.Join(strings.Fields(n.Text), " "))
	return fmt.Sprintf("%s|%s|%s|%s|%d,%d,%d,%d",
		n.ResourceID, n.ContentDesc, n.Class, text,
		bucket(n.Bounds.X1), bucket(n.Bounds.Y1), bucket(n.Bounds.X2), bucket(n.Bounds.Y2))
}

func signatureSet(root *UINode) map[string]struct{} {
	set := make(map[string]struct{})
	var walk func(n *UINode)
	walk = func(n *UINode) {
		set[NodeSignature(n)] = struct{}{}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
	}
	if root != nil {
		walk(root)
	}
	return set
}

// DriftScore quantifies how much tree B diverges from tree A on a 0-100
// scale. Removals weigh more than additions: a removed element breaks
// existing locators, an added one usually does not.
func DriftScore(a, b *UINode) int {
	sigA := signatureSet(a)
	sigB := signatureSet(b)

	removed, added := 0, 0
	for s := range sigA {
		if _, ok := sigB[s]; !ok {
			removed++
		}
	}
	for s := range sigB {
		if _, ok := sigA[s]; !ok {
			added++
		}
	}

	denom := len(sigA)
	if len(sigB) > denom {
		denom = len(sigB)
	}
	if denom < 1 {
		denom = 1
	}

	ratio := (float64(removed)*1.2 + float64(added)*0.8) / float64(denom)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return int(math.Round(ratio * 100))
}
