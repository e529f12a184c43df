package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"
)

// Matcher re-locates captured elements in the current UI tree. This is
// the central resilience mechanism: replay never trusts captured
// coordinates when a richer identity is still resolvable.
type Matcher struct {
	hier    *Hierarchy
	weights MatchWeights
	history *IdentityHistory
}

// MatchWeights are the additive per-attribute scores and the confidence
// floor below which a match is rejected.
type MatchWeights struct {
	ResourceID int
	Desc       int
	Text       int
	Class      int
	Floor      int
}

// NewMatcher returns a matcher using the given scoring weights.
func NewMatcher(hier *Hierarchy, w MatchWeights, history *IdentityHistory) *Matcher {
	return &Matcher{hier: hier, weights: w, history: history}
}

// Match is a successful element re-location.
type Match struct {
	Node  *UINode
	Score int
}

// Score computes the additive agreement between a captured identity and
// a candidate node. Matching on multiple attributes compounds confidence.
func (m *Matcher) Score(identity ElementIdentity, n *UINode) int {
	score := 0
	if identity.ResourceID != "" && identity.ResourceID == n.ResourceID {
		score += m.weights.ResourceID
	}
	if identity.ContentDesc != "" && identity.ContentDesc == n.ContentDesc {
		score += m.weights.Desc
	}
	if identity.Text != "" && identity.Text == strings.TrimSpace(n.Text) {
		score += m.weights.Text
	}
	if identity.Class != "" && identity.Class == n.Class {
		score += m.weights.Class
	}
	return score
}

// BestIn scores every node of the tree and returns the best candidate at
// or above the floor. Ties keep the first node in document order; when
// an identity history is attached, a historically seen candidate wins a
// tie against an unseen one.
func (m *Matcher) BestIn(root *UINode, identity ElementIdentity, pkg string) *Match {
	if identity.Empty() || root == nil {
		return nil
	}

	var best *UINode
	bestScore := 0
	bestSeen := false

	var walk func(n *UINode)
	walk = func(n *UINode) {
		score := m.Score(identity, n)
		if score > 0 {
			seen := m.history.Seen(pkg, NodeSignature(n))
			if score > bestScore || (score == bestScore && seen && !bestSeen) {
				best = n
				bestScore = score
				bestSeen = seen
			}
		}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
	}
	walk(root)

	if best == nil || bestScore < m.weights.Floor {
		return nil
	}
	return &Match{Node: best, Score: bestScore}
}

// BestMatch fetches the current tree for the device and resolves the
// identity against it. Returns ErrElementNotFound when nothing scores at
// or above the floor — a class-only match never suffices on its own.
func (m *Matcher) BestMatch(deviceID string, identity ElementIdentity) (*Match, error) {
	root, err := m.hier.FetchTree(deviceID)
	if err != nil {
		return nil, err
	}

	pkg := ""
	if root != nil {
		pkg = root.Package
	}
	match := m.BestIn(root, identity, pkg)
	if match == nil {
		return nil, ErrElementNotFound
	}
	LogDebug("matcher").
		Int("score", match.Score).
		Str("resourceId", match.Node.ResourceID).
		Str("text", match.Node.Text).
		Msg("Element re-located")
	return match, nil
}

// historyEntry is one line of the identity history log.
type historyEntry struct {
	Package   string `json:"package"`
	Signature string `json:"signature"`
	SeenAt    int64  `json:"seenAt"`
}

// IdentityHistory is an append-only, line-delimited log of captured
// element identities keyed by application package. It biases future
// matches toward historically successful ones. Corrupt or missing lines
// are skipped, never fatal.
type IdentityHistory struct {
	path string

	mu   sync.RWMutex
	seen map[string]map[string]struct{} // package -> signatures
	file *os.File
}

// LoadIdentityHistory reads the log at path, creating it if absent.
func LoadIdentityHistory(path string) *IdentityHistory {
	h := &IdentityHistory{
		path: path,
		seen: make(map[string]map[string]struct{}),
	}

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		loaded, skipped := 0, 0
		for scanner.Scan() {
			var entry historyEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil || entry.Signature == "" {
				skipped++
				continue
			}
			h.record(entry.Package, entry.Signature)
			loaded++
		}
		f.Close()
		LogDebug("matcher").Int("loaded", loaded).Int("skipped", skipped).Msg("Identity history loaded")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		LogWarn("matcher").Err(err).Str("path", path).Msg("Identity history not writable")
		return h
	}
	h.file = f
	return h
}

func (h *IdentityHistory) record(pkg, signature string) {
	sigs, ok := h.seen[pkg]
	if !ok {
		sigs = make(map[string]struct{})
		h.seen[pkg] = sigs
	}
	sigs[signature] = struct{}{}
}

// Seen reports whether the signature was ever captured for the package.
// A nil history reports false for everything.
func (h *IdentityHistory) Seen(pkg, signature string) bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	sigs, ok := h.seen[pkg]
	if !ok {
		return false
	}
	_, ok = sigs[signature]
	return ok
}

// Append records a freshly captured identity. Write failures only log;
// history is advisory.
func (h *IdentityHistory) Append(pkg string, n *UINode) {
	if h == nil || n == nil {
		return
	}
	sig := NodeSignature(n)

	h.mu.Lock()
	h.record(pkg, sig)
	file := h.file
	h.mu.Unlock()

	if file == nil {
		return
	}
	line, err := json.Marshal(historyEntry{Package: pkg, Signature: sig, SeenAt: time.Now().Unix()})
	if err != nil {
		return
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		LogWarn("matcher").Err(err).Msg("Identity history append failed")
	}
}

// Close releases the underlying log file.
func (h *IdentityHistory) Close() {
	if h == nil || h.file == nil {
		return
	}
	h.file.Close()
}
