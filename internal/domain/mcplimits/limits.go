// Package mcplimits enforces the MCP stdio server's resource limits: caps on
// message size, individual field size, and tool-call counts, plus the
// canonicalized-root containment check policy paths must pass before a
// tool-call handler reads them.
package mcplimits

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
)

// Limits are the per-call resource caps a Guard enforces. All are in bytes
// or counts; zero disables the corresponding check.
type Limits struct {
	MaxMsgBytes   int
	MaxFieldBytes int
	MaxToolCalls  int
	TimeoutMS     int
}

// DefaultLimits returns conservative defaults sized for a single CI-gate
// invocation: generous enough for a full trace replay, small enough to
// bound a single malicious or malformed client message.
func DefaultLimits() Limits {
	return Limits{
		MaxMsgBytes:   10 << 20, // 10 MiB
		MaxFieldBytes: 1 << 20,  // 1 MiB, matches the teacher's MaxStringLength
		MaxToolCalls:  10000,
		TimeoutMS:     30000,
	}
}

// Guard applies Limits to incoming tool-call requests.
type Guard struct {
	limits Limits
	root   string // canonicalized policy root; empty disables path containment
	calls  int
}

// NewGuard creates a Guard bound to limits and a canonicalized policy root.
// root is resolved with filepath.EvalSymlinks at construction so every
// later containment check compares against the real, symlink-free path.
func NewGuard(limits Limits, root string) (*Guard, error) {
	g := &Guard{limits: limits}
	if root == "" {
		return g, nil
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve policy root %q: %w", root, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("make policy root %q absolute: %w", root, err)
	}
	g.root = abs
	return g, nil
}

// CheckMessageSize rejects a raw tool-call payload larger than MaxMsgBytes.
func (g *Guard) CheckMessageSize(raw []byte) error {
	if g.limits.MaxMsgBytes > 0 && len(raw) > g.limits.MaxMsgBytes {
		return diagnostic.New(diagnostic.EResourceLimit, "mcplimits.Guard",
			fmt.Sprintf("message size %d bytes exceeds max_msg_bytes (%d)", len(raw), g.limits.MaxMsgBytes)).
			WithContext(map[string]any{"size": len(raw), "max_msg_bytes": g.limits.MaxMsgBytes})
	}
	return nil
}

// CheckFieldSize rejects a single string field larger than MaxFieldBytes.
func (g *Guard) CheckFieldSize(field, value string) error {
	if g.limits.MaxFieldBytes > 0 && len(value) > g.limits.MaxFieldBytes {
		return diagnostic.New(diagnostic.EResourceLimit, "mcplimits.Guard",
			fmt.Sprintf("field %q is %d bytes, exceeds max_field_bytes (%d)", field, len(value), g.limits.MaxFieldBytes)).
			WithContext(map[string]any{"field": field, "size": len(value), "max_field_bytes": g.limits.MaxFieldBytes})
	}
	return nil
}

// CheckToolCallCount increments the guard's running tool-call counter and
// rejects once it exceeds MaxToolCalls. The counter is never reset: it
// bounds the lifetime of one server process, not one request.
func (g *Guard) CheckToolCallCount() error {
	g.calls++
	if g.limits.MaxToolCalls > 0 && g.calls > g.limits.MaxToolCalls {
		return diagnostic.New(diagnostic.EResourceLimit, "mcplimits.Guard",
			fmt.Sprintf("tool call count %d exceeds max_tool_calls (%d)", g.calls, g.limits.MaxToolCalls)).
			WithContext(map[string]any{"calls": g.calls, "max_tool_calls": g.limits.MaxToolCalls})
	}
	return nil
}

// ResolvePolicyPath resolves path against the Guard's canonicalized root and
// rejects any path that escapes it, whether via "..", an absolute path
// outside the root, or a symlink resolving outside the root. Returns the
// absolute, symlink-resolved path on success.
func (g *Guard) ResolvePolicyPath(path string) (string, error) {
	if g.root == "" {
		return path, nil
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// The file may not exist yet (caller will surface E_PATH_NOT_FOUND);
		// fall back to the lexically cleaned path for the containment check.
		resolved = filepath.Clean(candidate)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("make path %q absolute: %w", path, err)
	}

	rel, err := filepath.Rel(g.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", diagnostic.New(diagnostic.EPermissionDenied, "mcplimits.Guard",
			fmt.Sprintf("policy path %q escapes the configured root %q", path, g.root)).
			WithContext(map[string]any{"path": path, "root": g.root})
	}

	return abs, nil
}
