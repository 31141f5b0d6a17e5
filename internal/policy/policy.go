// Package policy decides which tools a process may run.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

const (
	// AllowReadOnly admits every non-mutating tool.
	AllowReadOnly = "read"
	AllowAll      = "*"
)

// CheckToolAllowed returns a CodeBlocked error when tool is not admitted by
// the allowlist. An empty allowlist admits everything.
func CheckToolAllowed(allowlist []string, tool string, mutating bool) error {
	if len(allowlist) == 0 {
		return nil
	}
	name := normalize(tool)
	for _, allowed := range allowlist {
		switch v := normalize(allowed); {
		case v == AllowAll, v == name:
			return nil
		case v == AllowReadOnly && !mutating:
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "tool blocked by --enable-tools policy").
		WithDetails(map[string]any{"tool": tool, "allowed": allowlist})
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
