package policy

import (
	"fmt"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
)

// Resolver expands alias names to their concrete tool members. Aliases never
// recurse: a member list may only contain concrete tool names, never another
// alias name. This is enforced once at construction time.
type Resolver struct {
	aliases map[string][]string
}

// NewResolver validates the alias graph and returns a Resolver.
//
// The graph must be acyclic and exactly one level deep: no member of any
// alias may itself be the name of another alias. A violation is rejected
// with E_POLICY_INVALID rather than silently flattened, since a "deep"
// alias graph can hide unintended tool exposure behind a short name.
func NewResolver(aliases map[string][]string) (*Resolver, error) {
	for name, members := range aliases {
		for _, m := range members {
			if _, isAlias := aliases[m]; isAlias {
				return nil, diagnostic.New(diagnostic.EPolicyInvalid, "policy.alias",
					fmt.Sprintf("alias %q references %q, which is itself an alias (multi-level aliases are not allowed)", name, m)).
					WithContext(map[string]any{"alias": name, "member": m})
			}
		}
	}
	return &Resolver{aliases: aliases}, nil
}

// Resolve returns the concrete members of name if it is an alias, or
// []string{name} otherwise. An unknown name is not an error: it resolves to
// itself, so a policy author can reference a tool that doesn't exist yet
// without the load failing.
func (r *Resolver) Resolve(name string) []string {
	if members, ok := r.aliases[name]; ok {
		out := make([]string, len(members))
		copy(out, members)
		return out
	}
	return []string{name}
}

// Matches reports whether tool is a member of target: either tool == target
// directly, or target is an alias whose member list contains tool.
func (r *Resolver) Matches(tool, target string) bool {
	for _, member := range r.Resolve(target) {
		if member == tool {
			return true
		}
	}
	return false
}

// IsMemberOfAny reports whether tool appears in the member list of any
// alias, used by static allow/deny pre-checks to decide whether an alias
// entry in an allow/deny list covers tool.
func (r *Resolver) IsMemberOfAny(tool string, names []string) bool {
	for _, name := range names {
		if r.Matches(tool, name) {
			return true
		}
	}
	return false
}
