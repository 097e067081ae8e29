// Package authority turns a user's role assignments into the canonical,
// deduplicated authority set attached to a resolved identity. Aggregation is
// a pure function: no I/O, no clock beyond the instant passed in.
package authority

import (
	"sort"
	"time"

	"github.com/identra-io/identra/pkg/iam/role"
)

// Authority tokens granted to tenant administrators on top of their role
// assignments.
const (
	TenantAdminRole       = "role:tenant-admin"
	TenantAdminPermission = "tenant:admin"
)

// Set is a deduplicated collection of authority tokens. Iteration order is
// unspecified; Values sorts for display only.
type Set map[string]struct{}

// NewSet builds a Set from tokens.
func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether the set contains the token.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Len returns the number of distinct tokens.
func (s Set) Len() int {
	return len(s)
}

// Values returns the tokens sorted lexicographically. Sorting is for stable
// display and logging; correctness never depends on order.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Aggregate computes the authority set for a user from their role-assignment
// join rows and tenant-admin flag, evaluated at the given instant.
//
// An assignment contributes only when it is currently active (active flag set
// and not expired) and its role is active. Each contributing role emits one
// "role:<name>" token plus one token per permission string. Tenant admins
// additionally receive the fixed admin role and permission tokens.
func Aggregate(assignments []role.AssignmentWithRole, tenantAdmin bool, now time.Time) Set {
	s := make(Set)

	for _, ar := range assignments {
		if !ar.Assignment.IsCurrentlyActive(now) {
			continue
		}
		if !ar.Role.Active {
			continue
		}

		s["role:"+ar.Role.Name] = struct{}{}
		for _, perm := range ar.Role.Permissions {
			s[perm] = struct{}{}
		}
	}

	if tenantAdmin {
		s[TenantAdminRole] = struct{}{}
		s[TenantAdminPermission] = struct{}{}
	}

	return s
}
