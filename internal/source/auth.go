package source

import (
	"fmt"
	"os/user"
)

// Authorizer decides whether the caller may inspect a project's jobs. A
// project is readable when it matches one of the caller's unix groups, or
// when the caller is privileged (root, or a member of a staff group).
type Authorizer struct {
	User       string
	Privileged bool
	groups     map[string]bool
}

// CurrentAuthorizer builds an Authorizer for the calling user
func CurrentAuthorizer(staffGroups []string) (*Authorizer, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to look up current user: %w", err)
	}

	gids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for %s: %w", u.Username, err)
	}

	groups := make([]string, 0, len(gids))
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			// Orphaned gids happen on clusters with remote group databases
			continue
		}
		groups = append(groups, g.Name)
	}

	return NewAuthorizer(u.Username, u.Uid == "0", groups, staffGroups), nil
}

// NewAuthorizer builds an Authorizer from explicit membership, mostly for
// tests
func NewAuthorizer(username string, isRoot bool, groups, staffGroups []string) *Authorizer {
	set := make(map[string]bool, len(groups))
	staff := make(map[string]bool, len(staffGroups))
	for _, g := range staffGroups {
		staff[g] = true
	}

	privileged := isRoot || username == "root"
	for _, g := range groups {
		set[g] = true
		if staff[g] {
			privileged = true
		}
	}

	return &Authorizer{
		User:       username,
		Privileged: privileged,
		groups:     set,
	}
}

// Allowed reports whether the caller may read the project's jobs
func (a *Authorizer) Allowed(project string) bool {
	return a.Privileged || a.groups[project]
}
