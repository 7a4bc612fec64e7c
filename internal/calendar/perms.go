package calendar

// PermEntry is a denial list for one permission node. Absence of an entry
// for a node means nobody is denied.
type PermEntry struct {
	Node        string   `json:"node"`
	DeniedRoles []string `json:"denied_roles,omitempty"`
	DeniedUsers []string `json:"denied_users,omitempty"`
}

// DenyRole adds a role to the node's denial list, creating the entry if
// needed. Idempotent.
func (c *Calendar) DenyRole(node, roleID string) {
	entry := c.permEntry(node, true)
	if !contains(entry.DeniedRoles, roleID) {
		entry.DeniedRoles = append(entry.DeniedRoles, roleID)
	}
}

// DenyUser adds a user to the node's denial list, creating the entry if
// needed. Idempotent.
func (c *Calendar) DenyUser(node, userID string) {
	entry := c.permEntry(node, true)
	if !contains(entry.DeniedUsers, userID) {
		entry.DeniedUsers = append(entry.DeniedUsers, userID)
	}
}

// AllowRole removes a role from the node's denial list. No-op if the entry
// or the role is absent.
func (c *Calendar) AllowRole(node, roleID string) {
	if entry := c.permEntry(node, false); entry != nil {
		entry.DeniedRoles = remove(entry.DeniedRoles, roleID)
	}
}

// AllowUser removes a user from the node's denial list. No-op if the entry
// or the user is absent.
func (c *Calendar) AllowUser(node, userID string) {
	if entry := c.permEntry(node, false); entry != nil {
		entry.DeniedUsers = remove(entry.DeniedUsers, userID)
	}
}

// CheckPerm reports whether the acting user may use the given node.
// The guild owner always passes. Otherwise the user is denied when their ID
// or any of their role IDs appears in the node's denial lists; a node with
// no entry allows everyone.
func (c *Calendar) CheckPerm(node, userID string, roleIDs []string, isOwner bool) bool {
	if isOwner {
		return true
	}
	entry := c.permEntry(node, false)
	if entry == nil {
		return true
	}
	if contains(entry.DeniedUsers, userID) {
		return false
	}
	for _, roleID := range roleIDs {
		if contains(entry.DeniedRoles, roleID) {
			return false
		}
	}
	return true
}

func (c *Calendar) permEntry(node string, create bool) *PermEntry {
	for i := range c.Permissions {
		if c.Permissions[i].Node == node {
			return &c.Permissions[i]
		}
	}
	if !create {
		return nil
	}
	c.Permissions = append(c.Permissions, PermEntry{Node: node})
	return &c.Permissions[len(c.Permissions)-1]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
