package models

// Capabilities are global, folder-independent grants of a user.
type Capabilities struct {
	FullSharedFolderAccess bool
	FullPublicFolderAccess bool
}

// Identity is the pre-resolved caller of every operation. It is never
// authenticated here, only used for authorization.
type Identity struct {
	ContextID    int
	UserID       int
	GroupIDs     []int
	Modules      ModuleSet
	Capabilities Capabilities
}

// InGroup reports membership, counting the implicit all-users group.
func (id Identity) InGroup(group int) bool {
	if group == AllUsersGroupID {
		return true
	}
	for _, g := range id.GroupIDs {
		if g == group {
			return true
		}
	}
	return false
}
