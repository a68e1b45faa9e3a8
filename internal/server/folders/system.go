package folders

import "github.com/dmitrijs2005/groupware/internal/server/models"

type systemFolder struct {
	parent  int
	name    string
	typ     models.FolderType
	module  models.Module
	virtual bool
	perms   []models.PermissionEntry
}

var (
	allUsersVisible = []models.PermissionEntry{
		{Principal: models.AllUsersGroupID, Kind: models.PrincipalGroup, Folder: models.FolderVisible},
	}
	allUsersReadAll = []models.PermissionEntry{
		{Principal: models.AllUsersGroupID, Kind: models.PrincipalGroup, Folder: models.FolderVisible, Read: models.ObjectAll},
	}
)

// systemFolders is the static table of folders that are never read from the
// store: the roots, the global address book and the virtual list folders.
var systemFolders = map[int]systemFolder{
	models.PrivateRootFolderID:   {parent: models.RootParentID, name: "private", typ: models.FolderTypeSystem, module: models.ModuleSystem, perms: allUsersVisible},
	models.PublicRootFolderID:    {parent: models.RootParentID, name: "public", typ: models.FolderTypeSystem, module: models.ModuleSystem, perms: allUsersVisible},
	models.SharedRootFolderID:    {parent: models.RootParentID, name: "shared", typ: models.FolderTypeSystem, module: models.ModuleSystem, perms: allUsersVisible},
	models.InfostoreRootFolderID: {parent: models.RootParentID, name: "infostore", typ: models.FolderTypeSystem, module: models.ModuleInfostore, perms: allUsersVisible},

	models.SystemUsersFolderID: {parent: models.PublicRootFolderID, name: "global address book", typ: models.FolderTypePublic, module: models.ModuleContact, perms: allUsersReadAll},

	models.VirtualTaskFolderID:      {parent: models.PrivateRootFolderID, name: "all task folders", typ: models.FolderTypeSystem, module: models.ModuleTask, virtual: true, perms: allUsersReadAll},
	models.VirtualCalendarFolderID:  {parent: models.PrivateRootFolderID, name: "all calendar folders", typ: models.FolderTypeSystem, module: models.ModuleCalendar, virtual: true, perms: allUsersReadAll},
	models.VirtualContactFolderID:   {parent: models.PrivateRootFolderID, name: "all contact folders", typ: models.FolderTypeSystem, module: models.ModuleContact, virtual: true, perms: allUsersReadAll},
	models.VirtualInfostoreFolderID: {parent: models.PrivateRootFolderID, name: "all infostore folders", typ: models.FolderTypeSystem, module: models.ModuleInfostore, virtual: true, perms: allUsersReadAll},
}

// IsSystemFolder reports whether id is served from the static table.
func IsSystemFolder(id int) bool {
	_, ok := systemFolders[id]
	return ok
}

func buildSystemFolder(contextID, id int) (*models.Folder, bool) {
	s, ok := systemFolders[id]
	if !ok {
		return nil, false
	}
	f := &models.Folder{
		ContextID: contextID,
		ID:        id,
		ParentID:  s.parent,
		Name:      s.name,
		Type:      s.typ,
		Module:    s.module,
		Virtual:   s.virtual,
	}
	for _, p := range s.perms {
		p.FolderID = id
		f.Permissions = append(f.Permissions, p)
	}
	return f, true
}

// systemChildren lists the static folders below parent in id order.
func systemChildren(parent int) []int {
	var ids []int
	for id := models.RootParentID; id < models.MinFolderID; id++ {
		if s, ok := systemFolders[id]; ok && s.parent == parent {
			ids = append(ids, id)
		}
	}
	return ids
}

// systemFoldersOf lists the static non-virtual folders holding objects of
// module m.
func systemFoldersOf(m models.Module) []int {
	var ids []int
	for id := models.RootParentID; id < models.MinFolderID; id++ {
		if s, ok := systemFolders[id]; ok && !s.virtual && s.module == m && s.parent != models.RootParentID {
			ids = append(ids, id)
		}
	}
	return ids
}
