// Package permissions computes the effective permission of a caller on a
// folder from the folder's permission entries, the caller's group
// memberships, the caller's module entitlements and the global
// shared/public-folder capabilities.
package permissions

import "github.com/dmitrijs2005/groupware/internal/server/models"

// Effective is the combined permission of one identity on one folder.
// The zero value is fully closed.
type Effective struct {
	Folder models.FolderLevel
	Read   models.ObjectLevel
	Write  models.ObjectLevel
	Delete models.ObjectLevel

	FolderVisible bool
	CanCreate     bool
	CanReadOwn    bool
	CanReadAll    bool
	CanWriteOwn   bool
	CanWriteAll   bool
	CanDeleteOwn  bool
	CanDeleteAll  bool
	IsAdmin       bool

	// module is the module of the folder the value was computed for. It is
	// zero when the identity lacked that module.
	module models.Module
}

// Compute combines every entry that applies to id: the entry naming the user
// and the entries of all groups the user belongs to, the all-users group
// included. Each axis takes the most permissive level; admin is OR'd. Gates
// are applied afterwards and can only close, never open.
func Compute(id models.Identity, f *models.Folder) Effective {
	var e Effective
	if f == nil {
		return e
	}

	for _, p := range f.Permissions {
		if !applies(id, p) {
			continue
		}
		e.Folder = maxLevel(e.Folder, p.Folder)
		e.Read = maxLevel(e.Read, p.Read)
		e.Write = maxLevel(e.Write, p.Write)
		e.Delete = maxLevel(e.Delete, p.Delete)
		e.IsAdmin = e.IsAdmin || p.Admin
	}

	if !id.Modules.Has(f.Module) {
		return Effective{}
	}
	e.module = f.Module

	e.FolderVisible = e.Folder >= models.FolderVisible || e.IsAdmin
	e.CanCreate = e.Folder >= models.FolderCreateObjects
	e.CanReadOwn = e.Read >= models.ObjectOwn
	e.CanReadAll = e.Read >= models.ObjectGroup
	e.CanWriteOwn = e.Write >= models.ObjectOwn
	e.CanWriteAll = e.Write >= models.ObjectGroup
	e.CanDeleteOwn = e.Delete >= models.ObjectOwn
	e.CanDeleteAll = e.Delete >= models.ObjectGroup

	if f.Type == models.FolderTypeShared && !id.Capabilities.FullSharedFolderAccess {
		e = closeAll(e)
	}
	if f.Type == models.FolderTypePublic && !id.Capabilities.FullPublicFolderAccess {
		e.CanCreate = false
		e.CanWriteOwn, e.CanWriteAll = false, false
		e.CanDeleteOwn, e.CanDeleteAll = false, false
	}
	if !e.FolderVisible {
		e = closeAll(e)
	}
	return e
}

// HasModuleAccess reports whether e was computed for a caller entitled to
// module m on a folder of that module.
func HasModuleAccess(e Effective, m models.Module) bool {
	return e.module != 0 && e.module == m
}

// CanRead reports whether an object created by creator is readable by user.
func (e Effective) CanRead(user, creator int) bool {
	return e.CanReadAll || (e.CanReadOwn && user == creator)
}

// CanWrite reports whether an object created by creator is writable by user.
func (e Effective) CanWrite(user, creator int) bool {
	return e.CanWriteAll || (e.CanWriteOwn && user == creator)
}

// CanDelete reports whether an object created by creator is deletable by user.
func (e Effective) CanDelete(user, creator int) bool {
	return e.CanDeleteAll || (e.CanDeleteOwn && user == creator)
}

// ReadOwnOnly reports whether the caller may only see objects it created.
func (e Effective) ReadOwnOnly() bool {
	return e.CanReadOwn && !e.CanReadAll
}

func applies(id models.Identity, p models.PermissionEntry) bool {
	switch p.Kind {
	case models.PrincipalUser:
		return p.Principal == id.UserID
	case models.PrincipalGroup:
		return id.InGroup(p.Principal)
	}
	return false
}

func closeAll(e Effective) Effective {
	return Effective{module: e.module}
}

func maxLevel[L ~int](a, b L) L {
	if b > a {
		return b
	}
	return a
}
