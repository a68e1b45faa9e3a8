// Package models defines the server-side data model: folders and their
// permission entries, business objects, tombstones and the caller identity.
package models

import "time"

// FolderType classifies a folder. It is immutable after creation.
type FolderType int

const (
	FolderTypePrivate FolderType = iota + 1
	FolderTypePublic
	FolderTypeShared
	FolderTypeSystem
	FolderTypeProject
)

func (t FolderType) String() string {
	switch t {
	case FolderTypePrivate:
		return "private"
	case FolderTypePublic:
		return "public"
	case FolderTypeShared:
		return "shared"
	case FolderTypeSystem:
		return "system"
	case FolderTypeProject:
		return "project"
	default:
		return "unknown"
	}
}

// Module is a coarse feature area. It gates both the content type of a folder
// and what a user may access.
type Module int

const (
	ModuleContact Module = iota + 1
	ModuleCalendar
	ModuleTask
	ModuleInfostore
	ModuleSystem
	ModuleMail
)

func (m Module) String() string {
	switch m {
	case ModuleContact:
		return "contact"
	case ModuleCalendar:
		return "calendar"
	case ModuleTask:
		return "task"
	case ModuleInfostore:
		return "infostore"
	case ModuleSystem:
		return "system"
	case ModuleMail:
		return "mail"
	default:
		return "unknown"
	}
}

// ParseModule is the inverse of Module.String.
func ParseModule(name string) (Module, bool) {
	for m := ModuleContact; m <= ModuleMail; m++ {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// ModuleSet is the set of modules a user is entitled to.
type ModuleSet uint32

func NewModuleSet(mods ...Module) ModuleSet {
	var s ModuleSet
	for _, m := range mods {
		s = s.With(m)
	}
	return s
}

func (s ModuleSet) With(m Module) ModuleSet { return s | 1<<uint(m) }

func (s ModuleSet) Has(m Module) bool { return s&(1<<uint(m)) != 0 }

// Modules lists the members of s in ascending order.
func (s ModuleSet) Modules() []Module {
	var out []Module
	for m := ModuleContact; m <= ModuleMail; m++ {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Reserved folder ids. Persisted folders start at MinFolderID.
const (
	RootParentID = 0

	PrivateRootFolderID   = 1
	PublicRootFolderID    = 2
	SharedRootFolderID    = 3
	SystemUsersFolderID   = 6
	InfostoreRootFolderID = 9

	VirtualTaskFolderID      = 10
	VirtualCalendarFolderID  = 11
	VirtualContactFolderID   = 12
	VirtualInfostoreFolderID = 14

	MinFolderID = 20
)

// Folder is a node of the folder tree together with its permission entries.
type Folder struct {
	ContextID     int
	ID            int
	ParentID      int
	Name          string
	Type          FolderType
	Module        Module
	OwnerID       int
	LastModified  time.Time
	DefaultFolder bool
	Permissions   []PermissionEntry

	// Virtual folders are synthesized on read and never stored.
	Virtual bool
}

// IsRoot reports whether f hangs directly below the reserved root parent.
func (f *Folder) IsRoot() bool { return f.ParentID == RootParentID }

// Clone returns a deep copy, so callers may not alter cached values.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := *f
	c.Permissions = append([]PermissionEntry(nil), f.Permissions...)
	return &c
}
