package models

// PrincipalKind tells whether a permission entry names a user or a group.
type PrincipalKind int

const (
	PrincipalUser PrincipalKind = iota + 1
	PrincipalGroup
)

// AllUsersGroupID is the implicit group every user belongs to.
const AllUsersGroupID = 0

// FolderLevel is the folder axis of a permission entry.
type FolderLevel int

const (
	FolderNone             FolderLevel = 0
	FolderVisible          FolderLevel = 1
	FolderCreateObjects    FolderLevel = 2
	FolderCreateSubfolders FolderLevel = 4
	FolderMax              FolderLevel = 128
)

// ObjectLevel is the read, write or delete axis of a permission entry.
type ObjectLevel int

const (
	ObjectNone  ObjectLevel = 0
	ObjectOwn   ObjectLevel = 1
	ObjectGroup ObjectLevel = 2
	ObjectAll   ObjectLevel = 4
	ObjectMax   ObjectLevel = 128
)

// PermissionEntry grants one principal a set of levels on one folder.
type PermissionEntry struct {
	FolderID  int
	Principal int
	Kind      PrincipalKind
	Folder    FolderLevel
	Read      ObjectLevel
	Write     ObjectLevel
	Delete    ObjectLevel
	Admin     bool
}
