package grpc

import (
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

// Timestamps travel as milliseconds since the epoch, the store's resolution.

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type Object struct {
	ID             int               `json:"id,omitempty"`
	FolderID       int               `json:"folder_id,omitempty"`
	CreatedBy      int               `json:"created_by,omitempty"`
	ModifiedBy     int               `json:"modified_by,omitempty"`
	CreatedAt      int64             `json:"created_at,omitempty"`
	LastModified   int64             `json:"last_modified,omitempty"`
	InternalUserID int               `json:"internal_user_id,omitempty"`
	Values         map[int]string    `json:"values,omitempty"`
	Attributes     models.Attributes `json:"attributes,omitempty"`
}

type Ref struct {
	ObjectID int `json:"object_id"`
	FolderID int `json:"folder_id"`
}

type InsertObjectRequest struct {
	Object *Object `json:"object"`
}

// ObjectResponse carries a written object. NotificationFailed reports a
// committed write whose change event could not be delivered.
type ObjectResponse struct {
	Object             *Object `json:"object,omitempty"`
	NotificationFailed bool    `json:"notification_failed,omitempty"`
}

type UpdateObjectRequest struct {
	FolderID           int     `json:"folder_id"`
	ClientLastModified int64   `json:"client_last_modified"`
	Object             *Object `json:"object"`
}

type DeleteObjectRequest struct {
	ObjectID           int   `json:"object_id"`
	FolderID           int   `json:"folder_id"`
	ClientLastModified int64 `json:"client_last_modified"`
}

type DeleteObjectResponse struct {
	NotificationFailed bool `json:"notification_failed,omitempty"`
}

type GetObjectRequest struct {
	ObjectID int   `json:"object_id"`
	FolderID int   `json:"folder_id"`
	Columns  []int `json:"columns,omitempty"`
}

type ListObjectsRequest struct {
	FolderID   int   `json:"folder_id"`
	Columns    []int `json:"columns,omitempty"`
	From       int   `json:"from,omitempty"`
	To         int   `json:"to,omitempty"`
	OrderBy    int   `json:"order_by,omitempty"`
	Descending bool  `json:"descending,omitempty"`
}

type ObjectsByIDsRequest struct {
	Refs    []Ref `json:"refs"`
	Columns []int `json:"columns,omitempty"`
}

type SinceRequest struct {
	FolderID int   `json:"folder_id"`
	Since    int64 `json:"since"`
	Columns  []int `json:"columns,omitempty"`
}

type ChangesResponse struct {
	Modified  []*Object `json:"modified"`
	Deleted   []*Object `json:"deleted"`
	Watermark int64     `json:"watermark"`
}

type SearchRequest struct {
	Pattern       string         `json:"pattern,omitempty"`
	FieldPatterns map[int]string `json:"field_patterns,omitempty"`
	Folders       []int          `json:"folders,omitempty"`
	Contains      bool           `json:"contains,omitempty"`
	AutoComplete  bool           `json:"auto_complete,omitempty"`
	OrderBy       int            `json:"order_by,omitempty"`
	Descending    bool           `json:"descending,omitempty"`
	Columns       []int          `json:"columns,omitempty"`
}

type Permission struct {
	Principal int  `json:"principal"`
	Group     bool `json:"group,omitempty"`
	Folder    int  `json:"folder"`
	Read      int  `json:"read"`
	Write     int  `json:"write"`
	Delete    int  `json:"delete"`
	Admin     bool `json:"admin,omitempty"`
}

type Folder struct {
	ID            int          `json:"id"`
	ParentID      int          `json:"parent_id"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	Module        string       `json:"module"`
	OwnerID       int          `json:"owner_id,omitempty"`
	LastModified  int64        `json:"last_modified,omitempty"`
	DefaultFolder bool         `json:"default_folder,omitempty"`
	Virtual       bool         `json:"virtual,omitempty"`
	Permissions   []Permission `json:"permissions,omitempty"`
}

type GetFolderRequest struct {
	FolderID int `json:"folder_id"`
}

type SubfoldersRequest struct {
	ParentID int   `json:"parent_id"`
	Since    int64 `json:"since,omitempty"`
}

type UpdatePermissionsRequest struct {
	FolderID    int          `json:"folder_id"`
	Permissions []Permission `json:"permissions"`
}

func objectToWire(o *models.Object) *Object {
	if o == nil {
		return nil
	}
	w := &Object{
		ID:             o.ID,
		FolderID:       o.FolderID,
		CreatedBy:      o.CreatedBy,
		ModifiedBy:     o.ModifiedBy,
		CreatedAt:      models.ToMillis(o.CreatedAt),
		LastModified:   models.ToMillis(o.LastModified),
		InternalUserID: o.InternalUserID,
		Attributes:     o.Attributes,
	}
	if len(o.Values) > 0 {
		w.Values = make(map[int]string, len(o.Values))
		for f, v := range o.Values {
			w.Values[int(f)] = v
		}
	}
	return w
}

// objectFromWire keeps only what a client may write. Identity, timestamps
// and creator are assigned by the server.
func objectFromWire(w *Object) *models.Object {
	if w == nil {
		return &models.Object{}
	}
	o := &models.Object{ID: w.ID, FolderID: w.FolderID, Attributes: w.Attributes}
	for f, v := range w.Values {
		o.Set(models.Field(f), v)
	}
	return o
}

func objectsToWire(list []*models.Object) []*Object {
	out := make([]*Object, 0, len(list))
	for _, o := range list {
		out = append(out, objectToWire(o))
	}
	return out
}

func columns(cols []int) []models.Field {
	if len(cols) == 0 {
		return nil
	}
	out := make([]models.Field, len(cols))
	for i, c := range cols {
		out[i] = models.Field(c)
	}
	return out
}

func direction(desc bool) models.OrderDirection {
	if desc {
		return models.OrderDesc
	}
	return models.OrderAsc
}

func permissionToWire(p models.PermissionEntry) Permission {
	return Permission{
		Principal: p.Principal,
		Group:     p.Kind == models.PrincipalGroup,
		Folder:    int(p.Folder),
		Read:      int(p.Read),
		Write:     int(p.Write),
		Delete:    int(p.Delete),
		Admin:     p.Admin,
	}
}

func permissionFromWire(folderID int, p Permission) models.PermissionEntry {
	kind := models.PrincipalUser
	if p.Group {
		kind = models.PrincipalGroup
	}
	return models.PermissionEntry{
		FolderID:  folderID,
		Principal: p.Principal,
		Kind:      kind,
		Folder:    models.FolderLevel(p.Folder),
		Read:      models.ObjectLevel(p.Read),
		Write:     models.ObjectLevel(p.Write),
		Delete:    models.ObjectLevel(p.Delete),
		Admin:     p.Admin,
	}
}

// folderToWire omits the permission entries unless withPermissions is set.
func folderToWire(f *models.Folder, withPermissions bool) *Folder {
	w := &Folder{
		ID:            f.ID,
		ParentID:      f.ParentID,
		Name:          f.Name,
		Type:          f.Type.String(),
		Module:        f.Module.String(),
		OwnerID:       f.OwnerID,
		LastModified:  models.ToMillis(f.LastModified),
		DefaultFolder: f.DefaultFolder,
		Virtual:       f.Virtual,
	}
	if withPermissions {
		for _, p := range f.Permissions {
			w.Permissions = append(w.Permissions, permissionToWire(p))
		}
	}
	return w
}
