package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/auth"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/permissions"
	"github.com/dmitrijs2005/groupware/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type objectService interface {
	Insert(ctx context.Context, id models.Identity, obj *models.Object) (*models.Object, error)
	Update(ctx context.Context, id models.Identity, obj *models.Object, folderID int, clientLastModified time.Time) (*models.Object, error)
	Delete(ctx context.Context, id models.Identity, objectID, folderID int, clientLastModified time.Time) error
	Get(ctx context.Context, id models.Identity, objectID, folderID int, cols []models.Field) (*models.Object, error)
	ProjectedRead(ctx context.Context, id models.Identity, folderID int, cols []models.Field,
		from, to int, orderField models.Field, dir models.OrderDirection) (*cursor.Iterator[*models.Object], error)
	ByIDs(ctx context.Context, id models.Identity, refs []models.ObjectRef, cols []models.Field) (*cursor.Iterator[*models.Object], error)
}

type syncService interface {
	ModifiedSince(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*cursor.Iterator[*models.Object], error)
	DeletedSince(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*cursor.Iterator[*models.Object], error)
	Changes(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*services.ChangeSet, error)
}

type searchService interface {
	Search(ctx context.Context, id models.Identity, c models.SearchCriteria,
		orderField models.Field, dir models.OrderDirection, cols []models.Field) (*cursor.Iterator[*models.Object], error)
}

type folderCatalog interface {
	Get(ctx context.Context, contextID, id int) (*models.Folder, error)
	Subfolders(ctx context.Context, contextID, parentID int, since time.Time) (*cursor.Iterator[*models.Folder], error)
	UpdatePermissions(ctx context.Context, id models.Identity, folderID int, entries []models.PermissionEntry) error
}

func identity(ctx context.Context) (models.Identity, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return models.Identity{}, status.Error(codes.Unauthenticated, "missing identity")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *Empty) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) InsertObject(ctx context.Context, req *InsertObjectRequest) (*ObjectResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.objects.Insert(ctx, id, objectFromWire(req.Object))
	return s.written(ctx, o, err)
}

func (s *GRPCServer) UpdateObject(ctx context.Context, req *UpdateObjectRequest) (*ObjectResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.objects.Update(ctx, id, objectFromWire(req.Object), req.FolderID, models.FromMillis(req.ClientLastModified))
	return s.written(ctx, o, err)
}

func (s *GRPCServer) DeleteObject(ctx context.Context, req *DeleteObjectRequest) (*DeleteObjectResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	err = s.objects.Delete(ctx, id, req.ObjectID, req.FolderID, models.FromMillis(req.ClientLastModified))
	switch {
	case err == nil:
		return &DeleteObjectResponse{}, nil
	case errors.Is(err, common.ErrNotificationFailed):
		s.logger.Warn(ctx, "delete committed without notification", "error", err)
		return &DeleteObjectResponse{NotificationFailed: true}, nil
	}
	return nil, toStatus(err)
}

// written answers a mutation. A committed write whose notification failed
// is still a success for the client.
func (s *GRPCServer) written(ctx context.Context, o *models.Object, err error) (*ObjectResponse, error) {
	switch {
	case err == nil:
		return &ObjectResponse{Object: objectToWire(o)}, nil
	case o != nil && errors.Is(err, common.ErrNotificationFailed):
		s.logger.Warn(ctx, "write committed without notification", "object", o.ID, "error", err)
		return &ObjectResponse{Object: objectToWire(o), NotificationFailed: true}, nil
	}
	return nil, toStatus(err)
}

func (s *GRPCServer) GetObject(ctx context.Context, req *GetObjectRequest) (*ObjectResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.objects.Get(ctx, id, req.ObjectID, req.FolderID, columns(req.Columns))
	if err != nil {
		return nil, toStatus(err)
	}
	return &ObjectResponse{Object: objectToWire(o)}, nil
}

func (s *GRPCServer) Changes(ctx context.Context, req *SinceRequest) (*ChangesResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := s.sync.Changes(ctx, id, req.FolderID, models.FromMillis(req.Since), columns(req.Columns))
	if err != nil {
		return nil, toStatus(err)
	}
	return &ChangesResponse{
		Modified:  objectsToWire(cs.Modified),
		Deleted:   objectsToWire(cs.Deleted),
		Watermark: models.ToMillis(cs.Watermark),
	}, nil
}

func (s *GRPCServer) ListObjects(req *ListObjectsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	it, err := s.objects.ProjectedRead(ctx, id, req.FolderID, columns(req.Columns),
		req.From, req.To, models.Field(req.OrderBy), direction(req.Descending))
	if err != nil {
		return toStatus(err)
	}
	return sendAll(stream, it, objectToWire)
}

func (s *GRPCServer) ObjectsByIDs(req *ObjectsByIDsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	refs := make([]models.ObjectRef, len(req.Refs))
	for i, r := range req.Refs {
		refs[i] = models.ObjectRef{ObjectID: r.ObjectID, FolderID: r.FolderID}
	}
	it, err := s.objects.ByIDs(ctx, id, refs, columns(req.Columns))
	if err != nil {
		return toStatus(err)
	}
	return sendAll(stream, it, objectToWire)
}

func (s *GRPCServer) ModifiedSince(req *SinceRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	it, err := s.sync.ModifiedSince(ctx, id, req.FolderID, models.FromMillis(req.Since), columns(req.Columns))
	if err != nil {
		return toStatus(err)
	}
	return sendAll(stream, it, objectToWire)
}

func (s *GRPCServer) DeletedSince(req *SinceRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	it, err := s.sync.DeletedSince(ctx, id, req.FolderID, models.FromMillis(req.Since), columns(req.Columns))
	if err != nil {
		return toStatus(err)
	}
	return sendAll(stream, it, objectToWire)
}

func (s *GRPCServer) Search(req *SearchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	c := models.SearchCriteria{
		Pattern:      req.Pattern,
		Folders:      req.Folders,
		AutoComplete: req.AutoComplete,
	}
	if req.Contains {
		c.Match = models.MatchContains
	}
	if len(req.FieldPatterns) > 0 {
		c.FieldPatterns = make(map[models.Field]string, len(req.FieldPatterns))
		for f, p := range req.FieldPatterns {
			c.FieldPatterns[models.Field(f)] = p
		}
	}
	it, err := s.search.Search(ctx, id, c, models.Field(req.OrderBy), direction(req.Descending), columns(req.Columns))
	if err != nil {
		return toStatus(err)
	}
	return sendAll(stream, it, objectToWire)
}

// visibleFolder loads folderID and checks the caller may see it.
func (s *GRPCServer) visibleFolder(ctx context.Context, op string, id models.Identity, folderID int) (*models.Folder, permissions.Effective, error) {
	f, err := s.folders.Get(ctx, id.ContextID, folderID)
	if err != nil {
		return nil, permissions.Effective{}, common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}
	e := permissions.Compute(id, f)
	if !e.FolderVisible || !permissions.HasModuleAccess(e, f.Module) {
		return nil, e, common.Conflict(op, "folder not visible").With(id.ContextID, id.UserID, folderID, 0)
	}
	return f, e, nil
}

func (s *GRPCServer) GetFolder(ctx context.Context, req *GetFolderRequest) (*Folder, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	f, e, err := s.visibleFolder(ctx, "grpc.GetFolder", id, req.FolderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return folderToWire(f, e.IsAdmin), nil
}

func (s *GRPCServer) Subfolders(req *SubfoldersRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	if _, _, err := s.visibleFolder(ctx, "grpc.Subfolders", id, req.ParentID); err != nil {
		return toStatus(err)
	}
	it, err := s.folders.Subfolders(ctx, id.ContextID, req.ParentID, models.FromMillis(req.Since))
	if err != nil {
		return toStatus(err)
	}
	visible := cursor.Filter(it, func(f *models.Folder) bool {
		e := permissions.Compute(id, f)
		return e.FolderVisible && permissions.HasModuleAccess(e, f.Module)
	})
	return sendAll(stream, visible, func(f *models.Folder) *Folder {
		return folderToWire(f, permissions.Compute(id, f).IsAdmin)
	})
}

func (s *GRPCServer) UpdatePermissions(ctx context.Context, req *UpdatePermissionsRequest) (*Empty, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.PermissionEntry, len(req.Permissions))
	for i, p := range req.Permissions {
		entries[i] = permissionFromWire(req.FolderID, p)
	}
	if err := s.folders.UpdatePermissions(ctx, id, req.FolderID, entries); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "folder permissions replaced", "context", id.ContextID, "user", id.UserID, "folder", req.FolderID, "entries", len(entries))
	return &Empty{}, nil
}

// sendAll streams it to the client and closes it, also when the client goes
// away mid-stream.
func sendAll[T, W any](stream grpc.ServerStream, it *cursor.Iterator[T], conv func(T) W) error {
	defer func() { _ = it.Close() }()
	for it.Next() {
		if err := stream.SendMsg(conv(it.Value())); err != nil {
			return err
		}
	}
	return toStatus(it.Err())
}
