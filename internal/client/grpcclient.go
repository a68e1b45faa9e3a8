package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/groupware/internal/common"
	gs "github.com/dmitrijs2005/groupware/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if c.accessToken != "" {
		ctx = withAccessToken(ctx, c.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) streamAccessTokenInterceptor(ctx context.Context, desc *grpc.StreamDesc,
	cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	if c.accessToken != "" {
		ctx = withAccessToken(ctx, c.accessToken)
	}
	return streamer(ctx, desc, cc, method, opts...)
}

// NewGroupwareClient connects to endpointURL. opts are appended to the
// defaults, so tests may swap the dialer.
func NewGroupwareClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}
	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamAccessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gs.CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(endpointURL, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func method(name string) string { return "/" + gs.ServiceName + "/" + name }

func (c *GRPCClient) invoke(ctx context.Context, name string, req, resp any) error {
	return c.mapError(c.conn.Invoke(ctx, method(name), req, resp))
}

// collect runs a server-streaming call and drains it.
func collect[W any](ctx context.Context, c *GRPCClient, name string, req any) ([]*W, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}
	st, err := c.conn.NewStream(ctx, desc, method(name))
	if err != nil {
		return nil, c.mapError(err)
	}
	if err := st.SendMsg(req); err != nil {
		return nil, c.mapError(err)
	}
	if err := st.CloseSend(); err != nil {
		return nil, c.mapError(err)
	}

	var out []*W
	for {
		m := new(W)
		err := st.RecvMsg(m)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, c.mapError(err)
		}
		out = append(out, m)
	}
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp := &gs.PingResponse{}
	if err := c.invoke(ctx, "Ping", &gs.Empty{}, resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) Insert(ctx context.Context, o *gs.Object) (*gs.ObjectResponse, error) {
	resp := &gs.ObjectResponse{}
	if err := c.invoke(ctx, "InsertObject", &gs.InsertObjectRequest{Object: o}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Update(ctx context.Context, folderID int, clientLastModified int64, o *gs.Object) (*gs.ObjectResponse, error) {
	resp := &gs.ObjectResponse{}
	req := &gs.UpdateObjectRequest{FolderID: folderID, ClientLastModified: clientLastModified, Object: o}
	if err := c.invoke(ctx, "UpdateObject", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Delete(ctx context.Context, objectID, folderID int, clientLastModified int64) (*gs.DeleteObjectResponse, error) {
	resp := &gs.DeleteObjectResponse{}
	req := &gs.DeleteObjectRequest{ObjectID: objectID, FolderID: folderID, ClientLastModified: clientLastModified}
	if err := c.invoke(ctx, "DeleteObject", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Get(ctx context.Context, objectID, folderID int, cols ...int) (*gs.Object, error) {
	resp := &gs.ObjectResponse{}
	req := &gs.GetObjectRequest{ObjectID: objectID, FolderID: folderID, Columns: cols}
	if err := c.invoke(ctx, "GetObject", req, resp); err != nil {
		return nil, err
	}
	return resp.Object, nil
}

func (c *GRPCClient) Changes(ctx context.Context, folderID int, since int64, cols ...int) (*gs.ChangesResponse, error) {
	resp := &gs.ChangesResponse{}
	if err := c.invoke(ctx, "Changes", &gs.SinceRequest{FolderID: folderID, Since: since, Columns: cols}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) List(ctx context.Context, req *gs.ListObjectsRequest) ([]*gs.Object, error) {
	return collect[gs.Object](ctx, c, "ListObjects", req)
}

func (c *GRPCClient) ByIDs(ctx context.Context, refs []gs.Ref, cols ...int) ([]*gs.Object, error) {
	return collect[gs.Object](ctx, c, "ObjectsByIDs", &gs.ObjectsByIDsRequest{Refs: refs, Columns: cols})
}

func (c *GRPCClient) ModifiedSince(ctx context.Context, folderID int, since int64, cols ...int) ([]*gs.Object, error) {
	return collect[gs.Object](ctx, c, "ModifiedSince", &gs.SinceRequest{FolderID: folderID, Since: since, Columns: cols})
}

func (c *GRPCClient) DeletedSince(ctx context.Context, folderID int, since int64) ([]*gs.Object, error) {
	return collect[gs.Object](ctx, c, "DeletedSince", &gs.SinceRequest{FolderID: folderID, Since: since})
}

func (c *GRPCClient) Search(ctx context.Context, req *gs.SearchRequest) ([]*gs.Object, error) {
	return collect[gs.Object](ctx, c, "Search", req)
}

func (c *GRPCClient) GetFolder(ctx context.Context, folderID int) (*gs.Folder, error) {
	resp := &gs.Folder{}
	if err := c.invoke(ctx, "GetFolder", &gs.GetFolderRequest{FolderID: folderID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Subfolders(ctx context.Context, parentID int, since int64) ([]*gs.Folder, error) {
	return collect[gs.Folder](ctx, c, "Subfolders", &gs.SubfoldersRequest{ParentID: parentID, Since: since})
}

func (c *GRPCClient) UpdatePermissions(ctx context.Context, folderID int, perms []gs.Permission) error {
	req := &gs.UpdatePermissionsRequest{FolderID: folderID, Permissions: perms}
	return c.invoke(ctx, "UpdatePermissions", req, &gs.Empty{})
}

// mapError turns transport failures into the package sentinels. Other
// statuses are returned wrapped, so callers can still inspect the code.
func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
