package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified name of the groupware service.
const ServiceName = "groupware.v1.Groupware"

func methodName(m string) string { return "/" + ServiceName + "/" + m }

// unary builds a method descriptor for a request/response call on
// *GRPCServer.
func unary[Req, Resp any](name string, call func(*GRPCServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// serverStream builds a descriptor for a call answered by a stream of
// messages.
func serverStream[Req any](name string, call func(*GRPCServer, *Req, grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(*GRPCServer), in, stream)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", (*GRPCServer).Ping),
		unary("InsertObject", (*GRPCServer).InsertObject),
		unary("UpdateObject", (*GRPCServer).UpdateObject),
		unary("DeleteObject", (*GRPCServer).DeleteObject),
		unary("GetObject", (*GRPCServer).GetObject),
		unary("Changes", (*GRPCServer).Changes),
		unary("GetFolder", (*GRPCServer).GetFolder),
		unary("UpdatePermissions", (*GRPCServer).UpdatePermissions),
	},
	Streams: []grpc.StreamDesc{
		serverStream("ListObjects", (*GRPCServer).ListObjects),
		serverStream("ObjectsByIDs", (*GRPCServer).ObjectsByIDs),
		serverStream("ModifiedSince", (*GRPCServer).ModifiedSince),
		serverStream("DeletedSince", (*GRPCServer).DeletedSince),
		serverStream("Search", (*GRPCServer).Search),
		serverStream("Subfolders", (*GRPCServer).Subfolders),
	},
	Metadata: "groupware.v1",
}
