package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the directory admin service.
const ServiceName = "userdir.v1.Directory"

// Full method names.
const (
	MethodGet                = "/" + ServiceName + "/Get"
	MethodLookupByExternalID = "/" + ServiceName + "/LookupByExternalID"
	MethodCreate             = "/" + ServiceName + "/Create"
	MethodUpdate             = "/" + ServiceName + "/Update"
	MethodDelete             = "/" + ServiceName + "/Delete"
)

// DirectoryServer is the server API of userdir.v1.Directory. Records travel
// as google.protobuf.Struct using the store attribute names.
type DirectoryServer interface {
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LookupByExternalID(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes userdir.v1.Directory for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Get", DirectoryServer.Get),
		unary("LookupByExternalID", DirectoryServer.LookupByExternalID),
		unary("Create", DirectoryServer.Create),
		unary("Update", DirectoryServer.Update),
		unary("Delete", DirectoryServer.Delete),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "userdir/v1/directory.proto",
}

// RegisterDirectoryServer registers srv on s.
func RegisterDirectoryServer(s grpc.ServiceRegistrar, srv DirectoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Resp any](name string, call func(DirectoryServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DirectoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DirectoryServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
